package seismic

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedDtype is returned when samples of a type cube readers can't
// decode are requested
var ErrUnsupportedDtype = errors.New("unsupported dtype")

// Dtype is the type of a single sample, written as a NumPy array protocol
// type string (typestr). The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant
//   - One character code giving the basic type of the sample:
//     "b": boolean, "i": integer, "u": unsigned integer, "f": floating point
//   - An integer specifying the number of bytes the type uses.
//
// Seismic samples are almost always "<f4".
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
}

// Float32LE is the default sample type of a cube
var Float32LE = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

func ParseDtype(s string) (dt Dtype, err error) {
	// python writers sometimes HTML-escape the byte order
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	size, err := strconv.ParseInt(s, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid dtype size %q: %w", s, err)
	}
	if size < 1 {
		return dt, fmt.Errorf("invalid dtype size %d", size)
	}
	dt.ByteSize = int(size)

	return dt, nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
}

// SampleSize is the size of one sample in bytes
func (dt Dtype) SampleSize() int { return dt.ByteSize }

// Binary returns the byte order samples are encoded with
func (dt Dtype) Binary() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// IsFloat32 reports whether samples are 4-byte floats with a known byte order
func (dt Dtype) IsFloat32() bool {
	return dt.BasicType == BTFloatingPoint && dt.ByteSize == 4 && dt.ByteOrder != BONotRelevant
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
}
