package seismic

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDimensions is the highest dimensionality a Tuple can carry
const MaxDimensions = 5

var (
	// ErrDimensionality is returned when a tuple, shape or axis does not
	// match the dimensionality it is used with
	ErrDimensionality = errors.New("dimensionality mismatch")
	// ErrShape is returned for shapes with non-positive extents
	ErrShape = errors.New("invalid shape")
	// ErrOutOfRange is returned when a position falls outside its space
	ErrOutOfRange = errors.New("axis index out of range")
)

// Tuple is a fixed-length sequence of non-negative integers. It is the
// common representation of shapes, points and fragment ids. Tuples are
// values: they are comparable with == and never change after construction.
type Tuple struct {
	n int
	v [MaxDimensions]int
}

func newTuple(xs []int) (Tuple, error) {
	if len(xs) < 1 || len(xs) > MaxDimensions {
		return Tuple{}, fmt.Errorf("%w: %d dimensions, want 1..%d", ErrDimensionality, len(xs), MaxDimensions)
	}
	t := Tuple{n: len(xs)}
	for i, x := range xs {
		if x < 0 {
			return Tuple{}, fmt.Errorf("%w: negative component %d at axis %d", ErrOutOfRange, x, i)
		}
		t.v[i] = x
	}
	return t, nil
}

// Len returns the dimensionality of the tuple
func (t Tuple) Len() int { return t.n }

// At returns the component along axis i. It panics if i is not an axis of t,
// like indexing a slice out of range would.
func (t Tuple) At(i int) int {
	if i < 0 || i >= t.n {
		panic(fmt.Sprintf("seismic: axis %d out of range for %d-dimensional tuple", i, t.n))
	}
	return t.v[i]
}

// Ints returns a copy of the components
func (t Tuple) Ints() []int {
	xs := make([]int, t.n)
	copy(xs, t.v[:t.n])
	return xs
}

// Equal reports whether both tuples have the same components
func (t Tuple) Equal(o Tuple) bool { return t == o }

// String renders the components joined by "-", e.g. "1-0-3"
func (t Tuple) String() string {
	parts := make([]string, t.n)
	for i := 0; i < t.n; i++ {
		parts[i] = strconv.Itoa(t.v[i])
	}
	return strings.Join(parts, "-")
}

func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.v[:t.n])
}

func (t *Tuple) UnmarshalJSON(d []byte) error {
	var xs []int
	if err := json.Unmarshal(d, &xs); err != nil {
		return err
	}
	v, err := newTuple(xs)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t Tuple) product() int {
	p := 1
	for i := 0; i < t.n; i++ {
		p *= t.v[i]
	}
	return p
}

// collapsed returns the product of all components, treating the axes for
// which pin returns true as having extent 1
func (t Tuple) collapsed(pin func(axis int) bool) int {
	p := 1
	for i := 0; i < t.n; i++ {
		if pin(i) {
			continue
		}
		p *= t.v[i]
	}
	return p
}

// Dimension is a single axis index
type Dimension int

func (d Dimension) check(nd int) error {
	if d < 0 || int(d) >= nd {
		return fmt.Errorf("%w: axis %d, have %d dimensions", ErrDimensionality, d, nd)
	}
	return nil
}

func (d Dimension) mustCheck(nd int) {
	if err := d.check(nd); err != nil {
		panic("seismic: " + err.Error())
	}
}

// CubeShape is the extent of the full cube along each axis
type CubeShape struct{ Tuple }

// FragmentShape is the extent of a single fragment along each axis
type FragmentShape struct{ Tuple }

// CubePoint is a position inside the full cube
type CubePoint struct{ Tuple }

// FragmentPoint is a position inside a single fragment
type FragmentPoint struct{ Tuple }

// FragmentID is the grid coordinate of a fragment
type FragmentID struct{ Tuple }

func newShape(dims []int) (Tuple, error) {
	t, err := newTuple(dims)
	if err != nil {
		return t, err
	}
	for i := 0; i < t.n; i++ {
		if t.v[i] < 1 {
			return Tuple{}, fmt.Errorf("%w: extent %d along axis %d", ErrShape, t.v[i], i)
		}
	}
	if _, ok := checkedProduct(t.v[:t.n]); !ok {
		return Tuple{}, fmt.Errorf("%w: %s holds more than %d samples", ErrShape, t, math.MaxInt)
	}
	return t, nil
}

// checkedProduct multiplies non-negative xs, reporting false on overflow
func checkedProduct(xs []int) (int, bool) {
	p := 1
	for _, x := range xs {
		if x != 0 && p > math.MaxInt/x {
			return 0, false
		}
		p *= x
	}
	return p, true
}

// NewCubeShape constructs a cube shape. Every extent must be >= 1.
func NewCubeShape(dims ...int) (CubeShape, error) {
	t, err := newShape(dims)
	return CubeShape{t}, err
}

// NewFragmentShape constructs a fragment shape. Every extent must be >= 1.
func NewFragmentShape(dims ...int) (FragmentShape, error) {
	t, err := newShape(dims)
	return FragmentShape{t}, err
}

func NewCubePoint(xs ...int) (CubePoint, error) {
	t, err := newTuple(xs)
	return CubePoint{t}, err
}

func NewFragmentPoint(xs ...int) (FragmentPoint, error) {
	t, err := newTuple(xs)
	return FragmentPoint{t}, err
}

func NewFragmentID(xs ...int) (FragmentID, error) {
	t, err := newTuple(xs)
	return FragmentID{t}, err
}

// SliceSamples is the number of samples in a slice of the cube pinned
// along dim. It panics if dim is not an axis of s.
func (s CubeShape) SliceSamples(dim Dimension) int {
	dim.mustCheck(s.n)
	return s.collapsed(func(i int) bool { return i == int(dim) })
}

// Offset is the row-major position of p in a cube of this shape
func (s CubeShape) Offset(p CubePoint) int {
	return ToOffset(p.Tuple, s.Tuple)
}

// GridOffset is the row-major position of a fragment id, treating this
// shape as the extent of the grid
func (s CubeShape) GridOffset(id FragmentID) int {
	return ToOffset(id.Tuple, s.Tuple)
}

// SliceSamples is the number of samples in a slice of a fragment pinned
// along dim. It panics if dim is not an axis of s.
func (s FragmentShape) SliceSamples(dim Dimension) int {
	dim.mustCheck(s.n)
	return s.collapsed(func(i int) bool { return i == int(dim) })
}

// Offset is the row-major position of p in a fragment of this shape
func (s FragmentShape) Offset(p FragmentPoint) int {
	return ToOffset(p.Tuple, s.Tuple)
}

// Samples is the number of samples in one fragment
func (s FragmentShape) Samples() int { return s.product() }

// ToOffset computes the row-major linear offset of point in shape: the last
// axis varies fastest. No bounds checking is done.
func ToOffset(point, shape Tuple) int {
	return offset(point.v[:point.n], shape.v[:shape.n])
}

func offset(point, shape []int) int {
	off, stride := 0, 1
	for i := len(shape) - 1; i >= 0; i-- {
		off += point[i] * stride
		stride *= shape[i]
	}
	return off
}
