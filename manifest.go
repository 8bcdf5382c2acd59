package seismic

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// FormatVersion is the manifest format this library reads and writes
const FormatVersion = 1

// ManifestKey is the name of the manifest object under a cube's guid
const ManifestKey = "manifest.json"

// ErrLineNotFound is returned when a line number isn't part of a dimension
var ErrLineNotFound = errors.New("line not found")

// Manifest describes a stored cube. It is encoded as JSON and stored as the
// "manifest.json" object under the cube's guid.
type Manifest struct {
	// An integer defining the version of the manifest format
	FormatVersion int `json:"format-version"`
	// Unique identifier of the cube. Also the root path of every object
	// belonging to it.
	GUID string `json:"guid"`
	// The line numbers (inline, crossline, depth/time, ...) along every axis.
	// The length of each list is the extent of the cube along that axis.
	Dimensions [][]int `json:"dimensions"`
	// The extent of each fragment the cube is split into. All fragments share
	// this shape, including partial fragments at the cube boundary, which are
	// stored padded.
	Fragment []int `json:"fragment-shape"`
	// The sample type. Defaults to "<f4".
	Dtype *Dtype `json:"dtype,omitempty"`
	// Compression codec of the fragment objects, or null for raw fragments
	Compressor *CompressionMeta `json:"compressor"`
	// Layout of samples within each fragment. Only "C" (row-major, the last
	// dimension varies fastest) is supported.
	Order string `json:"order"`
}

// ReadManifest decodes and validates a manifest
func ReadManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the manifest describes a cube this library can address
func (m *Manifest) Validate() error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("manifest %q: unsupported format version %d", m.GUID, m.FormatVersion)
	}
	if m.GUID == "" {
		return fmt.Errorf("manifest: missing guid")
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("manifest %q: unsupported order %q", m.GUID, m.Order)
	}
	if !m.SampleType().IsFloat32() {
		return fmt.Errorf("manifest %q: %w: %s", m.GUID, ErrUnsupportedDtype, m.SampleType())
	}
	g, err := m.Geometry()
	if err != nil {
		return fmt.Errorf("manifest %q: %w", m.GUID, err)
	}
	if _, ok := checkedProduct([]int{g.FragmentShape().Samples(), m.SampleType().SampleSize()}); !ok {
		return fmt.Errorf("manifest %q: %w: fragment %s is too large to address in bytes", m.GUID, ErrShape, g.FragmentShape())
	}
	return nil
}

// SampleType returns the dtype of the samples
func (m *Manifest) SampleType() Dtype {
	if m.Dtype == nil {
		return Float32LE
	}
	return *m.Dtype
}

// CubeShape is the number of lines along each dimension
func (m *Manifest) CubeShape() (CubeShape, error) {
	dims := make([]int, len(m.Dimensions))
	for i, lines := range m.Dimensions {
		dims[i] = len(lines)
	}
	return NewCubeShape(dims...)
}

func (m *Manifest) FragmentShape() (FragmentShape, error) {
	return NewFragmentShape(m.Fragment...)
}

// Geometry builds the coordinate transforms of the cube
func (m *Manifest) Geometry() (*Geometry, error) {
	cs, err := m.CubeShape()
	if err != nil {
		return nil, err
	}
	fs, err := m.FragmentShape()
	if err != nil {
		return nil, err
	}
	return NewGeometry(cs, fs)
}

// Index maps a line number along dim to its position in the cube
func (m *Manifest) Index(dim Dimension, lineno int) (int, error) {
	if err := dim.check(len(m.Dimensions)); err != nil {
		return 0, err
	}
	for i, l := range m.Dimensions[dim] {
		if l == lineno {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: line %d in dimension %d", ErrLineNotFound, lineno, dim)
}

// Lines returns a copy of the line numbers along dim
func (m *Manifest) Lines(dim Dimension) ([]int, error) {
	if err := dim.check(len(m.Dimensions)); err != nil {
		return nil, err
	}
	lines := make([]int, len(m.Dimensions[dim]))
	copy(lines, m.Dimensions[dim])
	return lines, nil
}
