package seismic

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const manifestExample = `{
	"format-version": 1,
	"guid": "a5e8f2b8c9d3",
	"dimensions": [
		[1, 2, 3, 4, 5],
		[10, 12, 14, 16, 18, 20],
		[0, 4, 8, 12, 16, 20, 24]
	],
	"fragment-shape": [2, 4, 3],
	"dtype": "<f4",
	"compressor": null,
	"order": "C"
}`

func TestReadManifest(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(manifestExample))
	if err != nil {
		t.Fatal(err)
	}

	cs, err := m.CubeShape()
	if err != nil {
		t.Fatal(err)
	}
	if cs.String() != "5-6-7" {
		t.Errorf("expected cube shape 5-6-7, got %s", cs)
	}

	g, err := m.Geometry()
	if err != nil {
		t.Fatal(err)
	}
	if g.FragmentShape().String() != "2-4-3" {
		t.Errorf("expected fragment shape 2-4-3, got %s", g.FragmentShape())
	}
	if m.SampleType() != Float32LE {
		t.Errorf("expected <f4 samples, got %s", m.SampleType())
	}
}

func TestManifestIndex(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(manifestExample))
	if err != nil {
		t.Fatal(err)
	}

	i, err := m.Index(1, 16)
	if err != nil {
		t.Fatal(err)
	}
	if i != 3 {
		t.Errorf("expected line 16 at index 3, got %d", i)
	}

	if _, err := m.Index(1, 15); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("expected ErrLineNotFound, got %v", err)
	}
	if _, err := m.Index(3, 1); !errors.Is(err, ErrDimensionality) {
		t.Errorf("expected ErrDimensionality, got %v", err)
	}

	lines, err := m.Lines(2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 4, 8, 12, 16, 20, 24}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestManifestValidate(t *testing.T) {
	valid := func() *Manifest {
		return &Manifest{
			FormatVersion: FormatVersion,
			GUID:          "abc",
			Dimensions:    [][]int{{1, 2}, {1, 2}},
			Fragment:      []int{2, 2},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid manifest, got %s", err)
	}

	cases := map[string]func(m *Manifest){
		"version":        func(m *Manifest) { m.FormatVersion = 2 },
		"guid":           func(m *Manifest) { m.GUID = "" },
		"order":          func(m *Manifest) { m.Order = "F" },
		"dtype":          func(m *Manifest) { m.Dtype = &Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8} },
		"empty axis":     func(m *Manifest) { m.Dimensions[1] = nil },
		"fragment dims":  func(m *Manifest) { m.Fragment = []int{2, 2, 2} },
		"fragment zero":  func(m *Manifest) { m.Fragment = []int{2, 0} },
		"no dimensions":  func(m *Manifest) { m.Dimensions = nil },
		"fragment bytes": func(m *Manifest) { m.Fragment = []int{math.MaxInt / 2, 1} },
	}
	for name, mutate := range cases {
		m := valid()
		mutate(m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
