package seismic

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSliceStrideLiteral(t *testing.T) {
	fs, err := NewFragmentShape(4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		dim    Dimension
		expect Stride
	}{
		{0, Stride{Start: 64, Stride: 256, ReadCount: 1, ReadSize: 64}},
		{1, Stride{Start: 16, Stride: 64, ReadCount: 4, ReadSize: 16}},
		{2, Stride{Start: 4, Stride: 16, ReadCount: 16, ReadSize: 4}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.expect, fs.SliceStride(c.dim)); diff != "" {
			t.Errorf("dim %d mismatch (-want +got):\n%s", c.dim, diff)
		}
	}
}

func TestSliceStrideUneven(t *testing.T) {
	fs, _ := NewFragmentShape(2, 3, 5)
	got := fs.SliceStrideSize(1, 8)
	expect := Stride{Start: 40, Stride: 120, ReadCount: 2, ReadSize: 40}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// walking a fragment buffer with the stride must yield exactly the samples
// whose coordinate along the pinned axis is the slice number, in row-major
// order
func TestSliceStrideWalk(t *testing.T) {
	shapes := [][]int{{4, 4, 4}, {3, 4, 5}, {2, 3, 4, 5}, {7}, {6, 1}}
	for _, dims := range shapes {
		fs, err := NewFragmentShape(dims...)
		if err != nil {
			t.Fatal(err)
		}

		// every sample holds its own linear offset
		v := make([]float32, fs.Samples())
		for i := range v {
			v[i] = float32(i)
		}
		buf := encodeFloat32(v, Float32LE.Binary())

		for d := range dims {
			dim := Dimension(d)
			stride := fs.SliceStride(dim)
			if got := stride.ReadCount * stride.ReadSize / Float32Size; got != fs.SliceSamples(dim) {
				t.Errorf("%v dim %d: stride covers %d samples, slice has %d", dims, d, got, fs.SliceSamples(dim))
			}

			for n := 0; n < dims[d]; n++ {
				raw, err := readStrided(buf, stride, n)
				if err != nil {
					t.Fatal(err)
				}
				got := decodeFloat32(raw, Float32LE.Binary())

				var expect []float32
				cartesian(make([]int, len(dims)), dims, func(frame []int) {
					if frame[d] == n {
						expect = append(expect, float32(offset(frame, dims)))
					}
				})
				if diff := cmp.Diff(expect, got); diff != "" {
					t.Errorf("%v dim %d slice %d mismatch (-want +got):\n%s", dims, d, n, diff)
				}
			}
		}
	}
}

func TestSliceStrideBadDimension(t *testing.T) {
	fs, _ := NewFragmentShape(4, 4, 4)
	for _, dim := range []Dimension{-1, 3, 5} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("dim %d: expected panic", dim)
				}
			}()
			fs.SliceStride(dim)
		}()
	}
}
