package seismic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptFragment is returned when a stored fragment is shorter than its
// fragment shape says it should be
var ErrCorruptFragment = errors.New("corrupt fragment")

// TileLayout places a tile in the output slice. Origin and Shape are in the
// coordinates of the slice, which is the cube with the pinned axis removed.
type TileLayout struct {
	Origin []int `json:"origin"`
	Shape  []int `json:"shape"`
}

// Tile is the part of a slice that one fragment contributes. V holds the
// samples of the region described by Layout in row-major order, with
// padding of partial boundary fragments already stripped.
type Tile struct {
	ID     FragmentID `json:"id"`
	Layout TileLayout `json:"layout"`
	V      []float32  `json:"v"`
}

// SliceResult is a slice of the cube pinned at Index along Dim, as a set of
// tiles ordered the way Geometry.Slice enumerates their fragments
type SliceResult struct {
	Dim   Dimension `json:"dim"`
	Index int       `json:"index"`
	Shape []int     `json:"shape"`
	Tiles []Tile    `json:"tiles"`
}

// SliceShape is the shape of a slice pinned along dim: the cube shape with
// that axis removed
func (g *Geometry) SliceShape(dim Dimension) []int {
	return dropAxis(g.cube.Ints(), dim)
}

// Assemble writes every tile into a dense, row-major slice buffer
func (r *SliceResult) Assemble() ([]float32, error) {
	out := make([]float32, product(r.Shape))
	for _, t := range r.Tiles {
		if len(t.Layout.Origin) != len(r.Shape) || len(t.Layout.Shape) != len(r.Shape) {
			return nil, fmt.Errorf("%w: tile %s has layout %v in %d-dimensional slice", ErrDimensionality, t.ID, t.Layout, len(r.Shape))
		}
		for i := range r.Shape {
			o, n := t.Layout.Origin[i], t.Layout.Shape[i]
			if o < 0 || n < 0 || o+n > r.Shape[i] {
				return nil, fmt.Errorf("%w: tile %s outside slice %v", ErrOutOfRange, t.ID, r.Shape)
			}
		}
		if len(t.V) != product(t.Layout.Shape) {
			return nil, fmt.Errorf("%w: tile %s has %d samples, layout wants %d", ErrCorruptFragment, t.ID, len(t.V), product(t.Layout.Shape))
		}
		copyBox(out, r.Shape, t.Layout.Origin, t.V, t.Layout.Shape, make([]int, len(r.Shape)), t.Layout.Shape)
	}
	return out, nil
}

// ExtractTile reads the part of the slice pinned at cube index along dim
// out of the encoded samples of fragment id
func ExtractTile(g *Geometry, dim Dimension, index int, id FragmentID, fragment []byte, dt Dtype) (Tile, error) {
	if err := dim.check(g.Dimensions()); err != nil {
		return Tile{}, err
	}
	begin, end, err := g.FragmentBounds(id)
	if err != nil {
		return Tile{}, err
	}
	if index < begin.v[dim] || index >= end.v[dim] {
		return Tile{}, fmt.Errorf("%w: index %d along axis %d is not in fragment %s", ErrOutOfRange, index, dim, id)
	}

	stride := g.frag.SliceStrideSize(dim, dt.SampleSize())
	raw, err := readStrided(fragment, stride, index%g.frag.v[dim])
	if err != nil {
		return Tile{}, fmt.Errorf("fragment %s: %w", id, err)
	}
	padded := decodeFloat32(raw, dt.Binary())

	layout := TileLayout{
		Origin: dropAxis(begin.Ints(), dim),
		Shape:  make([]int, 0, g.cube.n-1),
	}
	for i := 0; i < g.cube.n; i++ {
		if i != int(dim) {
			layout.Shape = append(layout.Shape, end.v[i]-begin.v[i])
		}
	}

	// partial fragments are stored padded, keep only the part inside the cube
	paddedShape := dropAxis(g.frag.Ints(), dim)
	v := make([]float32, product(layout.Shape))
	origin := make([]int, len(layout.Shape))
	copyBox(v, layout.Shape, origin, padded, paddedShape, origin, layout.Shape)

	return Tile{ID: id, Layout: layout, V: v}, nil
}

// readStrided walks a fragment buffer with s, collecting slice n
func readStrided(fragment []byte, s Stride, n int) ([]byte, error) {
	out := make([]byte, 0, s.ReadCount*s.ReadSize)
	pos := n * s.Start
	for i := 0; i < s.ReadCount; i, pos = i+1, pos+s.Stride {
		if pos+s.ReadSize > len(fragment) {
			return nil, fmt.Errorf("%w: want %d bytes at offset %d, have %d", ErrCorruptFragment, s.ReadSize, pos, len(fragment))
		}
		out = append(out, fragment[pos:pos+s.ReadSize]...)
	}
	return out, nil
}

// ExtractFragment copies the samples of fragment id out of a dense,
// row-major volume of the whole cube. Samples of partial fragments that
// fall outside the cube are zero.
func (g *Geometry) ExtractFragment(volume []float32, id FragmentID) ([]float32, error) {
	if len(volume) != g.GlobalSize() {
		return nil, fmt.Errorf("%w: volume has %d samples, cube %s has %d", ErrShape, len(volume), g.cube, g.GlobalSize())
	}
	begin, end, err := g.FragmentBounds(id)
	if err != nil {
		return nil, err
	}
	extent := make([]int, g.cube.n)
	for i := range extent {
		extent[i] = end.v[i] - begin.v[i]
	}
	frag := make([]float32, g.frag.Samples())
	copyBox(frag, g.frag.Ints(), make([]int, g.cube.n), volume, g.cube.Ints(), begin.Ints(), extent)
	return frag, nil
}

// copyBox copies the box of size extent starting at srcOrigin in src to
// dstOrigin in dst. Both buffers are row-major with the given shapes.
func copyBox(dst []float32, dstShape, dstOrigin []int, src []float32, srcShape, srcOrigin []int, extent []int) {
	nd := len(extent)
	if nd == 0 {
		dst[0] = src[0]
		return
	}

	row := extent[nd-1]
	d := make([]int, nd)
	s := make([]int, nd)
	d[nd-1], s[nd-1] = dstOrigin[nd-1], srcOrigin[nd-1]
	cartesian(make([]int, nd-1), extent[:nd-1], func(frame []int) {
		for i, x := range frame {
			d[i] = dstOrigin[i] + x
			s[i] = srcOrigin[i] + x
		}
		do, so := offset(d, dstShape), offset(s, srcShape)
		copy(dst[do:do+row], src[so:so+row])
	})
}

func decodeFloat32(b []byte, order binary.ByteOrder) []float32 {
	v := make([]float32, len(b)/Float32Size)
	for i := range v {
		v[i] = math.Float32frombits(order.Uint32(b[i*Float32Size:]))
	}
	return v
}

func encodeFloat32(v []float32, order binary.ByteOrder) []byte {
	b := make([]byte, len(v)*Float32Size)
	for i, x := range v {
		order.PutUint32(b[i*Float32Size:], math.Float32bits(x))
	}
	return b
}

func dropAxis(xs []int, dim Dimension) []int {
	out := make([]int, 0, len(xs))
	for i, x := range xs {
		if i != int(dim) {
			out = append(out, x)
		}
	}
	return out
}

func product(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}
	return p
}
