package seismic

import (
	"fmt"
)

// Geometry translates between the three coordinate spaces of a fragmented
// cube: positions in the cube, positions inside a fragment and fragment ids
// in the fragment grid. A Geometry is read-only after construction and safe
// for concurrent use.
type Geometry struct {
	cube CubeShape
	frag FragmentShape
}

// NewGeometry creates the geometry of a cube split into fragments of shape
// frag. The fragment shape may exceed the cube along any axis, in which case
// that axis holds a single partial fragment.
func NewGeometry(cube CubeShape, frag FragmentShape) (*Geometry, error) {
	if cube.Len() == 0 || frag.Len() == 0 {
		return nil, fmt.Errorf("%w: uninitialized shape", ErrShape)
	}
	if cube.Len() != frag.Len() {
		return nil, fmt.Errorf("%w: cube shape %s, fragment shape %s", ErrDimensionality, cube, frag)
	}
	for i := 0; i < cube.n; i++ {
		if cube.v[i] < 1 || frag.v[i] < 1 {
			return nil, fmt.Errorf("%w: cube shape %s, fragment shape %s", ErrShape, cube, frag)
		}
	}
	if _, ok := checkedProduct(cube.v[:cube.n]); !ok {
		return nil, fmt.Errorf("%w: cube shape %s overflows", ErrShape, cube)
	}
	if _, ok := checkedProduct(frag.v[:frag.n]); !ok {
		return nil, fmt.Errorf("%w: fragment shape %s overflows", ErrShape, frag)
	}
	return &Geometry{cube: cube, frag: frag}, nil
}

// Dimensions returns the dimensionality of the cube
func (g *Geometry) Dimensions() int { return g.cube.n }

// CubeShape returns the shape of the whole cube
func (g *Geometry) CubeShape() CubeShape { return g.cube }

// FragmentShape returns the shape of a single fragment
func (g *Geometry) FragmentShape() FragmentShape { return g.frag }

func (g *Geometry) checkPoint(p Tuple) error {
	if p.n != g.cube.n {
		return fmt.Errorf("%w: point %s in %d-dimensional cube", ErrDimensionality, p, g.cube.n)
	}
	for i := 0; i < p.n; i++ {
		if p.v[i] >= g.cube.v[i] {
			return fmt.Errorf("%w: point %s outside cube %s", ErrOutOfRange, p, g.cube)
		}
	}
	return nil
}

// ToLocal maps a cube position to its position within the fragment that
// contains it
func (g *Geometry) ToLocal(p CubePoint) (FragmentPoint, error) {
	if err := g.checkPoint(p.Tuple); err != nil {
		return FragmentPoint{}, err
	}
	fp := FragmentPoint{Tuple{n: p.n}}
	for i := 0; i < p.n; i++ {
		fp.v[i] = p.v[i] % g.frag.v[i]
	}
	return fp, nil
}

// FragmentID maps a cube position to the id of the fragment that contains it
func (g *Geometry) FragmentID(p CubePoint) (FragmentID, error) {
	if err := g.checkPoint(p.Tuple); err != nil {
		return FragmentID{}, err
	}
	id := FragmentID{Tuple{n: p.n}}
	for i := 0; i < p.n; i++ {
		id.v[i] = p.v[i] / g.frag.v[i]
	}
	return id, nil
}

// ToGlobal maps a position within fragment id back to a cube position.
// Points that are valid for a full fragment but land outside the cube in a
// partial boundary fragment are rejected with ErrOutOfRange.
func (g *Geometry) ToGlobal(id FragmentID, p FragmentPoint) (CubePoint, error) {
	if id.n != g.cube.n || p.n != g.cube.n {
		return CubePoint{}, fmt.Errorf("%w: fragment %s point %s in %d-dimensional cube", ErrDimensionality, id, p, g.cube.n)
	}
	cp := CubePoint{Tuple{n: p.n}}
	for i := 0; i < p.n; i++ {
		if p.v[i] >= g.frag.v[i] {
			return CubePoint{}, fmt.Errorf("%w: point %s outside fragment %s", ErrOutOfRange, p, g.frag)
		}
		cp.v[i] = id.v[i]*g.frag.v[i] + p.v[i]
		if cp.v[i] >= g.cube.v[i] {
			return CubePoint{}, fmt.Errorf("%w: fragment %s point %s outside cube %s", ErrOutOfRange, id, p, g.cube)
		}
	}
	return cp, nil
}

// GlobalSize is the number of samples in the cube
func (g *Geometry) GlobalSize() int { return g.cube.product() }

// FragmentCount is the number of fragments needed to cover axis dim. The
// last fragment along the axis may be partial.
func (g *Geometry) FragmentCount(dim Dimension) int {
	global, local := g.cube.At(int(dim)), g.frag.At(int(dim))
	return (global-1)/local + 1
}

// GridShape is the number of fragments along every axis
func (g *Geometry) GridShape() CubeShape {
	grid := CubeShape{Tuple{n: g.cube.n}}
	for i := 0; i < g.cube.n; i++ {
		grid.v[i] = g.FragmentCount(Dimension(i))
	}
	return grid
}

// FragmentBounds returns the part of the cube covered by fragment id as the
// half-open box [begin, end), clipped to the cube
func (g *Geometry) FragmentBounds(id FragmentID) (begin, end CubePoint, err error) {
	if id.n != g.cube.n {
		return begin, end, fmt.Errorf("%w: fragment %s in %d-dimensional cube", ErrDimensionality, id, g.cube.n)
	}
	begin = CubePoint{Tuple{n: id.n}}
	end = CubePoint{Tuple{n: id.n}}
	for i := 0; i < id.n; i++ {
		if id.v[i] >= g.FragmentCount(Dimension(i)) {
			return CubePoint{}, CubePoint{}, fmt.Errorf("%w: fragment %s outside grid %s", ErrOutOfRange, id, g.GridShape())
		}
		begin.v[i] = id.v[i] * g.frag.v[i]
		end.v[i] = min(begin.v[i]+g.frag.v[i], g.cube.v[i])
	}
	return begin, end, nil
}

// Slice returns the ids of every fragment that intersects the slice of the
// cube pinned at index along dim. index is a cube coordinate. The ids are
// ordered with the last axis varying fastest, and the order is stable
// across calls.
func (g *Geometry) Slice(dim Dimension, index int) ([]FragmentID, error) {
	if err := dim.check(g.cube.n); err != nil {
		return nil, err
	}
	if index < 0 || index >= g.cube.v[dim] {
		return nil, fmt.Errorf("%w: index %d along axis %d of cube %s", ErrOutOfRange, index, dim, g.cube)
	}

	nd := g.cube.n
	begins := make([]int, nd)
	ends := make([]int, nd)
	for i := 0; i < nd; i++ {
		ends[i] = g.FragmentCount(Dimension(i))
	}
	pinned := index / g.frag.v[dim]
	begins[dim] = pinned
	ends[dim] = pinned + 1

	elems := 1
	for i := 0; i < nd; i++ {
		elems *= ends[i] - begins[i]
	}

	ids := make([]FragmentID, 0, elems)
	cartesian(begins, ends, func(frame []int) {
		id := FragmentID{Tuple{n: nd}}
		copy(id.v[:], frame)
		ids = append(ids, id)
	})
	return ids, nil
}

// Fragments returns the ids of every fragment in the grid, in row-major
// order
func (g *Geometry) Fragments() []FragmentID {
	nd := g.cube.n
	grid := g.GridShape()
	ids := make([]FragmentID, 0, grid.product())
	cartesian(make([]int, nd), grid.Ints(), func(frame []int) {
		id := FragmentID{Tuple{n: nd}}
		copy(id.v[:], frame)
		ids = append(ids, id)
	})
	return ids
}
