package seismic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTransfers is the number of fragments fetched concurrently when
// building a slice
const DefaultTransfers = 4

// Cube is a stored, fragmented cube: a manifest and one object per fragment
type Cube struct {
	path      Path
	store     Store
	meta      *Manifest
	geom      *Geometry
	transfers int
	log       *zap.Logger
}

// Option configures a Cube
type Option func(*Cube)

// WithTransfers sets how many fragments are fetched concurrently
func WithTransfers(n int) Option {
	return func(c *Cube) {
		if n > 0 {
			c.transfers = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cube) {
		if l != nil {
			c.log = l
		}
	}
}

// Open reads the manifest of cube guid from store
func Open(ctx context.Context, store Store, guid string, opts ...Option) (*Cube, error) {
	p, err := NewPath(guid)
	if err != nil {
		return nil, err
	}

	f, err := store.Get(ctx, p.Join(ManifestKey).String())
	if err != nil {
		return nil, fmt.Errorf("opening cube %q: %w", guid, err)
	}
	defer f.Close()

	m, err := ReadManifest(f)
	if err != nil {
		return nil, err
	}
	if mp, err := NewPath(m.GUID); err != nil || mp.String() != p.String() {
		return nil, fmt.Errorf("opening cube %q: manifest belongs to %q", guid, m.GUID)
	}
	return newCube(p, store, m, opts)
}

// Create writes a new cube manifest to store. Fragments are written
// separately with WriteFragment.
func Create(ctx context.Context, store Store, m *Manifest, opts ...Option) (*Cube, error) {
	if m.Order == "" {
		m.Order = "C"
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	p, err := NewPath(m.GUID)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(m); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, p.Join(ManifestKey).String(), buf); err != nil {
		return nil, fmt.Errorf("writing manifest of %q: %w", m.GUID, err)
	}
	return newCube(p, store, m, opts)
}

func newCube(p Path, store Store, m *Manifest, opts []Option) (*Cube, error) {
	g, err := m.Geometry()
	if err != nil {
		return nil, err
	}
	c := &Cube{
		path:      p,
		store:     store,
		meta:      m,
		geom:      g,
		transfers: DefaultTransfers,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cube) GUID() string { return c.meta.GUID }

func (c *Cube) Manifest() *Manifest { return c.meta }

func (c *Cube) Geometry() *Geometry { return c.geom }

// FragmentKey is the store key of fragment id:
// {guid}/src/{fragment shape}/{id}.f32
func (c *Cube) FragmentKey(id FragmentID) string {
	return c.path.Join("src", c.geom.frag.String(), id.String()+".f32").String()
}

// ReadFragment fetches and decodes every sample of fragment id, including
// the padding of partial fragments
func (c *Cube) ReadFragment(ctx context.Context, id FragmentID) ([]float32, error) {
	b, err := c.readFragmentBytes(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeFloat32(b, c.meta.SampleType().Binary()), nil
}

func (c *Cube) readFragmentBytes(ctx context.Context, id FragmentID) ([]byte, error) {
	key := c.FragmentKey(id)
	f, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	r, err := c.meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", key, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if want := c.geom.frag.Samples() * c.meta.SampleType().SampleSize(); len(b) != want {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrCorruptFragment, key, len(b), want)
	}
	return b, nil
}

// WriteFragment encodes and stores the samples of fragment id. samples must
// hold a full fragment, padding included.
func (c *Cube) WriteFragment(ctx context.Context, id FragmentID, samples []float32) error {
	if _, _, err := c.geom.FragmentBounds(id); err != nil {
		return err
	}
	if len(samples) != c.geom.frag.Samples() {
		return fmt.Errorf("%w: fragment %s has %d samples, want %d", ErrShape, id, len(samples), c.geom.frag.Samples())
	}

	buf := &bytes.Buffer{}
	w, err := c.meta.Compressor.Compressor(buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(encodeFloat32(samples, c.meta.SampleType().Binary())); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.store.Put(ctx, c.FragmentKey(id), buf)
}

// Slice reads the slice at line number lineno along dim
func (c *Cube) Slice(ctx context.Context, dim Dimension, lineno int) (*SliceResult, error) {
	index, err := c.meta.Index(dim, lineno)
	if err != nil {
		return nil, err
	}
	return c.SliceIndex(ctx, dim, index)
}

// SliceIndex reads the slice at cube index along dim, fetching every
// fragment it intersects
func (c *Cube) SliceIndex(ctx context.Context, dim Dimension, index int) (*SliceResult, error) {
	ids, err := c.geom.Slice(dim, index)
	if err != nil {
		return nil, err
	}
	tiles, err := c.Tiles(ctx, dim, index, ids)
	if err != nil {
		return nil, err
	}
	return &SliceResult{
		Dim:   dim,
		Index: index,
		Shape: c.geom.SliceShape(dim),
		Tiles: tiles,
	}, nil
}

// Tiles fetches fragments ids and extracts their part of the slice at cube
// index along dim. Tiles are returned in the order of ids.
func (c *Cube) Tiles(ctx context.Context, dim Dimension, index int, ids []FragmentID) ([]Tile, error) {
	tiles := make([]Tile, len(ids))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(c.transfers)
	for i, id := range ids {
		i, id := i, id
		grp.Go(func() error {
			b, err := c.readFragmentBytes(ctx, id)
			if err != nil {
				return err
			}
			t, err := ExtractTile(c.geom, dim, index, id, b, c.meta.SampleType())
			if err != nil {
				return err
			}
			tiles[i] = t
			c.log.Debug("fetched fragment", zap.String("guid", c.meta.GUID), zap.Stringer("fid", id))
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// Path is a logical, slash separated location in a store
type Path []string

// NewPath normalizes a posix-ish path: backward slashes become forward
// slashes, leading, trailing and repeated slashes are dropped
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, "\\", "/")
	var p Path
	for _, el := range strings.Split(posix, "/") {
		switch el {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative element %q", posix, el)
		}
		p = append(p, el)
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid path %q: empty", posix)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Join returns a new path with elems appended. p is never modified.
func (p Path) Join(elems ...string) Path {
	j := make(Path, 0, len(p)+len(elems))
	j = append(j, p...)
	return append(j, elems...)
}
