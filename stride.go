package seismic

// Float32Size is the size in bytes of a float32 sample
const Float32Size = 4

// Stride describes how to walk a fragment's flat buffer to read one slice
// pinned along an axis. Start, Stride and ReadSize are in bytes.
//
// A caller reads slice number n out of fragment buf with:
//
//	pos := n * s.Start
//	for i := 0; i < s.ReadCount; i, pos = i+1, pos+s.Stride {
//		out = append(out, buf[pos:pos+s.ReadSize]...)
//	}
type Stride struct {
	Start     int
	Stride    int
	ReadCount int
	ReadSize  int
}

// SliceStride computes the Stride for slices pinned along dim, for
// fragments of float32 samples
func (s FragmentShape) SliceStride(dim Dimension) Stride {
	return s.SliceStrideSize(dim, Float32Size)
}

// SliceStrideSize computes the Stride for slices pinned along dim, for
// samples of sampleSize bytes.
//
// Every read is one contiguous run over the axes after dim, so ReadSize and
// Start (the distance between neighbouring slices) both cover the axes
// after dim. Runs repeat once per combination of the axes before dim, each a
// full step of the axes from dim on apart.
func (s FragmentShape) SliceStrideSize(dim Dimension, sampleSize int) Stride {
	d := int(dim)
	return Stride{
		Start:     s.collapsed(func(i int) bool { return i <= d }) * sampleSize,
		Stride:    s.collapsed(func(i int) bool { return i < d }) * sampleSize,
		ReadCount: s.collapsed(func(i int) bool { return i >= d }),
		ReadSize:  s.collapsed(func(i int) bool { return i <= d }) * sampleSize,
	}
}
