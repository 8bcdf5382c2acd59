package seismic

import (
	"io"

	"github.com/qri-io/dataset/compression"
)

// CompressionMeta names the codec fragments are stored with. An empty ID
// means fragments are stored raw.
type CompressionMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

func (m *CompressionMeta) raw() bool { return m == nil || m.ID == "" }

// Decompressor wraps r with a reader that decodes the fragment codec
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m.raw() {
		return r, nil
	}
	dr, err := compression.Decompressor(m.ID, r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return &stackedCloser{ReadCloser: dr, under: r}, nil
}

// Compressor wraps w with a writer that encodes the fragment codec. The
// returned writer must be closed to flush.
func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	if m.raw() {
		return nopWriteCloser{w}, nil
	}
	return compression.Compressor(m.ID, w)
}

// stackedCloser closes the decoder and the stream it reads from
type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
