package file

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// DecompressPool manages reusable DEFLATE decoders to reduce allocation
// overhead when many entries are streamed.
type DecompressPool struct {
	pool sync.Pool
}

// NewDecompressPool creates a new pool for DEFLATE decoders.
func NewDecompressPool() *DecompressPool {
	return &DecompressPool{}
}

// Get returns a decoder reading from r.
// The caller must call the returned release function when done.
func (p *DecompressPool) Get(r io.Reader) (io.ReadCloser, func(), error) {
	if p == nil {
		dec := flate.NewReader(r)
		return dec, func() { _ = dec.Close() }, nil
	}

	if value := p.pool.Get(); value != nil {
		if dec, ok := value.(io.ReadCloser); ok {
			if err := dec.(flate.Resetter).Reset(r, nil); err == nil {
				return dec, p.releaser(dec), nil
			}
			_ = dec.Close()
		}
	}
	dec := flate.NewReader(r)
	return dec, p.releaser(dec), nil
}

func (p *DecompressPool) releaser(dec io.ReadCloser) func() {
	return func() {
		_ = dec.(flate.Resetter).Reset(eofReader{}, nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
