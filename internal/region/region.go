package region

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Source provides random access to backing bytes.
// SourceID must return a stable identifier for the underlying content.
type Source interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Region is a window over a Source.
type Region struct {
	src    Source
	base   int64
	length int64
}

// New returns a region covering all of src.
func New(src Source) *Region {
	return &Region{src: src, length: src.Size()}
}

// Source returns the backing source.
func (r *Region) Source() Source {
	return r.src
}

// Base returns the offset of the region within its source.
func (r *Region) Base() int64 {
	return r.base
}

// Size returns the length of the region.
func (r *Region) Size() int64 {
	return r.length
}

// SourceID identifies the window: the source identity plus its bounds.
func (r *Region) SourceID() string {
	if r.base == 0 && r.length == r.src.Size() {
		return r.src.SourceID()
	}
	return fmt.Sprintf("%s@%d+%d", r.src.SourceID(), r.base, r.length)
}

// Subsection returns the region covering [off, off+n) of r.
func (r *Region) Subsection(off, n int64) (*Region, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	return &Region{src: r.src, base: r.base + off, length: n}, nil
}

// Read returns exactly n bytes starting at off.
func (r *Region) Read(off, n int64) ([]byte, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := r.src.ReadAt(buf, r.base+off)
	if int64(got) == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("%w: read %s at %d: %w", ziptype.ErrIO, r.src.SourceID(), r.base+off, err)
}

// ReadAt implements io.ReaderAt over the region. Reads that extend past the
// end of the region are truncated and return io.EOF.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ziptype.ErrOutOfRange, off)
	}
	if off >= r.length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	clipped := false
	if remaining := r.length - off; int64(len(p)) > remaining {
		p = p[:remaining]
		clipped = true
	}
	n, err := r.src.ReadAt(p, r.base+off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: read %s at %d: %w", ziptype.ErrIO, r.src.SourceID(), r.base+off, err)
	}
	if n == len(p) {
		if clipped {
			return n, io.EOF
		}
		return n, nil
	}
	return n, io.EOF
}

// Open returns a stream over the whole region.
func (r *Region) Open() *io.SectionReader {
	return io.NewSectionReader(r, 0, r.length)
}

// Section returns a stream over [off, off+n) of the region.
func (r *Region) Section(off, n int64) (*io.SectionReader, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	return io.NewSectionReader(r, off, n), nil
}

func (r *Region) check(off, n int64) error {
	if off < 0 || n < 0 || off > r.length || n > r.length-off {
		return fmt.Errorf("%w: [%d,+%d) exceeds region of %d bytes", ziptype.ErrOutOfRange, off, n, r.length)
	}
	return nil
}

var _ Source = (*Region)(nil)
