// Package file streams entry payloads out of an archive region.
package file

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/sizing"
	"github.com/meigma/nestzip/internal/zipfmt"
	"github.com/meigma/nestzip/internal/ziptype"
)

// DefaultMaxEntrySize is the default limit on a single entry (1GB).
const DefaultMaxEntrySize = 1 << 30

// Reader opens entry content from an archive region.
type Reader struct {
	archive      *region.Region
	maxEntrySize uint64
	verifyCRC    bool
	pool         *DecompressPool
	owner        any
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxEntrySize sets the maximum entry size.
// Set to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(r *Reader) {
		r.maxEntrySize = limit
	}
}

// WithVerifyCRC enables CRC-32 verification when a stream reaches EOF.
func WithVerifyCRC(enabled bool) Option {
	return func(r *Reader) {
		r.verifyCRC = enabled
	}
}

// WithPool shares a decoder pool between readers.
func WithPool(p *DecompressPool) Option {
	return func(r *Reader) {
		r.pool = p
	}
}

// WithOwner sets a value every stream and File of the Reader keeps
// reachable until closed. Archives use it to keep their backing file open
// while content is being read.
func WithOwner(v any) Option {
	return func(r *Reader) {
		r.owner = v
	}
}

// NewReader creates a Reader over the archive held in archive. Local header
// offsets of entries passed to it are relative to the start of archive.
func NewReader(archive *region.Region, opts ...Option) *Reader {
	r := &Reader{
		archive:      archive,
		maxEntrySize: DefaultMaxEntrySize,
		verifyCRC:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = NewDecompressPool()
	}
	return r
}

// Payload returns the region holding the entry's payload as stored.
func (r *Reader) Payload(entry *ziptype.Entry) (*region.Region, error) {
	if err := ValidateForRead(entry, r.archive.Size(), r.maxEntrySize); err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Name, err)
	}
	payload, err := zipfmt.Payload(r.archive, entry.LocalHeaderOffset, entry.CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Name, err)
	}
	return payload, nil
}

// Open returns a stream of the entry's uncompressed content. The stream
// yields exactly entry.Size bytes or fails.
func (r *Reader) Open(entry *ziptype.Entry) (io.ReadCloser, error) {
	payload, err := r.Payload(entry)
	if err != nil {
		return nil, err
	}
	s := &Stream{
		entry:     *entry,
		verifyCRC: r.verifyCRC,
		crc:       crc32.NewIEEE(),
		release:   func() {},
		owner:     r.owner,
	}
	switch entry.Method {
	case ziptype.MethodStored:
		s.src = payload.Open()
	case ziptype.MethodDeflated:
		dec, release, err := r.pool.Get(payload.Open())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w: %v", entry.Name, ziptype.ErrFormat, err)
		}
		s.src = dec
		s.release = release
	default:
		return nil, fmt.Errorf("read %s: %w: %s", entry.Name, ziptype.ErrUnsupportedMethod, entry.Method)
	}
	return s, nil
}

// ReadAll reads the entry's entire uncompressed content.
func (r *Reader) ReadAll(entry *ziptype.Entry) ([]byte, error) {
	size, err := sizing.ToInt(entry.Size)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.Name, err)
	}
	rc, err := r.Open(entry)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content := make([]byte, size)
	if _, err := io.ReadFull(rc, content); err != nil {
		return nil, err
	}
	// Reaching EOF runs the size and checksum checks.
	if _, err := rc.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		if err == nil {
			err = fmt.Errorf("read %s: %w: content exceeds declared size", entry.Name, ziptype.ErrFormat)
		}
		return nil, err
	}
	return content, nil
}
