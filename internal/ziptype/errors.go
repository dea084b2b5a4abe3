package ziptype

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors shared by every layer of the reader.
var (
	// ErrFormat is returned when bytes do not form a readable zip structure.
	ErrFormat = errors.New("nestzip: not a valid zip archive")

	// ErrUnsupportedMethod is returned for compression methods other than
	// stored and deflated.
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported compression method", ErrFormat)

	// ErrNotFound is returned when a name or address has no matching entry.
	ErrNotFound = fmt.Errorf("nestzip: not found: %w", fs.ErrNotExist)

	// ErrUnsupportedNesting is returned when a compressed entry is
	// materialized as a nested archive.
	ErrUnsupportedNesting = errors.New("nestzip: nested archive is not stored uncompressed")

	// ErrIO wraps failures of the underlying byte source.
	ErrIO = errors.New("nestzip: i/o error")

	// ErrOutOfRange is returned when a read or sub-region exceeds its bounds.
	ErrOutOfRange = errors.New("nestzip: out of range")

	// ErrChecksum is returned when entry content does not match its CRC-32.
	ErrChecksum = errors.New("nestzip: checksum mismatch")

	// ErrSizeOverflow is returned when sizes exceed supported limits.
	ErrSizeOverflow = errors.New("nestzip: size overflow")

	// ErrClosed is returned when reading from a closed archive.
	ErrClosed = errors.New("nestzip: archive closed")

	// ErrDigestMismatch is returned when entry content does not match a
	// digest recorded in the manifest.
	ErrDigestMismatch = errors.New("nestzip: digest mismatch")
)

// Fatal reports whether err must stop resolution instead of falling back.
func Fatal(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, ErrUnsupportedNesting)
}
