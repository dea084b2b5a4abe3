package nestzip

import (
	"errors"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Errors re-exported from internal/ziptype.
var (
	// ErrFormat is returned when bytes do not form a readable archive: the
	// end record is missing, a required Zip64 field is absent, or a
	// structure is truncated. It is never retried.
	ErrFormat = ziptype.ErrFormat

	// ErrUnsupportedMethod is returned for compression methods other than
	// stored and deflated. It wraps ErrFormat.
	ErrUnsupportedMethod = ziptype.ErrUnsupportedMethod

	// ErrNotFound is returned when a name or address has no matching entry.
	// It wraps fs.ErrNotExist.
	ErrNotFound = ziptype.ErrNotFound

	// ErrUnsupportedNesting is returned when a compressed entry is opened as
	// a nested archive. It is never retried.
	ErrUnsupportedNesting = ziptype.ErrUnsupportedNesting

	// ErrIO wraps failures of the underlying byte source.
	ErrIO = ziptype.ErrIO

	// ErrOutOfRange is returned when a read exceeds its region.
	ErrOutOfRange = ziptype.ErrOutOfRange

	// ErrChecksum is returned when entry content does not match its CRC-32.
	ErrChecksum = ziptype.ErrChecksum

	// ErrSizeOverflow is returned when a size exceeds supported limits.
	ErrSizeOverflow = ziptype.ErrSizeOverflow

	// ErrClosed is returned when reading from a closed archive.
	ErrClosed = ziptype.ErrClosed

	// ErrDigestMismatch is returned when entry content does not match a
	// digest recorded in the manifest.
	ErrDigestMismatch = ziptype.ErrDigestMismatch
)

// ErrInvalidAddress is returned when an address string is malformed.
var ErrInvalidAddress = errors.New("nestzip: invalid address")
