package file

import (
	"fmt"

	"github.com/meigma/nestzip/internal/sizing"
	"github.com/meigma/nestzip/internal/ziptype"
)

// ValidateForRead checks that an entry can be streamed from an archive of
// the given size:
//   - the storage method is supported
//   - sizes are within maxEntrySize (if limit > 0)
//   - stored entries have equal compressed and uncompressed sizes
//   - the local header offset and payload lie within the archive
func ValidateForRead(entry *ziptype.Entry, archiveSize int64, maxEntrySize uint64) error {
	if !entry.Method.Supported() {
		return fmt.Errorf("%w: %s", ziptype.ErrUnsupportedMethod, entry.Method)
	}
	if maxEntrySize > 0 && (entry.Size > maxEntrySize || entry.CompressedSize > maxEntrySize) {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ziptype.ErrSizeOverflow, entry.Size, maxEntrySize)
	}
	if entry.Method == ziptype.MethodStored && entry.CompressedSize != entry.Size {
		return fmt.Errorf("%w: stored entry sizes differ (%d != %d)", ziptype.ErrFormat, entry.CompressedSize, entry.Size)
	}
	if entry.LocalHeaderOffset < 0 || entry.LocalHeaderOffset >= archiveSize {
		return fmt.Errorf("%w: local header offset %d", ziptype.ErrFormat, entry.LocalHeaderOffset)
	}
	if !sizing.Within(entry.LocalHeaderOffset, entry.CompressedSize, archiveSize) {
		return fmt.Errorf("%w: payload of %d bytes exceeds the archive", ziptype.ErrFormat, entry.CompressedSize)
	}
	return nil
}
