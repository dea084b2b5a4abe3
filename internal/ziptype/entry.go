package ziptype

import (
	"io/fs"
	"strings"
	"time"
)

// Entry describes one record of an archive's central directory.
type Entry struct {
	// Name is the entry name as seen through the archive, after any
	// nested-directory prefix has been stripped.
	Name string

	// RealName is the name of the record that supplies the data. It differs
	// from Name when a versioned override shadows the base entry.
	RealName string

	// Comment is the per-entry comment.
	Comment string

	// Method is the storage method of the payload.
	Method Method

	// Flags is the general purpose bit flag.
	Flags uint16

	// CRC32 is the checksum of the uncompressed content.
	CRC32 uint32

	// CompressedSize is the payload size as stored.
	CompressedSize uint64

	// Size is the uncompressed size.
	Size uint64

	// LocalHeaderOffset is the offset of the local file header relative to
	// the start of the archive.
	LocalHeaderOffset int64

	// Modified is the MS-DOS modification time.
	Modified time.Time

	// ExternalAttrs holds the host-dependent external attributes.
	ExternalAttrs uint32

	// Extra is the central directory extra field.
	Extra []byte

	// Position is the entry's position in central directory order.
	Position int
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Mode returns the file mode reported for the entry.
func (e *Entry) Mode() fs.FileMode {
	if e.IsDir() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

// Versioned reports whether the data comes from a versioned override.
func (e *Entry) Versioned() bool {
	return e.RealName != "" && e.RealName != e.Name
}
