package nestzip

import (
	"io"

	"github.com/meigma/nestzip/internal/manifest"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Re-export types from internal packages for public API.
type (
	// Entry describes one entry of an archive.
	Entry = ziptype.Entry

	// Method identifies how an entry's payload is stored.
	Method = ziptype.Method

	// Manifest is a parsed META-INF/MANIFEST.MF.
	Manifest = manifest.Manifest

	// Attributes is one section of a manifest.
	Attributes = manifest.Attributes
)

// Re-export storage methods.
const (
	MethodStored   = ziptype.MethodStored
	MethodDeflated = ziptype.MethodDeflated
)

// ByteSource provides random access to archive bytes.
//
// Implementations exist for local files, memory and HTTP range requests.
// SourceID must return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Kind describes how an Archive relates to its backing file.
type Kind int

const (
	// KindDirect is a root archive that owns its backing file.
	KindDirect Kind = iota

	// KindNestedDirectory is a directory of a parent archive viewed as an
	// archive of its own.
	KindNestedDirectory

	// KindNestedArchive is a stored archive entry of a parent archive.
	KindNestedArchive
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindNestedDirectory:
		return "nested-directory"
	case KindNestedArchive:
		return "nested-archive"
	default:
		return "unknown"
	}
}
