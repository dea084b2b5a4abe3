package nestzip

import (
	"bytes"
	"io"
)

// Resource is the outcome of resolving an address.
//
// A Resource produced in lazy mode for an address that did not resolve
// carries the resolution error instead of content; Open and ReadAll report
// it on first use.
type Resource struct {
	addr    *Address
	archive *Archive
	entry   *Entry
	data    []byte
	err     error
}

// Address returns the address the resource was resolved from.
func (r *Resource) Address() *Address {
	return r.addr
}

// Archive returns the archive holding the entry, or the addressed archive
// itself. It is nil for placeholders and for resources served by a fallback
// that does not produce archives.
func (r *Resource) Archive() *Archive {
	return r.archive
}

// Entry returns the addressed entry, or nil when the address names an
// archive.
func (r *Resource) Entry() *Entry {
	return r.entry
}

// Exists reports whether the address resolved.
func (r *Resource) Exists() bool {
	return r.err == nil
}

// Err returns the deferred resolution error of a placeholder.
func (r *Resource) Err() error {
	return r.err
}

// Open returns a stream of the resource's content: the entry's uncompressed
// bytes, or the raw bytes of an addressed archive.
func (r *Resource) Open() (io.ReadCloser, error) {
	switch {
	case r.err != nil:
		return nil, r.err
	case r.data != nil:
		return io.NopCloser(bytes.NewReader(r.data)), nil
	case r.entry != nil:
		return r.archive.OpenEntry(r.entry)
	default:
		if err := r.archive.checkOpen(); err != nil {
			return nil, err
		}
		return io.NopCloser(r.archive.Stream()), nil
	}
}

// ReadAll reads the resource's entire content.
func (r *Resource) ReadAll() ([]byte, error) {
	switch {
	case r.err != nil:
		return nil, r.err
	case r.data != nil:
		return bytes.Clone(r.data), nil
	case r.entry != nil:
		return r.archive.ReadEntry(r.entry)
	}
	rc, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
