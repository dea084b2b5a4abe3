package file

import (
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/meigma/nestzip/internal/ziptype"
)

// File implements fs.File over an entry stream. The stream is opened on
// first Read so that Stat alone costs no I/O.
type File struct {
	reader *Reader
	entry  ziptype.Entry
	name   string

	rc      io.ReadCloser
	initErr error
	closed  bool
}

// Interface compliance.
var _ fs.File = (*File)(nil)

// OpenFile returns a File for entry. name is the base name reported by Stat.
func (r *Reader) OpenFile(entry *ziptype.Entry, name string) *File {
	return &File{reader: r, entry: *entry, name: name}
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if f.rc == nil && f.initErr == nil {
		f.rc, f.initErr = f.reader.Open(&f.entry)
	}
	if f.initErr != nil {
		return 0, f.initErr
	}
	return f.rc.Read(p)
}

// Stat returns file info.
func (f *File) Stat() (fs.FileInfo, error) {
	return NewInfo(&f.entry, f.name), nil
}

// Close releases the stream.
func (f *File) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	if f.rc != nil {
		return f.rc.Close()
	}
	return nil
}

// Info implements fs.FileInfo for archive entries.
type Info struct {
	entry ziptype.Entry
	name  string
}

// NewInfo creates an Info from an entry. An empty name defaults to the base
// of the entry name.
func NewInfo(entry *ziptype.Entry, name string) *Info {
	if name == "" {
		name = Base(entry.Name)
	}
	return &Info{entry: *entry, name: name}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) Size() int64        { return int64(fi.entry.Size) }
func (fi *Info) Mode() fs.FileMode  { return fi.entry.Mode() }
func (fi *Info) ModTime() time.Time { return fi.entry.Modified }
func (fi *Info) IsDir() bool        { return fi.entry.IsDir() }
func (fi *Info) Sys() any           { return &fi.entry }

// DirInfo implements fs.FileInfo for directories implied by entry names.
type DirInfo struct {
	name string
}

// NewDirInfo creates a DirInfo with the given name.
func NewDirInfo(name string) *DirInfo {
	return &DirInfo{name: name}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *DirInfo) ModTime() time.Time { return time.Time{} }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// DirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type DirEntry struct {
	info fs.FileInfo
}

// NewDirEntry creates a DirEntry wrapping the given FileInfo.
func NewDirEntry(info fs.FileInfo) *DirEntry {
	return &DirEntry{info: info}
}

func (de *DirEntry) Name() string               { return de.info.Name() }
func (de *DirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *DirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *DirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// Base returns the last element of an entry name, ignoring a trailing slash.
func Base(name string) string {
	if name == "" {
		return "."
	}
	return path.Base(name)
}
