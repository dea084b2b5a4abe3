// Package testutil builds archives and byte sources for tests.
package testutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ErrInjected is returned by FailingSource once it trips.
var ErrInjected = errors.New("testutil: injected read failure")

// FailingSource is an in-memory byte source whose reads touching bytes at
// or after FailAt return ErrInjected. FailAt may be moved between reads to
// let an archive open cleanly and fail later.
type FailingSource struct {
	*bytes.Reader
	ID     string
	FailAt int64
}

// NewFailingSource returns a FailingSource over data.
func NewFailingSource(data []byte, id string, failAt int64) *FailingSource {
	return &FailingSource{Reader: bytes.NewReader(data), ID: id, FailAt: failAt}
}

// ReadAt fails once the read reaches FailAt.
func (f *FailingSource) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.FailAt {
		return 0, ErrInjected
	}
	return f.Reader.ReadAt(p, off)
}

// SourceID returns the identifier given at construction.
func (f *FailingSource) SourceID() string {
	return f.ID
}

// WriteFile writes data to name under dir, creating parents, and returns
// the path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
