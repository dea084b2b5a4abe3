package region

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/meigma/nestzip/internal/mmfile"
	"github.com/meigma/nestzip/internal/ziptype"
)

// FileSource reads from an open file.
// os.File has ReadAt but not Size, so the size is captured at construction.
type FileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

// OpenFile opens path for random access.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, err
	}
	src, err := NewFileSource(f, "")
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewFileSource wraps an open file. An empty sourceID is replaced by the
// file identity.
func NewFileSource(f *os.File, sourceID string) (*FileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	if sourceID == "" {
		sourceID = identity(f.Name(), info)
	}
	return &FileSource{file: f, size: info.Size(), sourceID: sourceID}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the size of the file when it was opened.
func (s *FileSource) Size() int64 {
	return s.size
}

// SourceID returns the file identity.
func (s *FileSource) SourceID() string {
	return s.sourceID
}

// Name returns the path the file was opened with.
func (s *FileSource) Name() string {
	return s.file.Name()
}

// Close closes the file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// BytesSource serves reads from memory, either a caller-owned slice or a
// read-only file mapping.
type BytesSource struct {
	mu       sync.RWMutex
	data     []byte
	sourceID string
	release  func() error
	closed   bool
}

// NewBytes returns a source over data. An empty sourceID is replaced by a
// content digest.
func NewBytes(data []byte, sourceID string) *BytesSource {
	if sourceID == "" {
		sum := sha256.Sum256(data)
		sourceID = "bytes:" + hex.EncodeToString(sum[:])
	}
	return &BytesSource{data: data, sourceID: sourceID}
}

// MapFile maps the file at path read-only. Close releases the mapping.
func MapFile(path string) (*BytesSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, release, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	return &BytesSource{data: data, sourceID: identity(path, info), release: release}, nil
}

// ReadAt implements io.ReaderAt.
func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ziptype.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ziptype.ErrOutOfRange, off)
	}
	if off >= int64(len(s.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the number of bytes.
func (s *BytesSource) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data))
}

// SourceID returns the source identity.
func (s *BytesSource) SourceID() string {
	return s.sourceID
}

// Close releases a file mapping. Reads after Close fail with ErrClosed.
func (s *BytesSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.data = nil
	if s.release != nil {
		return s.release()
	}
	return nil
}

// FileIdentity returns the identity of the file at path: its absolute path,
// size and modification time. A rewritten file gets a new identity.
func FileIdentity(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return identity(path, info), nil
}

func identity(path string, info os.FileInfo) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("file:%s:%d:%d", absPath, info.Size(), info.ModTime().UnixNano())
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*BytesSource)(nil)
)
