package file

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"runtime"

	"github.com/meigma/nestzip/internal/ziptype"
)

// Stream is the decoded content of one entry. It yields exactly the
// declared uncompressed size: a short payload fails with
// io.ErrUnexpectedEOF, surplus content with ErrFormat, and a checksum
// mismatch at EOF with ErrChecksum.
type Stream struct {
	entry     ziptype.Entry
	src       io.Reader
	n         uint64
	release   func()
	crc       hash.Hash32
	verifyCRC bool
	owner     any

	done   bool
	err    error
	closed bool
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ziptype.ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	remaining := s.entry.Size - s.n
	if remaining == 0 {
		return 0, s.finish()
	}
	if uint64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := s.src.Read(p)
	if n > 0 {
		s.n += uint64(n)
		_, _ = s.crc.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if s.n < s.entry.Size {
			s.err = fmt.Errorf("read %s: %w (%d of %d bytes)", s.entry.Name, io.ErrUnexpectedEOF, s.n, s.entry.Size)
			return n, s.err
		}
		return n, nil
	case errors.Is(err, ziptype.ErrIO), errors.Is(err, ziptype.ErrClosed):
		s.err = err
	default:
		s.err = fmt.Errorf("read %s: %w: %v", s.entry.Name, ziptype.ErrFormat, err)
	}
	return n, s.err
}

// finish confirms the payload holds nothing beyond the declared size and
// verifies the checksum.
func (s *Stream) finish() error {
	var scratch [1]byte
	for range maxEmptyReads {
		n, err := s.src.Read(scratch[:])
		if n > 0 {
			s.err = fmt.Errorf("read %s: %w: content exceeds declared size %d", s.entry.Name, ziptype.ErrFormat, s.entry.Size)
			return s.err
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			if errors.Is(err, ziptype.ErrIO) {
				s.err = err
			} else {
				s.err = fmt.Errorf("read %s: %w: %v", s.entry.Name, ziptype.ErrFormat, err)
			}
			return s.err
		}
		if s.verifyCRC && s.crc.Sum32() != s.entry.CRC32 {
			s.err = fmt.Errorf("read %s: %w: want %08x, got %08x", s.entry.Name, ziptype.ErrChecksum, s.entry.CRC32, s.crc.Sum32())
			return s.err
		}
		s.done = true
		return io.EOF
	}
	s.err = fmt.Errorf("read %s: %w", s.entry.Name, io.ErrNoProgress)
	return s.err
}

const maxEmptyReads = 100

// Close releases the decoder.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	runtime.KeepAlive(s.owner)
	return nil
}
