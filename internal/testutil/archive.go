package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Modified is the timestamp given to entries that do not set one. It has an
// even number of seconds so it survives MS-DOS encoding.
var Modified = time.Date(2024, time.March, 14, 15, 9, 26, 0, time.UTC)

// File describes one entry of a test archive.
type File struct {
	Name     string
	Data     []byte
	Method   uint16
	Comment  string
	Modified time.Time
}

// Stored returns an uncompressed entry.
func Stored(name, data string) File {
	return File{Name: name, Data: []byte(data), Method: zip.Store}
}

// StoredBytes returns an uncompressed entry holding data.
func StoredBytes(name string, data []byte) File {
	return File{Name: name, Data: data, Method: zip.Store}
}

// Deflated returns a DEFLATE-compressed entry.
func Deflated(name, data string) File {
	return File{Name: name, Data: []byte(data), Method: zip.Deflate}
}

// DeflatedBytes returns a DEFLATE-compressed entry holding data.
func DeflatedBytes(name string, data []byte) File {
	return File{Name: name, Data: data, Method: zip.Deflate}
}

// Dir returns a directory entry. name must end in a slash.
func Dir(name string) File {
	return File{Name: name, Method: zip.Store}
}

// BuildOption configures BuildZip.
type BuildOption func(*buildConfig)

type buildConfig struct {
	comment string
	prefix  []byte
}

// WithComment sets the archive comment.
func WithComment(comment string) BuildOption {
	return func(c *buildConfig) {
		c.comment = comment
	}
}

// WithPrefix prepends stub to the archive without adjusting any offsets, the
// way a self-extracting launcher is concatenated in front of an archive.
func WithPrefix(stub []byte) BuildOption {
	return func(c *buildConfig) {
		c.prefix = stub
	}
}

// BuildZip writes files into a new archive and returns its bytes.
func BuildZip(tb testing.TB, files []File, opts ...BuildOption) []byte {
	tb.Helper()

	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var buf bytes.Buffer
	buf.Write(cfg.prefix)
	var body bytes.Buffer
	w := zip.NewWriter(&body)
	for _, f := range files {
		mod := f.Modified
		if mod.IsZero() {
			mod = Modified
		}
		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Comment:  f.Comment,
			Modified: mod,
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			tb.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			tb.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if cfg.comment != "" {
		if err := w.SetComment(cfg.comment); err != nil {
			tb.Fatalf("set comment: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	buf.Write(body.Bytes())
	return buf.Bytes()
}

// BuildZip64 encodes stored files as a Zip64 archive in which every size,
// offset and count field is saturated and carried by Zip64 structures.
func BuildZip64(tb testing.TB, files []File) []byte {
	tb.Helper()

	const sat32 = 0xffffffff
	le := binary.LittleEndian
	var out, dir bytes.Buffer
	put16 := func(b *bytes.Buffer, v uint16) { _ = binary.Write(b, le, v) }
	put32 := func(b *bytes.Buffer, v uint32) { _ = binary.Write(b, le, v) }
	put64 := func(b *bytes.Buffer, v uint64) { _ = binary.Write(b, le, v) }

	for _, f := range files {
		offset := uint64(out.Len())
		crc := crc32.ChecksumIEEE(f.Data)
		size := uint64(len(f.Data))

		put32(&out, 0x04034b50)
		put16(&out, 45)
		put16(&out, 0x0800)
		put16(&out, 0)
		put16(&out, 0)
		put16(&out, 0x5821)
		put32(&out, crc)
		put32(&out, sat32)
		put32(&out, sat32)
		put16(&out, uint16(len(f.Name)))
		put16(&out, 20)
		out.WriteString(f.Name)
		put16(&out, 0x0001)
		put16(&out, 16)
		put64(&out, size)
		put64(&out, size)
		out.Write(f.Data)

		put32(&dir, 0x02014b50)
		put16(&dir, 45)
		put16(&dir, 45)
		put16(&dir, 0x0800)
		put16(&dir, 0)
		put16(&dir, 0)
		put16(&dir, 0x5821)
		put32(&dir, crc)
		put32(&dir, sat32)
		put32(&dir, sat32)
		put16(&dir, uint16(len(f.Name)))
		put16(&dir, 28)
		put16(&dir, 0)
		put16(&dir, 0)
		put16(&dir, 0)
		put32(&dir, 0)
		put32(&dir, sat32)
		dir.WriteString(f.Name)
		put16(&dir, 0x0001)
		put16(&dir, 24)
		put64(&dir, size)
		put64(&dir, size)
		put64(&dir, offset)
	}

	dirOffset := uint64(out.Len())
	out.Write(dir.Bytes())
	recordOffset := uint64(out.Len())
	count := uint64(len(files))

	put32(&out, 0x06064b50)
	put64(&out, 44)
	put16(&out, 45)
	put16(&out, 45)
	put32(&out, 0)
	put32(&out, 0)
	put64(&out, count)
	put64(&out, count)
	put64(&out, uint64(dir.Len()))
	put64(&out, dirOffset)

	put32(&out, 0x07064b50)
	put32(&out, 0)
	put64(&out, recordOffset)
	put32(&out, 1)

	put32(&out, 0x06054b50)
	put16(&out, 0)
	put16(&out, 0)
	put16(&out, 0xffff)
	put16(&out, 0xffff)
	put32(&out, sat32)
	put32(&out, sat32)
	put16(&out, 0)
	return out.Bytes()
}
