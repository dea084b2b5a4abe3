package nestzip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/nestzip/internal/file"
	"github.com/meigma/nestzip/internal/sizing"
	"github.com/meigma/nestzip/internal/ziptype"
)

// NativeFallback resolves local addresses with a conventional zip reader
// that extracts every nested archive into memory. It is slower than the
// primary walk and never produces an Archive, but it reads nested archives
// whatever their storage method.
type NativeFallback struct {
	// BaseDir resolves relative root paths. Empty means the working
	// directory.
	BaseDir string

	// MaxEntrySize limits every entry read into memory. Zero means
	// file.DefaultMaxEntrySize.
	MaxEntrySize uint64
}

// Resolve implements Fallback.
func (f NativeFallback) Resolve(ctx context.Context, address string) (*Resource, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if addr.Remote() {
		return nil, fmt.Errorf("%w: %s: remote roots are not read natively", ErrNotFound, address)
	}
	path := addr.Root
	if f.BaseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.BaseDir, path)
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, nativeError(path, err)
	}
	defer rc.Close()

	if addr.IsArchive() && len(addr.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s: root archives are not read natively", ErrNotFound, address)
	}

	zr := &rc.Reader
	last := len(addr.Entries) - 1
	for _, name := range addr.Entries[:last] {
		data, err := f.open(ctx, zr, name, address)
		if err != nil {
			return nil, err
		}
		if zr, err = zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
			return nil, nativeError(name, err)
		}
	}

	name := addr.Entries[last]
	data, err := f.open(ctx, zr, name, address)
	if err != nil {
		return nil, err
	}
	res := &Resource{addr: addr, data: data}
	if !addr.IsArchive() {
		res.entry = nativeEntry(findNative(zr, name))
	}
	return res, nil
}

func (f NativeFallback) open(ctx context.Context, zr *zip.Reader, name, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zf := findNative(zr, name)
	if zf == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, address)
	}
	return f.read(zf)
}

func (f NativeFallback) read(zf *zip.File) ([]byte, error) {
	limit := f.MaxEntrySize
	if limit == 0 {
		limit = file.DefaultMaxEntrySize
	}
	r, err := zf.Open()
	if err != nil {
		return nil, nativeError(zf.Name, err)
	}
	defer r.Close()
	data, err := sizing.ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, nativeError(zf.Name, err)
	}
	return data, nil
}

func findNative(zr *zip.Reader, name string) *zip.File {
	for _, zf := range zr.File {
		if zf.Name == name || zf.Name == name+"/" {
			return zf
		}
	}
	return nil
}

func nativeEntry(zf *zip.File) *Entry {
	return &Entry{
		Name:           zf.Name,
		RealName:       zf.Name,
		Comment:        zf.Comment,
		Method:         ziptype.Method(zf.Method),
		Flags:          zf.Flags,
		CRC32:          zf.CRC32,
		CompressedSize: zf.CompressedSize64,
		Size:           zf.UncompressedSize64,
		Modified:       zf.Modified,
		ExternalAttrs:  zf.ExternalAttrs,
		Extra:          zf.Extra,
		Position:       -1,
	}
}

// nativeError maps errors of the zip reader onto the package's error kinds.
func nativeError(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	case errors.Is(err, zip.ErrFormat), errors.Is(err, zip.ErrAlgorithm), errors.Is(err, zip.ErrChecksum):
		return fmt.Errorf("%w: %s: %w", ErrFormat, name, err)
	case errors.Is(err, ErrSizeOverflow):
		return fmt.Errorf("%s: %w", name, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrIO, name, err)
	}
}

var _ Fallback = NativeFallback{}
