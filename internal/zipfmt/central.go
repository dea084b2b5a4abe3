package zipfmt

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/meigma/nestzip/internal/bytespan"
	"github.com/meigma/nestzip/internal/ziptype"
)

// CentralRecord is one decoded central directory file header.
// Name, Extra and Comment share the directory buffer they were read from.
type CentralRecord struct {
	Name              *bytespan.Span
	Extra             []byte
	Comment           []byte
	VersionMadeBy     uint16
	Flags             uint16
	Method            ziptype.Method
	ModTime           uint16
	ModDate           uint16
	CRC32             uint32
	CompressedSize    uint64
	Size              uint64
	LocalHeaderOffset int64
	ExternalAttrs     uint32

	// Zip64 reports whether any value came from the Zip64 extra field.
	Zip64 bool
}

// RecordLen returns the length of the central header starting at off in dir:
// the fixed part plus its own name, extra and comment lengths.
func RecordLen(dir []byte, off int) (int, error) {
	if off < 0 || off > len(dir)-CentralLen {
		return 0, fmt.Errorf("%w: truncated central directory at %d", ziptype.ErrFormat, off)
	}
	h := dir[off:]
	if binary.LittleEndian.Uint32(h) != CentralSignature {
		return 0, fmt.Errorf("%w: bad central header signature at %d", ziptype.ErrFormat, off)
	}
	n := CentralLen +
		int(binary.LittleEndian.Uint16(h[28:])) +
		int(binary.LittleEndian.Uint16(h[30:])) +
		int(binary.LittleEndian.Uint16(h[32:]))
	if n > len(h) {
		return 0, fmt.Errorf("%w: central header at %d overruns the directory", ziptype.ErrFormat, off)
	}
	return n, nil
}

// ReadCentralRecord decodes the central header starting at off in dir.
func ReadCentralRecord(dir []byte, off int) (*CentralRecord, error) {
	n, err := RecordLen(dir, off)
	if err != nil {
		return nil, err
	}
	h := dir[off : off+n]
	nameLen := int(binary.LittleEndian.Uint16(h[28:]))
	extraLen := int(binary.LittleEndian.Uint16(h[30:]))
	name := h[CentralLen : CentralLen+nameLen]
	extra := h[CentralLen+nameLen : CentralLen+nameLen+extraLen]

	rec := &CentralRecord{
		Name:              bytespan.New(name[:len(name):len(name)]),
		Extra:             extra[:len(extra):len(extra)],
		Comment:           h[CentralLen+nameLen+extraLen:],
		VersionMadeBy:     binary.LittleEndian.Uint16(h[4:]),
		Flags:             binary.LittleEndian.Uint16(h[8:]),
		Method:            ziptype.Method(binary.LittleEndian.Uint16(h[10:])),
		ModTime:           binary.LittleEndian.Uint16(h[12:]),
		ModDate:           binary.LittleEndian.Uint16(h[14:]),
		CRC32:             binary.LittleEndian.Uint32(h[16:]),
		CompressedSize:    uint64(binary.LittleEndian.Uint32(h[20:])),
		Size:              uint64(binary.LittleEndian.Uint32(h[24:])),
		ExternalAttrs:     binary.LittleEndian.Uint32(h[38:]),
		LocalHeaderOffset: int64(binary.LittleEndian.Uint32(h[42:])),
	}
	if err := rec.applyZip64(); err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Name, err)
	}
	return rec, nil
}

// applyZip64 replaces saturated 32-bit fields with the values from the Zip64
// extra field. The extra field stores only the saturated values, in the
// order uncompressed size, compressed size, local header offset.
func (r *CentralRecord) applyZip64() error {
	needSize := r.Size == sat32
	needCompressed := r.CompressedSize == sat32
	needOffset := r.LocalHeaderOffset == sat32
	if !needSize && !needCompressed && !needOffset {
		return nil
	}

	field, ok := findExtra(r.Extra, Zip64ExtraTag)
	if !ok {
		return fmt.Errorf("%w: zip64 extra field missing", ziptype.ErrFormat)
	}
	next := func() (uint64, error) {
		if len(field) < 8 {
			return 0, fmt.Errorf("%w: zip64 extra field too short", ziptype.ErrFormat)
		}
		v := binary.LittleEndian.Uint64(field)
		field = field[8:]
		return v, nil
	}
	var err error
	if needSize {
		if r.Size, err = next(); err != nil {
			return err
		}
	}
	if needCompressed {
		if r.CompressedSize, err = next(); err != nil {
			return err
		}
	}
	if needOffset {
		var off uint64
		if off, err = next(); err != nil {
			return err
		}
		if off > math.MaxInt64 {
			return fmt.Errorf("%w: local header offset %d", ziptype.ErrSizeOverflow, off)
		}
		r.LocalHeaderOffset = int64(off)
	}
	r.Zip64 = true
	return nil
}

// findExtra returns the payload of the first extra block tagged tag.
func findExtra(extra []byte, tag uint16) ([]byte, bool) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			return nil, false
		}
		if id == tag {
			return extra[:size], true
		}
		extra = extra[size:]
	}
	return nil, false
}

// Entry converts the record to its public description.
func (r *CentralRecord) Entry() *ziptype.Entry {
	name := r.Name.String()
	return &ziptype.Entry{
		Name:              name,
		RealName:          name,
		Comment:           DecodeText(r.Comment, r.Flags),
		Method:            r.Method,
		Flags:             r.Flags,
		CRC32:             r.CRC32,
		CompressedSize:    r.CompressedSize,
		Size:              r.Size,
		LocalHeaderOffset: r.LocalHeaderOffset,
		Modified:          DOSTime(r.ModDate, r.ModTime),
		ExternalAttrs:     r.ExternalAttrs,
		Extra:             r.Extra,
	}
}
