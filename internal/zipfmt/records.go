package zipfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Record signatures. Each begins with the "PK" marker.
const (
	CentralSignature      uint32 = 0x02014b50
	LocalSignature        uint32 = 0x04034b50
	EndSignature          uint32 = 0x06054b50
	Zip64EndSignature     uint32 = 0x06064b50
	Zip64LocatorSignature uint32 = 0x07064b50
)

// Fixed record lengths.
const (
	EndLen          = 22
	Zip64LocatorLen = 20
	Zip64EndLen     = 56
	CentralLen      = 46
	LocalLen        = 30
)

// Zip64ExtraTag identifies the Zip64 extended information extra field.
const Zip64ExtraTag uint16 = 0x0001

const (
	maxCommentLen = 0xffff
	sat16         = 0xffff
	sat32         = 0xffffffff
)

// FlagUTF8 marks names and comments as UTF-8 encoded.
const FlagUTF8 uint16 = 0x0800

// EndRecord is the decoded end of central directory, with Zip64 values
// substituted where the 32-bit fields are saturated.
type EndRecord struct {
	// Count is the total number of central directory records.
	Count uint64

	// DirectorySize is the length of the central directory in bytes.
	DirectorySize uint64

	// DirectoryOffset is the offset of the central directory relative to
	// the start of the archive.
	DirectoryOffset uint64

	// Comment is the raw archive comment.
	Comment []byte

	// Zip64 reports whether the Zip64 end record supplied any value.
	Zip64 bool

	// Offset is the position of the end record within the searched region.
	Offset int64

	// Zip64Offset is the position of the Zip64 end record, or -1.
	Zip64Offset int64

	// Prefix is the number of bytes preceding the archive. It is only
	// non-zero for a root archive with a stub in front of it.
	Prefix int64
}

// FindEnd scans backward from the end of r for the end of central directory
// record and resolves its Zip64 counterpart when required.
func FindEnd(r *region.Region) (*EndRecord, error) {
	size := r.Size()
	if size < EndLen {
		return nil, fmt.Errorf("%w: %d bytes is too small for an end record", ziptype.ErrFormat, size)
	}
	tailLen := min(size, EndLen+maxCommentLen)
	tailStart := size - tailLen
	tail, err := r.Read(tailStart, tailLen)
	if err != nil {
		return nil, err
	}

	for p := len(tail) - EndLen; p >= 0; p-- {
		if binary.LittleEndian.Uint32(tail[p:]) != EndSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(tail[p+20:]))
		if p+EndLen+commentLen > len(tail) {
			continue
		}
		rec := tail[p : p+EndLen]
		end := &EndRecord{
			Count:           uint64(binary.LittleEndian.Uint16(rec[10:])),
			DirectorySize:   uint64(binary.LittleEndian.Uint32(rec[12:])),
			DirectoryOffset: uint64(binary.LittleEndian.Uint32(rec[16:])),
			Comment:         tail[p+EndLen : p+EndLen+commentLen],
			Offset:          tailStart + int64(p),
			Zip64Offset:     -1,
		}
		if end.Count == sat16 || end.DirectorySize == sat32 || end.DirectoryOffset == sat32 {
			if err := readZip64End(r, end); err != nil {
				return nil, err
			}
		}
		return end, nil
	}
	return nil, fmt.Errorf("%w: end of central directory not found", ziptype.ErrFormat)
}

// readZip64End reads the locator preceding the end record and then the Zip64
// end record it points to. The locator's offset is relative to the archive
// start, which differs from the region start when a prefix is present, so the
// record immediately before the locator is tried next.
func readZip64End(r *region.Region, end *EndRecord) error {
	locPos := end.Offset - Zip64LocatorLen
	if locPos < 0 {
		return fmt.Errorf("%w: zip64 locator missing", ziptype.ErrFormat)
	}
	loc, err := r.Read(locPos, Zip64LocatorLen)
	if err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(loc) != Zip64LocatorSignature {
		return fmt.Errorf("%w: zip64 locator missing", ziptype.ErrFormat)
	}
	declared := binary.LittleEndian.Uint64(loc[8:])

	adjacent := locPos - Zip64EndLen
	if adjacent < 0 {
		return fmt.Errorf("%w: zip64 end record not found", ziptype.ErrFormat)
	}
	candidates := []int64{adjacent}
	if declared < uint64(adjacent) {
		candidates = []int64{int64(declared), adjacent}
	}
	for _, pos := range candidates {
		rec, err := r.Read(pos, Zip64EndLen)
		if err != nil {
			return err
		}
		if binary.LittleEndian.Uint32(rec) != Zip64EndSignature {
			continue
		}
		if end.Count == sat16 {
			end.Count = binary.LittleEndian.Uint64(rec[32:])
		}
		if end.DirectorySize == sat32 {
			end.DirectorySize = binary.LittleEndian.Uint64(rec[40:])
		}
		if end.DirectoryOffset == sat32 {
			end.DirectoryOffset = binary.LittleEndian.Uint64(rec[48:])
		}
		end.Zip64 = true
		end.Zip64Offset = pos
		return nil
	}
	return fmt.Errorf("%w: zip64 end record not found", ziptype.ErrFormat)
}

// archiveStart computes where the archive really begins within the region:
// the central directory ends where the (Zip64) end record starts.
func (e *EndRecord) archiveStart() (int64, error) {
	dirEnd := e.Offset
	if e.Zip64Offset >= 0 {
		dirEnd = e.Zip64Offset
	}
	if e.DirectorySize > uint64(dirEnd) || e.DirectoryOffset > uint64(dirEnd)-e.DirectorySize {
		return 0, fmt.Errorf("%w: central directory [%d,+%d) precedes the start of the file",
			ziptype.ErrFormat, e.DirectoryOffset, e.DirectorySize)
	}
	return dirEnd - int64(e.DirectorySize) - int64(e.DirectoryOffset), nil
}
