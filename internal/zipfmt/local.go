package zipfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/nestzip/internal/region"
	"github.com/meigma/nestzip/internal/ziptype"
)

// DataOffset reads the local file header at off and returns the offset of the
// entry payload that follows it.
//
// The name and extra lengths are taken from the local header itself; some
// producers write a different extra field there than in the central
// directory.
func DataOffset(r *region.Region, off int64) (int64, error) {
	h, err := r.Read(off, LocalLen)
	if err != nil {
		return 0, err
	}
	if binary.LittleEndian.Uint32(h) != LocalSignature {
		return 0, fmt.Errorf("%w: bad local header signature at %d", ziptype.ErrFormat, off)
	}
	nameLen := int64(binary.LittleEndian.Uint16(h[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(h[28:]))
	return off + LocalLen + nameLen + extraLen, nil
}

// Payload returns the sub-region holding the compressed payload of an entry
// whose local header is at off.
func Payload(r *region.Region, off int64, compressedSize uint64) (*region.Region, error) {
	start, err := DataOffset(r, off)
	if err != nil {
		return nil, err
	}
	if compressedSize > uint64(r.Size()) {
		return nil, fmt.Errorf("%w: payload of %d bytes at %d", ziptype.ErrOutOfRange, compressedSize, start)
	}
	return r.Subsection(start, int64(compressedSize))
}
