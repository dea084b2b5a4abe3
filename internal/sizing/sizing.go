// Package sizing guards the size arithmetic done on values decoded from
// archive headers, which are untrusted.
package sizing

import (
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/meigma/nestzip/internal/ziptype"
)

// ToInt converts a declared entry size to an int buffer length.
func ToInt(size uint64) (int, error) {
	if size > math.MaxInt {
		return 0, fmt.Errorf("%w: %d does not fit in int", ziptype.ErrSizeOverflow, size)
	}
	return int(size), nil
}

// Within reports whether length bytes starting at off fit inside a region
// of total bytes.
func Within(off int64, length uint64, total int64) bool {
	if off < 0 || total < 0 || off > total {
		return false
	}
	end, carry := bits.Add64(uint64(off), length, 0)
	return carry == 0 && end <= uint64(total)
}

// ReadAllWithLimit reads r to EOF and fails with ErrSizeOverflow once it
// has produced more than limit bytes.
func ReadAllWithLimit(r io.Reader, limit uint64) ([]byte, error) {
	if limit >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: limit %d", ziptype.ErrSizeOverflow, limit)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1)) //nolint:gosec // checked above
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ziptype.ErrSizeOverflow, limit)
	}
	return data, nil
}
