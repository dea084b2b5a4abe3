package bytespan

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/meigma/nestzip/internal/ziptype"
)

// NoSuffix disables the virtual trailing character in Matches.
const NoSuffix rune = -1

// hashSet marks the cached hash as computed.
const hashSet = uint64(1) << 32

// Span is an immutable view over a shared byte slice.
//
// Spans must not be copied after first use; pass them by pointer.
type Span struct {
	data []byte
	hash atomic.Uint64
	str  atomic.Pointer[string]
}

// New returns a span over b. The bytes are shared, not copied, and must not
// be modified while the span is in use.
func New(b []byte) *Span {
	return &Span{data: b}
}

// FromString returns a span over the bytes of s.
func FromString(s string) *Span {
	sp := &Span{data: []byte(s)}
	sp.str.Store(&s)
	return sp
}

// Len returns the number of bytes in the span.
func (s *Span) Len() int {
	return len(s.data)
}

// Bytes returns the span's bytes. The returned slice aliases the backing
// array and must be treated as read-only.
func (s *Span) Bytes() []byte {
	return s.data
}

// HasPrefix reports whether the span begins with the bytes of other.
func (s *Span) HasPrefix(other *Span) bool {
	return bytes.HasPrefix(s.data, other.data)
}

// HasSuffix reports whether the span ends with the bytes of other.
func (s *Span) HasSuffix(other *Span) bool {
	return bytes.HasSuffix(s.data, other.data)
}

// HasPrefixString reports whether the span begins with the bytes of prefix.
func (s *Span) HasPrefixString(prefix string) bool {
	return len(s.data) >= len(prefix) && string(s.data[:len(prefix)]) == prefix
}

// HasSuffixString reports whether the span ends with the bytes of suffix.
func (s *Span) HasSuffixString(suffix string) bool {
	return len(s.data) >= len(suffix) && string(s.data[len(s.data)-len(suffix):]) == suffix
}

// Substring returns the span covering bytes [begin, end) of s. The backing
// array is shared.
func (s *Span) Substring(begin, end int) (*Span, error) {
	if begin < 0 || end > len(s.data) || begin > end {
		return nil, fmt.Errorf("%w: substring [%d,%d) of %d bytes", ziptype.ErrOutOfRange, begin, end, len(s.data))
	}
	return &Span{data: s.data[begin:end:end]}, nil
}

// SubstringFrom returns the span covering bytes [begin, Len()) of s.
func (s *Span) SubstringFrom(begin int) (*Span, error) {
	return s.Substring(begin, len(s.data))
}

// Equal reports whether both spans hold the same bytes.
func (s *Span) Equal(other *Span) bool {
	return bytes.Equal(s.data, other.data)
}

// Matches reports whether the decoded content of the span equals name
// followed by suffix. Pass NoSuffix to compare against name alone.
//
// The span is decoded one scalar at a time and the comparison stops at the
// first mismatch, so a miss rarely touches more than a few bytes. Bytes
// that are not valid UTF-8 on either side are compared raw, so names in a
// legacy code page only match themselves.
func (s *Span) Matches(name string, suffix rune) bool {
	b := s.data
	pos := 0
	for i := 0; i < len(name); {
		if pos >= len(b) {
			return false
		}
		c := name[i]
		if c < utf8.RuneSelf && b[pos] < utf8.RuneSelf {
			if c != b[pos] {
				return false
			}
			i++
			pos++
			continue
		}
		want, wn := utf8.DecodeRuneInString(name[i:])
		got, gn := utf8.DecodeRune(b[pos:])
		if invalid(want, wn) || invalid(got, gn) {
			if c != b[pos] {
				return false
			}
			i++
			pos++
			continue
		}
		if want != got {
			return false
		}
		i += wn
		pos += gn
	}
	if suffix != NoSuffix {
		if pos >= len(b) {
			return false
		}
		got, gn := utf8.DecodeRune(b[pos:])
		if got != suffix || invalid(got, gn) {
			return false
		}
		pos += gn
	}
	return pos == len(b)
}

func invalid(r rune, size int) bool {
	return r == utf8.RuneError && size == 1
}

// Hash returns the 31-based polynomial hash of the span's UTF-16 code units.
// It equals HashString of the decoded text.
func (s *Span) Hash() int32 {
	if v := s.hash.Load(); v&hashSet != 0 {
		return int32(uint32(v)) //nolint:gosec // low 32 bits hold the hash
	}
	h := hashBytes(0, s.data)
	s.hash.Store(hashSet | uint64(uint32(h))) //nolint:gosec // reinterpretation, not conversion
	return h
}

// String returns the span's text. Bytes that are not valid UTF-8 are kept
// as they are, so the result matches and hashes like the span itself.
func (s *Span) String() string {
	if p := s.str.Load(); p != nil {
		return *p
	}
	str := string(s.data)
	s.str.Store(&str)
	return str
}

// HashString returns the hash of s using the same code-unit semantics as
// Span.Hash.
func HashString(s string) int32 {
	var h int32
	for _, r := range s {
		h = hashRune(h, r)
	}
	return h
}

// HashStringSuffix returns the hash of s followed by suffix without
// building the concatenated string.
func HashStringSuffix(s string, suffix rune) int32 {
	h := HashString(s)
	if suffix == NoSuffix {
		return h
	}
	return hashRune(h, suffix)
}

func hashBytes(h int32, b []byte) int32 {
	for i := 0; i < len(b); {
		if c := b[i]; c < utf8.RuneSelf {
			h = 31*h + int32(c)
			i++
			continue
		}
		r, n := utf8.DecodeRune(b[i:])
		h = hashRune(h, r)
		i += n
	}
	return h
}

// hashRune folds r into h as one code unit, or as a surrogate pair for
// scalars outside the basic multilingual plane.
func hashRune(h int32, r rune) int32 {
	if r >= 0x10000 {
		hi, lo := utf16.EncodeRune(r)
		h = 31*h + hi
		return 31*h + lo
	}
	return 31*h + r
}
