// Package index builds the lookup structure for an archive's central
// directory.
//
// An Index is three parallel arrays ordered by name hash: the hash of every
// visible name, the record's offset within the central directory and a
// permutation restoring directory order. Lookups binary-search the hashes
// and confirm candidates against the raw name bytes, so no per-entry objects
// are allocated while building or probing.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/meigma/nestzip/internal/bytespan"
	"github.com/meigma/nestzip/internal/zipfmt"
	"github.com/meigma/nestzip/internal/ziptype"
)

// Multi-release layout.
const (
	MetaInfPrefix  = "META-INF/"
	VersionsPrefix = "META-INF/versions/"

	// BaseVersion is the version served by unversioned entries. Overrides
	// at or below it are never probed.
	BaseVersion = 8
)

// Index implements zipfmt.Visitor. It is safe for concurrent lookups once
// VisitEnd has returned.
type Index struct {
	filter Filter
	dir    []byte

	hashes    []int32
	offsets   Offsets
	positions []int32

	versions []int
	signed   bool
	cache    *headerCache
}

// Option configures an Index.
type Option func(*Index)

// WithFilter applies f to every record name during indexing.
func WithFilter(f Filter) Option {
	return func(x *Index) {
		x.filter = f
	}
}

// WithCacheSize sets the capacity of the decoded header cache.
func WithCacheSize(n int) Option {
	return func(x *Index) {
		x.cache = newHeaderCache(max(n, 0))
	}
}

// New returns an empty index ready to be passed to zipfmt.Parse.
func New(opts ...Option) *Index {
	x := &Index{}
	for _, opt := range opts {
		opt(x)
	}
	if x.cache == nil {
		x.cache = newHeaderCache(DefaultCacheSize)
	}
	return x
}

// VisitStart sizes the arrays for the declared record count.
func (x *Index) VisitStart(end *zipfmt.EndRecord, directory []byte) error {
	n := int(min(end.Count, uint64(len(directory)/zipfmt.CentralLen)))
	x.dir = directory
	x.hashes = make([]int32, 0, n)
	x.offsets = newOffsets(n, end.DirectorySize)
	x.positions = make([]int32, 0, n)
	return nil
}

// VisitRecord indexes one record if it passes the filter.
func (x *Index) VisitRecord(rec *zipfmt.CentralRecord, offset int) error {
	name, ok := x.visible(rec.Name)
	if !ok {
		return nil
	}
	if len(x.hashes) == maxEntries {
		return fmt.Errorf("%w: more than %d entries", ziptype.ErrSizeOverflow, maxEntries)
	}
	x.positions = append(x.positions, int32(len(x.hashes)))
	x.hashes = append(x.hashes, name.Hash())
	x.offsets = x.offsets.append(int64(offset))

	if name.HasPrefixString(VersionsPrefix) {
		x.noteVersion(name)
	}
	if name.HasPrefixString(MetaInfPrefix) && name.HasSuffixString(".SF") {
		x.signed = true
	}
	return nil
}

// VisitEnd sorts the arrays by hash and inverts the position permutation.
func (x *Index) VisitEnd() error {
	sort.Sort(byHash{x})
	// positions[slot] holds the directory position of slot; invert it so
	// positions[p] holds the slot of directory position p.
	inverse := make([]int32, len(x.positions))
	for slot, p := range x.positions {
		inverse[p] = int32(slot)
	}
	x.positions = inverse
	slices.Sort(x.versions)
	slices.Reverse(x.versions)
	return nil
}

const maxEntries = 1<<31 - 1

func (x *Index) noteVersion(name *bytespan.Span) {
	rest := name.Bytes()[len(VersionsPrefix):]
	end := bytes.IndexByte(rest, '/')
	if end <= 0 {
		return
	}
	v, ok := parseVersion(rest[:end])
	if !ok || v <= BaseVersion {
		return
	}
	if !slices.Contains(x.versions, v) {
		x.versions = append(x.versions, v)
	}
}

// parseVersion reads a decimal version directory name without allocating.
func parseVersion(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 9 {
		return 0, false
	}
	v := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	return v, true
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	return len(x.hashes)
}

// Signed reports whether a signature file was indexed.
func (x *Index) Signed() bool {
	return x.signed
}

// Versions returns the override versions present, highest first.
func (x *Index) Versions() []int {
	return slices.Clone(x.versions)
}

// Lookup returns the slot of the entry named name. A name recorded with a
// trailing slash also matches without it.
func (x *Index) Lookup(name string) (int, bool) {
	if slot, ok := x.find(bytespan.HashString(name), name, bytespan.NoSuffix); ok {
		return slot, true
	}
	if strings.HasSuffix(name, "/") {
		return -1, false
	}
	return x.find(bytespan.HashStringSuffix(name, '/'), name, '/')
}

// LookupVersioned probes version overrides of name from runtime down to the
// lowest present version above BaseVersion before falling back to name
// itself. The second result is the name of the record that matched.
func (x *Index) LookupVersioned(name string, runtime int) (int, string, bool) {
	if runtime > BaseVersion && !strings.HasPrefix(name, MetaInfPrefix) {
		for _, v := range x.versions {
			if v > runtime {
				continue
			}
			versioned := VersionsPrefix + strconv.Itoa(v) + "/" + name
			if slot, ok := x.Lookup(versioned); ok {
				return slot, versioned, true
			}
		}
	}
	slot, ok := x.Lookup(name)
	return slot, name, ok
}

func (x *Index) find(hash int32, name string, suffix rune) (int, bool) {
	n := len(x.hashes)
	i := sort.Search(n, func(i int) bool { return x.hashes[i] >= hash })
	for ; i < n && x.hashes[i] == hash; i++ {
		if x.nameAt(i).Matches(name, suffix) {
			return i, true
		}
	}
	return -1, false
}

// nameAt returns the visible name of slot without decoding the full record.
func (x *Index) nameAt(slot int) *bytespan.Span {
	off := int(x.offsets.Get(slot))
	nameLen := int(binary.LittleEndian.Uint16(x.dir[off+28:]))
	raw := bytespan.New(x.dir[off+zipfmt.CentralLen : off+zipfmt.CentralLen+nameLen])
	name, _ := x.visible(raw)
	return name
}

func (x *Index) visible(name *bytespan.Span) (*bytespan.Span, bool) {
	if x.filter == nil {
		return name, true
	}
	return x.filter(name)
}

// Record returns the decoded central record of slot with its visible name.
func (x *Index) Record(slot int) (*zipfmt.CentralRecord, error) {
	if slot < 0 || slot >= len(x.hashes) {
		return nil, fmt.Errorf("%w: slot %d of %d", ziptype.ErrOutOfRange, slot, len(x.hashes))
	}
	if rec, ok := x.cache.lookup(slot); ok {
		return rec, nil
	}
	rec, err := zipfmt.ReadCentralRecord(x.dir, int(x.offsets.Get(slot)))
	if err != nil {
		return nil, err
	}
	name, ok := x.visible(rec.Name)
	if !ok {
		return nil, fmt.Errorf("%w: record %s no longer passes its filter", ziptype.ErrFormat, rec.Name)
	}
	rec.Name = name
	x.cache.store(slot, rec)
	return rec, nil
}

// Position returns the directory order position of slot.
// Offsets grow with directory position, so the position is found by binary
// search over the inverted permutation.
func (x *Index) Position(slot int) int {
	target := x.offsets.Get(slot)
	return sort.Search(len(x.positions), func(p int) bool {
		return x.offsets.Get(int(x.positions[p])) >= target
	})
}

// Slot returns the slot holding directory position p.
func (x *Index) Slot(p int) int {
	return int(x.positions[p])
}

// All yields every slot in directory order.
func (x *Index) All() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for p, slot := range x.positions {
			if !yield(p, int(slot)) {
				return
			}
		}
	}
}

// CachedHeaders returns the number of decoded headers currently cached.
func (x *Index) CachedHeaders() int {
	return x.cache.len()
}

// byHash sorts the three arrays jointly by hash.
type byHash struct{ x *Index }

func (s byHash) Len() int           { return len(s.x.hashes) }
func (s byHash) Less(i, j int) bool { return s.x.hashes[i] < s.x.hashes[j] }
func (s byHash) Swap(i, j int) {
	s.x.hashes[i], s.x.hashes[j] = s.x.hashes[j], s.x.hashes[i]
	s.x.offsets.Swap(i, j)
	s.x.positions[i], s.x.positions[j] = s.x.positions[j], s.x.positions[i]
}

var _ zipfmt.Visitor = (*Index)(nil)
