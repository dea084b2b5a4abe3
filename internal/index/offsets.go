package index

// Offsets holds the central directory offset of every indexed record.
// Archives whose directory fits in 32 bits use the compact variant.
type Offsets interface {
	Len() int
	Get(i int) int64
	Swap(i, j int)
	append(v int64) Offsets
}

type offsets32 []uint32

func (o offsets32) Len() int               { return len(o) }
func (o offsets32) Get(i int) int64        { return int64(o[i]) }
func (o offsets32) Swap(i, j int)          { o[i], o[j] = o[j], o[i] }
func (o offsets32) append(v int64) Offsets { return append(o, uint32(v)) }

type offsets64 []int64

func (o offsets64) Len() int               { return len(o) }
func (o offsets64) Get(i int) int64        { return o[i] }
func (o offsets64) Swap(i, j int)          { o[i], o[j] = o[j], o[i] }
func (o offsets64) append(v int64) Offsets { return append(o, v) }

// newOffsets picks the variant able to hold offsets up to dirSize.
func newOffsets(capacity int, dirSize uint64) Offsets {
	if dirSize <= 1<<32-1 {
		return make(offsets32, 0, capacity)
	}
	return make(offsets64, 0, capacity)
}
