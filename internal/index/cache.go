package index

import (
	"container/list"
	"sync"

	"github.com/meigma/nestzip/internal/zipfmt"
)

// DefaultCacheSize is the default number of decoded headers kept per index.
const DefaultCacheSize = 25

type cacheEntry struct {
	slot int
	rec  *zipfmt.CentralRecord
}

// headerCache is a strict LRU from index slot to decoded central record.
// A capacity of 0 disables caching.
type headerCache struct {
	mu       sync.Mutex
	capacity int
	items    map[int]*list.Element
	order    *list.List // front = most recently used
}

func newHeaderCache(capacity int) *headerCache {
	return &headerCache{
		capacity: capacity,
		items:    make(map[int]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *headerCache) lookup(slot int) (*zipfmt.CentralRecord, bool) {
	if c.capacity == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[slot]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).rec, true
}

func (c *headerCache) store(slot int, rec *zipfmt.CentralRecord) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[slot]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).rec = rec
		return
	}
	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			evicted := c.order.Remove(back).(*cacheEntry)
			delete(c.items, evicted.slot)
		}
	}
	c.items[slot] = c.order.PushFront(&cacheEntry{slot: slot, rec: rec})
}

func (c *headerCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
