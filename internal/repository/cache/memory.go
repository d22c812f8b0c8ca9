package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/geoclash/maptiles/pkg/metrics"
)

type entry struct {
	key  Key
	tile Tile
}

// MemoryCache is the bounded in-memory tile cache. Eviction is strictly
// insertion order: the first tile fetched is the first evicted, regardless
// of access recency. Expiry is checked lazily on Get; an expired entry that
// is never looked up keeps its slot until capacity pressure evicts it.
type MemoryCache struct {
	mu       sync.Mutex
	maxTiles int
	expiry   time.Duration
	items    map[Key]*list.Element
	order    *list.List

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

// NewMemoryCache creates a cache holding at most maxTiles entries. A zero
// expiry disables time-based expiry.
func NewMemoryCache(maxTiles int, expiry time.Duration) *MemoryCache {
	return &MemoryCache{
		maxTiles: maxTiles,
		expiry:   expiry,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the tile for k. Found is false when the key is absent or the
// entry has outlived the configured expiry; an expired entry is removed as
// a side effect so the next lookup triggers a fresh fetch.
func (c *MemoryCache) Get(k Key) (Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return Tile{}, false
	}

	ent := elem.Value.(*entry)
	if c.expired(ent.tile) {
		c.order.Remove(elem)
		delete(c.items, k)
		c.misses++
		metrics.CacheMisses.Inc()
		return Tile{}, false
	}

	c.hits++
	metrics.CacheHits.Inc()
	return ent.tile, true
}

func (c *MemoryCache) expired(t Tile) bool {
	if c.expiry <= 0 || t.FetchedAt.IsZero() {
		return false
	}
	return c.now().Sub(t.FetchedAt) > c.expiry
}

// Put inserts or replaces the tile for k. Inserting a new key at capacity
// evicts the oldest inserted entry first.
func (c *MemoryCache) Put(k Key, t Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		elem.Value.(*entry).tile = t
		metrics.CacheStores.Inc()
		return
	}

	if c.maxTiles > 0 && c.order.Len() >= c.maxTiles {
		oldest := c.order.Front()
		if oldest != nil {
			delete(c.items, oldest.Value.(*entry).key)
			c.order.Remove(oldest)
			c.evictions++
			metrics.CacheEvictions.Inc()
		}
	}

	c.items[k] = c.order.PushBack(&entry{key: k, tile: t})
	metrics.CacheStores.Inc()
}

// Invalidate removes every entry. Hit and miss counters survive.
func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element)
	c.order.Init()
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats snapshots the cache counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := 0
	for e := c.order.Front(); e != nil; e = e.Next() {
		if e.Value.(*entry).tile.Failed {
			failed++
		}
	}

	return Stats{
		Count:       c.order.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		FailedCount: failed,
	}
}
