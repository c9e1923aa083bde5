// Package gateway batches cohort analysis requests toward the external
// service, caches results by bucket fingerprint, and degrades through a
// circuit breaker when the service misbehaves. Submission is non-blocking;
// resolved results queue up until the simulation thread drains them at a
// tick boundary.
package gateway

import (
	"container/list"
	"sync"
	"time"

	"github.com/talgya/electorate/internal/analysis"
)

// Cache is a TTL + LRU result cache. Expired entries are evicted lazily on
// lookup; capacity pressure evicts least-recently-used entries eagerly on
// insert. Safe for concurrent use — workers read, the gateway writes.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	hits   int
	misses int
}

type cacheEntry struct {
	key     string
	result  analysis.Result
	created time.Time
}

// NewCache creates a cache with the given capacity and entry TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the unexpired result for key. An expired entry is removed
// and reported as a miss; a result is never served past its TTL.
func (c *Cache) Get(key string, now time.Time) (analysis.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return analysis.Result{}, false
	}

	entry := el.Value.(*cacheEntry)
	if now.Sub(entry.created) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return analysis.Result{}, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return entry.result, true
}

// Put stores a result, evicting the least-recently-used entry when over
// capacity. Fallback results are never cached — they carry no information
// worth serving later.
func (c *Cache) Put(key string, result analysis.Result, now time.Time) {
	if result.Fallback {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.created = now
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	el := c.order.PushFront(&cacheEntry{key: key, result: result, created: now})
	c.entries[key] = el
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HitRate returns the lifetime cache hit ratio, 0 when no lookups yet.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
