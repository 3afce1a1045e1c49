// Package cache implements a bounded, byte-budgeted LRU key/value store.
// Unlike a count-based LRU, eviction is driven by a fixed byte budget: each
// entry carries a size computed once at insertion, and set evicts the
// least-recently-used entries until the new entry fits.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/positivef/udo-sync/internal/metrics"
)

// ErrOversizedValue is returned by Set when a single value's size exceeds
// the cache's max byte budget. The entry is rejected outright rather than
// evicted down to nothing.
var ErrOversizedValue = errors.New("cache: value size exceeds max_bytes")

// DefaultMaxBytes is the default byte budget, 50 MiB.
const DefaultMaxBytes = 50 * 1024 * 1024

// SizeFunc computes the deterministic byte size of a value. Callers are
// responsible for a function that does not depend on mutable internal
// state of the value (e.g. shallow byte size of a serialized form).
type SizeFunc func(value any) int

type entry struct {
	key   string
	value any
	size  int
}

// Cache is a single-mutex, byte-budgeted LRU cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	maxBytes int
	size     SizeFunc
	ll       *list.List
	items    map[string]*list.Element

	current int64

	hits      uint64
	misses    uint64
	evictions uint64

	metrics *metrics.Registry
}

// Options configures a new Cache.
type Options struct {
	// MaxBytes is the total byte budget. Defaults to DefaultMaxBytes if <= 0.
	MaxBytes int
	// Size computes a value's byte size. Defaults to StringByteSize if nil.
	Size SizeFunc
	// Metrics receives hit/miss/eviction/utilization observations. A nil
	// Registry (the default) is a no-op.
	Metrics *metrics.Registry
}

// New constructs a Cache per Options.
func New(opts Options) *Cache {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	sizeFn := opts.Size
	if sizeFn == nil {
		sizeFn = StringByteSize
	}
	return &Cache{
		maxBytes: maxBytes,
		size:     sizeFn,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		metrics:  opts.Metrics,
	}
}

// StringByteSize is the default SizeFunc: the length in bytes of the
// value's string form for strings and []byte, or a small fixed overhead for
// anything else. Deliberately shallow — it does not walk nested containers.
func StringByteSize(value any) int {
	switch v := value.(type) {
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		return 64
	}
}

// Get returns the stored value and promotes key to most-recently-used.
// Does not mutate recency on a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		c.metrics.ObserveCache(0, 1, 0, c.utilizationLocked())
		return nil, false
	}
	c.ll.MoveToFront(el)
	atomic.AddUint64(&c.hits, 1)
	c.metrics.ObserveCache(1, 0, 0, c.utilizationLocked())
	return el.Value.(*entry).value, true
}

// utilizationLocked computes current/maxBytes. Caller must hold mu.
func (c *Cache) utilizationLocked() float64 {
	return float64(c.current) / float64(c.maxBytes)
}

// Set stores value under key, evicting least-recently-used entries until
// the new entry fits within the byte budget. Returns ErrOversizedValue if
// value alone exceeds the budget.
func (c *Cache) Set(key string, value any) error {
	sz := c.size(value)
	if sz > c.maxBytes {
		return ErrOversizedValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		c.current -= int64(old.size)
		c.ll.Remove(el)
		delete(c.items, key)
	}

	for c.current+int64(sz) > int64(c.maxBytes) && c.ll.Len() > 0 {
		c.evictOldest()
	}

	el := c.ll.PushFront(&entry{key: key, value: value, size: sz})
	c.items[key] = el
	c.current += int64(sz)
	c.metrics.ObserveCache(0, 0, 0, c.utilizationLocked())
	return nil
}

// evictOldest removes the least-recently-used entry. Caller must hold mu.
func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	c.current -= int64(ent.size)
	atomic.AddUint64(&c.evictions, 1)
	c.metrics.ObserveCache(0, 0, 1, c.utilizationLocked())
}

// Delete removes key if present, reporting whether it was found.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.ll.Remove(el)
	delete(c.items, key)
	c.current -= int64(el.Value.(*entry).size)
	return true
}

// Clear empties the cache, preserving cumulative hit/miss/eviction counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll = list.New()
	c.items = make(map[string]*list.Element)
	c.current = 0
}

// Len returns the number of entries currently stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	CurrentSize int64
	MaxBytes    int
	Utilization float64
	EntryCount  int
}

// Stats returns cumulative counters and current utilization.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	current := c.current
	count := c.ll.Len()
	c.mu.Unlock()

	return Stats{
		Hits:        atomic.LoadUint64(&c.hits),
		Misses:      atomic.LoadUint64(&c.misses),
		Evictions:   atomic.LoadUint64(&c.evictions),
		CurrentSize: current,
		MaxBytes:    c.maxBytes,
		Utilization: float64(current) / float64(c.maxBytes),
		EntryCount:  count,
	}
}

// ResetStatistics zeroes the cumulative hit/miss/eviction counters without
// touching stored entries.
func (c *Cache) ResetStatistics() {
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
	atomic.StoreUint64(&c.evictions, 0)
}
