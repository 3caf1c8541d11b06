package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Bounded TTL cache
// Shared by all scan workers; every cache instance is internally synchronized.
// Eviction is least-recently-inserted: when the cache is full, the oldest
// entry by insertion time makes room for the new one.
// ---------------------------------------------------------------------------

// Stats is a point-in-time snapshot of a cache's counters, pollable by an
// external resource monitor.
type Stats struct {
	Name        string `json:"name"`
	Size        int    `json:"size"`
	MaxSize     int    `json:"max_size"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Evictions   int64  `json:"evictions"`
	Expiries    int64  `json:"expiries"`
	ApproxBytes int64  `json:"approx_bytes"`
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	bytes      int64
}

// Cache is a size- and TTL-bounded key/value store.
// A Get never returns an entry older than the cache's TTL, and the live entry
// count never exceeds maxSize.
type Cache[V any] struct {
	name    string
	maxSize int
	ttl     time.Duration
	sizeOf  func(V) int

	mu      sync.Mutex
	entries map[string]*list.Element // key -> element in order
	order   *list.List               // insertion order, oldest at front

	hits      int64
	misses    int64
	evictions int64
	expiries  int64
	bytes     int64
}

// defaultEntryBytes is the accounting cost of an entry when no size function
// is provided.
const defaultEntryBytes = 64

// New creates a bounded TTL cache. sizeOf estimates a value's memory cost for
// the approx_bytes stat; pass nil to use a flat per-entry cost.
func New[V any](name string, maxSize int, ttl time.Duration, sizeOf func(V) int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[V]{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		sizeOf:  sizeOf,
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Get returns the value for key, or ok=false if it is absent or expired.
// Expired entries are removed on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if c.ttl > 0 && time.Since(ent.insertedAt) > c.ttl {
		c.removeLocked(el)
		c.expiries++
		c.misses++
		return zero, false
	}

	c.hits++
	return ent.value, true
}

// Set inserts or replaces the value for key. When the cache is at capacity,
// the least-recently-inserted entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	ent := &entry[V]{
		key:        key,
		value:      value,
		insertedAt: time.Now(),
		bytes:      c.entryBytes(key, value),
	}
	c.entries[key] = c.order.PushBack(ent)
	c.bytes += ent.bytes
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
	c.bytes = 0

	if n > 0 {
		log.Debug().Str("cache", c.name).Int("removed", n).Msg("cache: cleared")
	}
}

// Len returns the current live entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Name:        c.name,
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expiries:    c.expiries,
		ApproxBytes: c.bytes,
	}
}

// removeLocked unlinks an element from both index and order list.
// Caller must hold c.mu.
func (c *Cache[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	delete(c.entries, ent.key)
	c.order.Remove(el)
	c.bytes -= ent.bytes
}

func (c *Cache[V]) entryBytes(key string, value V) int64 {
	if c.sizeOf == nil {
		return int64(len(key)) + defaultEntryBytes
	}
	return int64(len(key) + c.sizeOf(value))
}
