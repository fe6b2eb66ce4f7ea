package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the freshness window used when none is configured
const DefaultTTL = time.Hour

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// TTL is an in-memory key/value cache whose entries expire after a fixed duration.
// Entries are never refreshed in place; a Put replaces the whole entry.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
	hits    int64
	misses  int64
}

// New creates a cache with the given ttl
func New[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (c *TTL[V]) WithClock(now func() time.Time) *TTL[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the cached value when an entry exists and is younger than the ttl.
// Stale entries are reported as absent but left in place until overwritten.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.createdAt) >= c.ttl {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores value under key, stamped with the current time
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, createdAt: c.now()}
}

// Clear drops every entry
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
	c.hits, c.misses = 0, 0
}

// Len returns the number of stored entries, stale ones included
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats describes cache contents grouped by key prefix
type Stats struct {
	Total    int            `json:"total"`
	Fresh    int            `json:"fresh"`
	ByPrefix map[string]int `json:"by_prefix"`
	Hits     int64          `json:"hits"`
	Misses   int64          `json:"misses"`
}

// Stats counts entries by the key segment before sep
func (c *TTL[V]) Stats(sep string) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	st := Stats{
		Total:    len(c.entries),
		ByPrefix: make(map[string]int),
		Hits:     c.hits,
		Misses:   c.misses,
	}
	for k, e := range c.entries {
		prefix := k
		if i := strings.Index(k, sep); i >= 0 {
			prefix = k[:i]
		}
		st.ByPrefix[prefix]++
		if now.Sub(e.createdAt) < c.ttl {
			st.Fresh++
		}
	}
	return st
}
