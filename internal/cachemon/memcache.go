package cachemon

import (
	"sync"
	"time"
)

// MemoryCache is a TTL-based in-memory byte cache with size accounting.
// It is the reference Monitorable implementation: Clean evicts expired
// entries first, then least-recently-accessed entries, until the cache
// fits the target size.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	size    uint64
	ttl     time.Duration

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

type memEntry struct {
	value      []byte
	size       uint64
	expiresAt  time.Time
	lastAccess time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl.
// A non-positive ttl means entries never expire on their own.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set stores value under key, replacing any previous entry.
func (c *MemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if old, ok := c.entries[key]; ok {
		c.size -= old.size
	}

	e := &memEntry{
		value:      value,
		size:       uint64(len(key) + len(value)),
		lastAccess: now,
	}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.entries[key] = e
	c.size += e.size
}

// Get returns the value stored under key. Expired entries count as misses
// and are removed on access.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.now()
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		c.size -= e.size
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	e.lastAccess = now
	c.hits++
	return e.value, true
}

// Delete removes an entry if present.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.size -= e.size
		delete(c.entries, key)
	}
}

// SizeBytes returns the accounted byte size of all live entries.
func (c *MemoryCache) SizeBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Clean evicts entries until the cache size is at or below targetBytes.
// Expired entries go first, then least-recently-accessed entries.
func (c *MemoryCache) Clean(targetBytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size <= targetBytes {
		return
	}

	now := c.now()
	for key, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			c.size -= e.size
			delete(c.entries, key)
			c.evictions++
			if c.size <= targetBytes {
				return
			}
		}
	}

	// Still over target: evict coldest entries. The map is small relative
	// to a request path cache, so a linear scan per eviction is acceptable.
	for c.size > targetBytes && len(c.entries) > 0 {
		var coldestKey string
		var coldest time.Time
		for key, e := range c.entries {
			if coldestKey == "" || e.lastAccess.Before(coldest) {
				coldestKey = key
				coldest = e.lastAccess
			}
		}
		e := c.entries[coldestKey]
		c.size -= e.size
		delete(c.entries, coldestKey)
		c.evictions++
	}
}

// Clear drops all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictions += uint64(len(c.entries))
	c.entries = make(map[string]*memEntry)
	c.size = 0
}

// Stats returns a snapshot of contents and traffic counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		SizeBytes: c.size,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
