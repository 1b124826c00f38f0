package cachemon

import (
	"github.com/allegro/bigcache/v3"
)

// BigCacheAdapter makes an allegro/bigcache instance observable through the
// Monitorable contract. BigCache's byte queue cannot shrink to an arbitrary
// target, so Clean falls back to a full Reset when the cache is over target.
type BigCacheAdapter struct {
	cache *bigcache.BigCache
}

// compile-time contract check
var _ Monitorable = (*BigCacheAdapter)(nil)

// NewBigCacheAdapter wraps an existing BigCache instance.
func NewBigCacheAdapter(cache *bigcache.BigCache) *BigCacheAdapter {
	return &BigCacheAdapter{cache: cache}
}

// SizeBytes reports the bytes held by the underlying byte queues.
func (a *BigCacheAdapter) SizeBytes() uint64 {
	return uint64(a.cache.Capacity())
}

// Clean clears the cache when it exceeds targetBytes. BigCache offers no
// partial-shrink operation, so over-target means a full reset.
func (a *BigCacheAdapter) Clean(targetBytes uint64) {
	if a.SizeBytes() > targetBytes {
		_ = a.cache.Reset()
	}
}

// Clear drops all entries.
func (a *BigCacheAdapter) Clear() {
	_ = a.cache.Reset()
}

// Stats maps BigCache counters onto the Monitorable stats shape.
func (a *BigCacheAdapter) Stats() Stats {
	s := a.cache.Stats()
	return Stats{
		Entries:   a.cache.Len(),
		SizeBytes: a.SizeBytes(),
		Hits:      uint64(s.Hits),
		Misses:    uint64(s.Misses),
		Evictions: uint64(s.DelHits),
	}
}
