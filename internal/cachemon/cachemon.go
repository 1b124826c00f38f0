// Package cachemon defines the contract an in-process cache must implement
// to be observable by the memory guard, plus a reference implementation and
// an adapter for third-party container types.
package cachemon

// Stats is a point-in-time view of a cache's contents and traffic.
type Stats struct {
	Entries   int    `json:"entries"`
	SizeBytes uint64 `json:"size_bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Monitorable is the contract a cache must satisfy to be registered with the
// memory guard. The guard only reads SizeBytes/Stats and commands Clean/Clear;
// it never touches cache contents directly.
type Monitorable interface {
	// SizeBytes returns the approximate number of bytes held by the cache.
	SizeBytes() uint64

	// Clean shrinks the cache until its size is at or below targetBytes.
	// Implementations that cannot shrink incrementally may clear entirely.
	Clean(targetBytes uint64)

	// Clear drops all entries.
	Clear()

	// Stats returns current contents and traffic counters.
	Stats() Stats
}
