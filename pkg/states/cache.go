package states

import (
	"sync"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// Entry is one cached upstream snapshot.
type Entry[T any] struct {
	// Value is the raw upstream record.
	Value T

	// RefreshedAt is when the entry was last replaced.
	RefreshedAt time.Time
}

// Cache holds the most recently refreshed upstream record per entity. Each
// State owns a cache of its own record type, so a read can never observe a
// record belonging to another category. Entries are replaced atomically on
// refresh and shared read-only by all subscriptions within a cycle.
//
// A failed refresh never touches the cache, so readers keep seeing the
// last-known-good entry.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[stream.EntityID]Entry[T]
}

// NewCache creates an empty cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[stream.EntityID]Entry[T])}
}

// Get returns the entry for an entity, and whether one exists.
func (c *Cache[T]) Get(entity stream.EntityID) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[entity]
	return entry, ok
}

// Put atomically replaces the entry for an entity.
func (c *Cache[T]) Put(entity stream.EntityID, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entity] = Entry[T]{Value: value, RefreshedAt: time.Now()}
}

// Len returns the number of cached entities.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
