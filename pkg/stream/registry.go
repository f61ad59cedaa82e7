package stream

import (
	"hash/fnv"
	"sync"
)

// shardCount is the number of registry lock stripes. Sixteen keeps
// connect/disconnect contention low without a measurable footprint.
const shardCount = 16

// Registry is the concurrency-safe store of active subscriptions, keyed by
// (entity, category, session). Locking is striped by key hash so that
// client connects and disconnects are not serialized behind cycle duration.
//
// Invariant: no duplicate triple. A snapshot taken for iteration is never
// mutated in place; removals act on the live registry.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu   sync.RWMutex
	subs map[Key]*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].subs = make(map[Key]*Subscription)
	}
	return r
}

func (r *Registry) shardFor(key Key) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(key.Entity))
	h.Write([]byte{byte(key.Category)})
	h.Write([]byte(key.Session))
	return &r.shards[h.Sum32()%shardCount]
}

// Add inserts the subscription, replacing any existing entry for the same
// triple. It returns the replaced subscription, or nil if the key was free.
// Idempotent under retry.
func (r *Registry) Add(sub *Subscription) *Subscription {
	key := sub.Key()
	shard := r.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	prev := shard.subs[key]
	shard.subs[key] = sub
	return prev
}

// Remove deletes the entry for key if present and returns it. A missing key
// is a no-op, not an error: removal must be safe to call more than once and
// concurrently from both the cycle engine and external disconnect signals.
func (r *Registry) Remove(key Key) (*Subscription, bool) {
	shard := r.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	sub, exists := shard.subs[key]
	if exists {
		delete(shard.subs, key)
	}
	return sub, exists
}

// RemoveSub deletes the entry for sub's key only if the stored subscription
// is sub itself. The engine removes failed subscriptions this way: a failure
// observed against a stale snapshot must not evict a replacement that
// re-registered under the same triple mid-cycle.
func (r *Registry) RemoveSub(sub *Subscription) bool {
	key := sub.Key()
	shard := r.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	current, exists := shard.subs[key]
	if !exists || current != sub {
		return false
	}
	delete(shard.subs, key)
	return true
}

// Contains reports whether the key is currently registered. The engine
// consults this before each send so a subscription removed mid-cycle is
// not delivered to.
func (r *Registry) Contains(key Key) bool {
	shard := r.shardFor(key)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	_, exists := shard.subs[key]
	return exists
}

// Snapshot returns a point-in-time view of all entries. The returned slice
// is owned by the caller; long-running sends iterate it without holding any
// shard lock.
func (r *Registry) Snapshot() []*Subscription {
	snapshot := make([]*Subscription, 0, r.Len())
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		for _, sub := range shard.subs {
			snapshot = append(snapshot, sub)
		}
		shard.mu.RUnlock()
	}
	return snapshot
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	total := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		total += len(shard.subs)
		shard.mu.RUnlock()
	}
	return total
}

// Counts returns the number of active subscriptions per category.
func (r *Registry) Counts() map[Category]int {
	counts := make(map[Category]int)
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		for key := range shard.subs {
			counts[key.Category]++
		}
		shard.mu.RUnlock()
	}
	return counts
}

// Clear removes and returns all entries. Used at service shutdown so every
// remaining emitter can be completed.
func (r *Registry) Clear() []*Subscription {
	var removed []*Subscription
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for _, sub := range shard.subs {
			removed = append(removed, sub)
		}
		shard.subs = make(map[Key]*Subscription)
		shard.mu.Unlock()
	}
	return removed
}
