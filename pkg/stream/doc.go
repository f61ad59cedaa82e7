// Package stream implements the live state streaming core: a concurrent
// subscription registry plus the periodic refresh-and-fan-out engine.
//
// Clients subscribe to one entity (an order, a delivery, a merchant) under
// one state category and receive a client-specific filtered view of that
// entity's cached state on every broadcast cycle.
//
// # Broadcast Cycle
//
// The engine runs on a fixed interval. Each cycle takes a point-in-time
// snapshot of the registry, partitions it by (category, entity), refreshes
// each pair's cache exactly once regardless of subscriber count, and then
// fans filtered payloads out to every live subscription with bounded
// concurrency. Cycles never overlap; a cycle that outlasts the interval
// causes ticks to be dropped, not stacked.
//
// # Single-Flight Refresh
//
// Cache refreshes are deduplicated per (category, entity) pair. N subscribers
// to the same pair cause one upstream call, and a registration-time refresh
// that races a cycle's refresh reuses the in-flight result.
//
// # Failure Isolation
//
// A refresh failure marks its pair degraded for the cycle: subscribers keep
// their subscription and are served the last-known-good cache entry if one
// exists. A send or filter failure is terminal for that one subscription
// only; it never affects siblings, the running cycle, or future cycles.
//
// # Lifecycle
//
// Subscriptions are born at registration (only after a successful initial
// send), live across zero or more cycles, and die at explicit unregistration,
// terminal send failure, or service shutdown. Nothing is persisted.
package stream
