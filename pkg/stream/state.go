package stream

import "context"

// State owns the cache for one state category and produces filtered,
// serialized views of it. One implementation exists per Category; the
// binding is established at startup via Service.RegisterCategory.
//
// Refresh and read are separate operations coordinated by the engine:
// RefreshCache strictly precedes dependent FetchData calls within a cycle,
// and FetchData never blocks waiting for a refresh it did not request.
type State interface {
	// RefreshCache fetches current upstream data for the entity and
	// atomically replaces its cache entry. On failure it returns an error
	// wrapping ErrRefreshFailed and retains the previous entry, so
	// subscribers keep receiving the last-known-good snapshot.
	RefreshCache(ctx context.Context, entity EntityID) error

	// FetchData reads the current cache entry and applies the context's
	// filter, returning a serialized representation. It returns an error
	// wrapping ErrNoCacheEntry if the entity was never refreshed, or
	// ErrFilterInvalid if the context is malformed.
	FetchData(entity EntityID, rc RequestContext) ([]byte, error)
}
