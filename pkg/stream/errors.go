package stream

import "errors"

// Streaming errors. Failures are discriminated with errors.Is; callers and
// implementations wrap these sentinels with %w and context.
var (
	// ErrRefreshFailed indicates the upstream source was unavailable during
	// a cache refresh. Transient: the previous cache entry is retained and
	// the refresh is retried next cycle.
	ErrRefreshFailed = errors.New("cache refresh failed")

	// ErrNoCacheEntry indicates a read against an entity whose cache was
	// never populated.
	ErrNoCacheEntry = errors.New("no cache entry")

	// ErrFilterInvalid indicates a malformed RequestContext. Terminal for
	// the subscription that supplied it.
	ErrFilterInvalid = errors.New("invalid filter context")

	// ErrSendFailed indicates a transport-level delivery failure (broken
	// connection, timeout). Terminal: the subscription is removed and its
	// emitter completed with error.
	ErrSendFailed = errors.New("send failed")

	// ErrEmitterCompleted is reported by sends against an already
	// completed emitter.
	ErrEmitterCompleted = errors.New("emitter already completed")

	// ErrRegistrationFailed indicates the initial send failed before the
	// subscription was ever added. Registry state is unaffected.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrCategoryNotRegistered indicates no State implementation is bound
	// to the requested category.
	ErrCategoryNotRegistered = errors.New("state category not registered")
)
