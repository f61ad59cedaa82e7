package log

import "time"

// Event represents a stream lifecycle event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Kind classifies the event.
	Kind Kind `cbor:"2,keyasint"`

	// Category is the numeric state category, when the event concerns one.
	Category uint8 `cbor:"3,keyasint,omitempty"`

	// Entity is the tracked entity identifier, when the event concerns one.
	Entity string `cbor:"4,keyasint,omitempty"`

	// Session is the client session identifier, when the event concerns one.
	Session string `cbor:"5,keyasint,omitempty"`

	// Cycle is the broadcast cycle counter, when the event occurred inside
	// a cycle.
	Cycle uint64 `cbor:"6,keyasint,omitempty"`

	// Error is the failure description for failure events.
	Error string `cbor:"7,keyasint,omitempty"`

	// Summary carries per-cycle counters for KindCycle events.
	Summary *CycleSummary `cbor:"8,keyasint,omitempty"`
}

// CycleSummary holds the counters of one broadcast cycle.
type CycleSummary struct {
	// Subscriptions visited by the cycle's snapshot.
	Subscriptions int `cbor:"1,keyasint"`

	// Pairs is the number of distinct (category, entity) pairs refreshed.
	Pairs int `cbor:"2,keyasint"`

	// Degraded is the number of pairs whose refresh failed this cycle.
	Degraded int `cbor:"3,keyasint"`

	// Sent is the number of successful payload deliveries.
	Sent int `cbor:"4,keyasint"`

	// Failed is the number of terminal per-subscription failures.
	Failed int `cbor:"5,keyasint"`

	// Skipped is the number of subscriptions skipped this cycle (removed
	// mid-cycle or degraded with no cache entry).
	Skipped int `cbor:"6,keyasint"`
}

// Kind classifies a stream event.
type Kind uint8

const (
	// KindSubscribed records a subscription entering the registry.
	KindSubscribed Kind = 1

	// KindUnsubscribed records an explicit unregistration.
	KindUnsubscribed Kind = 2

	// KindRefreshFailed records a failed cache refresh; the pair is served
	// stale for the cycle.
	KindRefreshFailed Kind = 3

	// KindSendFailed records a terminal delivery failure; the subscription
	// was removed.
	KindSendFailed Kind = 4

	// KindSubscriptionDropped records a terminal filter or fetch failure.
	KindSubscriptionDropped Kind = 5

	// KindCycle records a completed broadcast cycle with its summary.
	KindCycle Kind = 6

	// KindRegistrationRejected records a failed initial send; nothing was
	// added to the registry.
	KindRegistrationRejected Kind = 7
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindSubscribed:
		return "SUBSCRIBED"
	case KindUnsubscribed:
		return "UNSUBSCRIBED"
	case KindRefreshFailed:
		return "REFRESH_FAILED"
	case KindSendFailed:
		return "SEND_FAILED"
	case KindSubscriptionDropped:
		return "SUBSCRIPTION_DROPPED"
	case KindCycle:
		return "CYCLE"
	case KindRegistrationRejected:
		return "REGISTRATION_REJECTED"
	default:
		return "UNKNOWN"
	}
}
