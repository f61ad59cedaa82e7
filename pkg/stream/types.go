package stream

// EntityID identifies the business object being tracked (an order, a
// delivery, a merchant). Opaque and immutable once assigned.
type EntityID string

// Category selects which State implementation governs a subscription.
// The set is closed and bound to implementations at startup.
type Category uint8

const (
	// CategoryOrder streams order progress.
	CategoryOrder Category = 1

	// CategoryDelivery streams delivery/courier status.
	CategoryDelivery Category = 2

	// CategoryMerchant streams merchant activity.
	CategoryMerchant Category = 3
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryOrder:
		return "ORDER"
	case CategoryDelivery:
		return "DELIVERY"
	case CategoryMerchant:
		return "MERCHANT"
	default:
		return "UNKNOWN"
	}
}

// RequestContext carries the session identity and filter criteria supplied
// at registration. It is immutable for the life of the subscription and is
// passed unchanged to every filtered read.
type RequestContext struct {
	sessionID string
	fields    map[string]string
}

// NewRequestContext builds a RequestContext, copying the filter fields so
// later mutation by the caller cannot leak into live subscriptions.
func NewRequestContext(sessionID string, fields map[string]string) RequestContext {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return RequestContext{sessionID: sessionID, fields: copied}
}

// SessionID returns the session identifier, unique per client connection.
func (rc RequestContext) SessionID() string {
	return rc.sessionID
}

// Field returns the filter field value for key, and whether it was supplied.
func (rc RequestContext) Field(key string) (string, bool) {
	v, ok := rc.fields[key]
	return v, ok
}

// Key identifies a subscription: one session may hold at most one
// subscription per (entity, category) pair.
type Key struct {
	Entity   EntityID
	Category Category
	Session  string
}

// Subscription is the live binding of one client session to one entity's
// state category. Created at registration, never mutated in place
// (re-registration replaces), destroyed on removal.
type Subscription struct {
	Entity   EntityID
	Category Category
	Context  RequestContext
	Emitter  Emitter
}

// Key returns the registry key for this subscription.
func (s *Subscription) Key() Key {
	return Key{Entity: s.Entity, Category: s.Category, Session: s.Context.SessionID()}
}
