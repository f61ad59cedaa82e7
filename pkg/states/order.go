package states

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// OrderRecord is the raw upstream snapshot of one order.
type OrderRecord struct {
	ID         string
	Status     string
	ItemCount  int
	TotalCents int64
	EtaMinutes int
	CourierID  string
	// Note is merchant-internal and never shown to customers.
	Note      string
	UpdatedAt time.Time
}

// OrderSource is the upstream an OrderState refreshes from.
type OrderSource interface {
	Order(ctx context.Context, id stream.EntityID) (*OrderRecord, error)
}

// OrderState streams order progress. Filter fields:
// "view" (customer|merchant, default customer) and "fields" (optional
// comma-separated projection of the view's keys).
type OrderState struct {
	source OrderSource
	cache  *Cache[*OrderRecord]
}

// NewOrderState creates an order state backed by the given source.
func NewOrderState(source OrderSource) *OrderState {
	return &OrderState{source: source, cache: NewCache[*OrderRecord]()}
}

// RefreshCache fetches the current order snapshot and replaces the cache
// entry. On upstream failure the previous entry is retained.
func (s *OrderState) RefreshCache(ctx context.Context, entity stream.EntityID) error {
	record, err := s.source.Order(ctx, entity)
	if err != nil {
		return fmt.Errorf("%w: order %s: %v", stream.ErrRefreshFailed, entity, err)
	}
	s.cache.Put(entity, record)
	return nil
}

// FetchData returns the filtered JSON view of the cached order.
func (s *OrderState) FetchData(entity stream.EntityID, rc stream.RequestContext) ([]byte, error) {
	entry, ok := s.cache.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: order %s", stream.ErrNoCacheEntry, entity)
	}
	view, err := orderView(entry.Value, rc)
	if err != nil {
		return nil, err
	}
	if view, err = projectFields(view, rc); err != nil {
		return nil, err
	}
	return json.Marshal(view)
}

// orderView builds the role-specific projection of an order.
func orderView(record *OrderRecord, rc stream.RequestContext) (map[string]any, error) {
	role, ok := rc.Field("view")
	if !ok {
		role = "customer"
	}

	switch role {
	case "customer":
		return map[string]any{
			"id":          record.ID,
			"status":      record.Status,
			"item_count":  record.ItemCount,
			"total_cents": record.TotalCents,
			"eta_minutes": record.EtaMinutes,
			"updated_at":  record.UpdatedAt,
		}, nil
	case "merchant":
		return map[string]any{
			"id":          record.ID,
			"status":      record.Status,
			"item_count":  record.ItemCount,
			"total_cents": record.TotalCents,
			"eta_minutes": record.EtaMinutes,
			"courier_id":  record.CourierID,
			"note":        record.Note,
			"updated_at":  record.UpdatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown view %q", stream.ErrFilterInvalid, role)
	}
}

// projectFields narrows a view to the comma-separated keys in the context's
// "fields" filter. Requesting a key the view does not have is a filter error.
func projectFields(view map[string]any, rc stream.RequestContext) (map[string]any, error) {
	spec, ok := rc.Field("fields")
	if !ok || spec == "" {
		return view, nil
	}

	projected := make(map[string]any)
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		value, exists := view[name]
		if !exists {
			return nil, fmt.Errorf("%w: unknown field %q", stream.ErrFilterInvalid, name)
		}
		projected[name] = value
	}
	return projected, nil
}

// Compile-time interface satisfaction check.
var _ stream.State = (*OrderState)(nil)
