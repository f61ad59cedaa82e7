package states

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// DeliveryRecord is the raw upstream snapshot of one delivery.
type DeliveryRecord struct {
	ID        string
	OrderID   string
	CourierID string
	Status    string
	Lat       float64
	Lng       float64
	UpdatedAt time.Time
}

// DeliverySource is the upstream a DeliveryState refreshes from.
type DeliverySource interface {
	Delivery(ctx context.Context, id stream.EntityID) (*DeliveryRecord, error)
}

// DeliveryState streams delivery status. Filter field "precision" is
// "exact" (default) or "coarse"; coarse rounds courier coordinates to two
// decimals (roughly a city block) for customer-facing views.
type DeliveryState struct {
	source DeliverySource
	cache  *Cache[*DeliveryRecord]
}

// NewDeliveryState creates a delivery state backed by the given source.
func NewDeliveryState(source DeliverySource) *DeliveryState {
	return &DeliveryState{source: source, cache: NewCache[*DeliveryRecord]()}
}

// RefreshCache fetches the current delivery snapshot and replaces the cache
// entry. On upstream failure the previous entry is retained.
func (s *DeliveryState) RefreshCache(ctx context.Context, entity stream.EntityID) error {
	record, err := s.source.Delivery(ctx, entity)
	if err != nil {
		return fmt.Errorf("%w: delivery %s: %v", stream.ErrRefreshFailed, entity, err)
	}
	s.cache.Put(entity, record)
	return nil
}

// FetchData returns the filtered JSON view of the cached delivery.
func (s *DeliveryState) FetchData(entity stream.EntityID, rc stream.RequestContext) ([]byte, error) {
	entry, ok := s.cache.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: delivery %s", stream.ErrNoCacheEntry, entity)
	}
	record := entry.Value

	precision, ok := rc.Field("precision")
	if !ok {
		precision = "exact"
	}

	lat, lng := record.Lat, record.Lng
	switch precision {
	case "exact":
		// Courier and merchant views see raw coordinates.
	case "coarse":
		lat = math.Round(lat*100) / 100
		lng = math.Round(lng*100) / 100
	default:
		return nil, fmt.Errorf("%w: unknown precision %q", stream.ErrFilterInvalid, precision)
	}

	return json.Marshal(map[string]any{
		"id":         record.ID,
		"order_id":   record.OrderID,
		"courier_id": record.CourierID,
		"status":     record.Status,
		"lat":        lat,
		"lng":        lng,
		"updated_at": record.UpdatedAt,
	})
}

// Compile-time interface satisfaction check.
var _ stream.State = (*DeliveryState)(nil)
