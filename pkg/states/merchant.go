package states

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// MerchantRecord is the raw upstream snapshot of one merchant.
type MerchantRecord struct {
	ID             string
	Name           string
	Open           bool
	QueueLength    int
	AvgPrepMinutes int
	UpdatedAt      time.Time
}

// MerchantSource is the upstream a MerchantState refreshes from.
type MerchantSource interface {
	Merchant(ctx context.Context, id stream.EntityID) (*MerchantRecord, error)
}

// MerchantState streams merchant activity. Filter field "include_queue"
// ("true"/"false", default true) controls whether live queue figures are
// part of the view.
type MerchantState struct {
	source MerchantSource
	cache  *Cache[*MerchantRecord]
}

// NewMerchantState creates a merchant state backed by the given source.
func NewMerchantState(source MerchantSource) *MerchantState {
	return &MerchantState{source: source, cache: NewCache[*MerchantRecord]()}
}

// RefreshCache fetches the current merchant snapshot and replaces the cache
// entry. On upstream failure the previous entry is retained.
func (s *MerchantState) RefreshCache(ctx context.Context, entity stream.EntityID) error {
	record, err := s.source.Merchant(ctx, entity)
	if err != nil {
		return fmt.Errorf("%w: merchant %s: %v", stream.ErrRefreshFailed, entity, err)
	}
	s.cache.Put(entity, record)
	return nil
}

// FetchData returns the filtered JSON view of the cached merchant.
func (s *MerchantState) FetchData(entity stream.EntityID, rc stream.RequestContext) ([]byte, error) {
	entry, ok := s.cache.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: merchant %s", stream.ErrNoCacheEntry, entity)
	}
	record := entry.Value

	includeQueue := true
	if raw, ok := rc.Field("include_queue"); ok {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: include_queue %q", stream.ErrFilterInvalid, raw)
		}
		includeQueue = parsed
	}

	view := map[string]any{
		"id":         record.ID,
		"name":       record.Name,
		"open":       record.Open,
		"updated_at": record.UpdatedAt,
	}
	if includeQueue {
		view["queue_length"] = record.QueueLength
		view["avg_prep_minutes"] = record.AvgPrepMinutes
	}
	return json.Marshal(view)
}

// Compile-time interface satisfaction check.
var _ stream.State = (*MerchantState)(nil)
