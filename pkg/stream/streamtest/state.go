package streamtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// FakeState is an in-memory stream.State with a controllable upstream.
// A refresh copies the upstream value for an entity into the cache; a
// fetch renders the cached value, optionally tagged with a request
// context field so context-dependent output is assertable.
type FakeState struct {
	mu            sync.Mutex
	upstream      map[stream.EntityID]string
	cache         map[stream.EntityID]string
	refreshCounts map[stream.EntityID]int
	refreshErr    error
	refreshDelay  time.Duration
	fetchErr      error
	tagField      string
}

// NewFakeState creates a state with an empty upstream and cache.
func NewFakeState() *FakeState {
	return &FakeState{
		upstream:      make(map[stream.EntityID]string),
		cache:         make(map[stream.EntityID]string),
		refreshCounts: make(map[stream.EntityID]int),
	}
}

// SetUpstream sets the value the next refresh will pull for entity.
func (s *FakeState) SetUpstream(entity stream.EntityID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstream[entity] = value
}

// FailRefreshes makes every subsequent refresh return err without
// touching the cache.
func (s *FakeState) FailRefreshes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshErr = err
}

// DelayRefreshes makes every subsequent refresh block for d before
// completing. The delay honors context cancellation.
func (s *FakeState) DelayRefreshes(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailFetches makes every subsequent fetch return err.
func (s *FakeState) FailFetches(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// TagWithField makes rendered values include the named request context
// field, so tests can verify per-subscription shaping.
func (s *FakeState) TagWithField(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagField = key
}

// RefreshCount returns how many refreshes ran for entity.
func (s *FakeState) RefreshCount(entity stream.EntityID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCounts[entity]
}

// RefreshCache copies the upstream value for entity into the cache.
func (s *FakeState) RefreshCache(ctx context.Context, entity stream.EntityID) error {
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", stream.ErrRefreshFailed, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCounts[entity]++
	if s.refreshErr != nil {
		return fmt.Errorf("%w: %w", stream.ErrRefreshFailed, s.refreshErr)
	}
	value, ok := s.upstream[entity]
	if !ok {
		return fmt.Errorf("%w: no upstream record for %s", stream.ErrRefreshFailed, entity)
	}
	s.cache[entity] = value
	return nil
}

// FetchData renders the cached value for entity.
func (s *FakeState) FetchData(entity stream.EntityID, rc stream.RequestContext) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	value, ok := s.cache[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", stream.ErrNoCacheEntry, entity)
	}
	if s.tagField != "" {
		if tag, ok := rc.Field(s.tagField); ok {
			return []byte(value + "|" + tag), nil
		}
	}
	return []byte(value), nil
}

var _ stream.State = (*FakeState)(nil)
