package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pulsefeed/pulsefeed-go/pkg/log"
	"github.com/pulsefeed/pulsefeed-go/pkg/wire"
)

// Service wires the registry, the state categories and the broadcast cycle
// engine together, and exposes register/unregister to the transport layer.
type Service struct {
	mu     sync.RWMutex
	states map[Category]State

	registry *Registry
	engine   *Engine
	logger   log.Logger
}

// NewService creates a stream service with the given engine configuration.
func NewService(cfg Config, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NoopLogger{}
	}

	s := &Service{
		states:   make(map[Category]State),
		registry: NewRegistry(),
		logger:   logger,
	}
	s.engine = NewEngine(cfg, s.registry, s.state, logger)
	return s
}

// RegisterCategory binds a category to its State implementation.
// Startup-time configuration; bindings are not expected to change at runtime.
func (s *Service) RegisterCategory(category Category, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[category] = state
}

// state resolves the implementation bound to a category.
func (s *Service) state(category Category) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[category]
	return state, ok
}

// Start begins periodic broadcast cycles.
func (s *Service) Start() {
	s.engine.Start()
}

// Stop halts periodic cycles, completes all remaining emitters and clears
// the registry. Subscriptions do not survive shutdown.
func (s *Service) Stop() {
	s.engine.Stop()
	for _, sub := range s.registry.Clear() {
		sub.Emitter.Complete()
	}
}

// Register subscribes a client session to one entity's state category and
// sends the initial payload synchronously. If the entity has no cache entry
// yet, a synchronous refresh runs first; otherwise the existing cache is
// served immediately for low first-byte latency (staleness bounded by the
// cycle interval).
//
// The subscription enters the registry only after the initial send
// succeeds: a failed initial send never registers and leaves registry state
// untouched. Re-registering an existing (entity, category, session) triple
// replaces the prior subscription and completes its emitter.
func (s *Service) Register(ctx context.Context, entity EntityID, category Category, rc RequestContext, emitter Emitter) error {
	state, ok := s.state(category)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCategoryNotRegistered, category)
	}

	pair := pairKey{category: category, entity: entity}

	data, err := state.FetchData(entity, rc)
	if errors.Is(err, ErrNoCacheEntry) {
		if rerr := s.engine.refresh(ctx, state, pair); rerr != nil {
			return s.rejectRegistration(entity, category, rc, rerr)
		}
		data, err = state.FetchData(entity, rc)
	}
	if err != nil {
		return s.rejectRegistration(entity, category, rc, err)
	}

	payload, err := wire.EncodeUpdate(wire.Update{
		Category:  uint8(category),
		Entity:    string(entity),
		Priming:   true,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return s.rejectRegistration(entity, category, rc, err)
	}

	if err := s.engine.send(emitter, payload); err != nil {
		return s.rejectRegistration(entity, category, rc, err)
	}

	sub := &Subscription{
		Entity:   entity,
		Category: category,
		Context:  rc,
		Emitter:  emitter,
	}
	if prev := s.registry.Add(sub); prev != nil {
		// Same triple re-registered: the replaced connection is done.
		prev.Emitter.Complete()
	}

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Kind:      log.KindSubscribed,
		Category:  uint8(category),
		Entity:    string(entity),
		Session:   rc.SessionID(),
	})
	return nil
}

// rejectRegistration logs and wraps a failed registration. Nothing was
// added to the registry; the caller reports the error to its client.
func (s *Service) rejectRegistration(entity EntityID, category Category, rc RequestContext, cause error) error {
	err := fmt.Errorf("%w: %v", ErrRegistrationFailed, cause)
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Kind:      log.KindRegistrationRejected,
		Category:  uint8(category),
		Entity:    string(entity),
		Session:   rc.SessionID(),
		Error:     cause.Error(),
	})
	return err
}

// Unregister removes a subscription and completes its emitter. Idempotent:
// unregistering an absent triple is a no-op, safe to call repeatedly and
// concurrently with a running cycle.
func (s *Service) Unregister(entity EntityID, category Category, session string) {
	key := Key{Entity: entity, Category: category, Session: session}
	sub, removed := s.registry.Remove(key)
	if !removed {
		return
	}

	sub.Emitter.Complete()
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Kind:      log.KindUnsubscribed,
		Category:  uint8(category),
		Entity:    string(entity),
		Session:   session,
	})
}

// RunCycle executes one broadcast cycle immediately, outside the ticker.
func (s *Service) RunCycle(ctx context.Context) CycleStats {
	return s.engine.RunCycle(ctx)
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Service) SubscriptionCount() int {
	return s.registry.Len()
}

// SubscriptionCounts returns active subscription counts per category.
func (s *Service) SubscriptionCounts() map[Category]int {
	return s.registry.Counts()
}
