package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pulsefeed/pulsefeed-go/pkg/log"
	"github.com/pulsefeed/pulsefeed-go/pkg/wire"
)

// pairKey identifies one (category, entity) refresh unit within a cycle.
type pairKey struct {
	category Category
	entity   EntityID
}

func (p pairKey) String() string {
	return p.category.String() + "/" + string(p.entity)
}

// CycleStats reports what one broadcast cycle did.
type CycleStats struct {
	// Cycle is the monotonic cycle counter.
	Cycle uint64

	// Subscriptions visited by the cycle's registry snapshot.
	Subscriptions int

	// Pairs is the number of distinct (category, entity) pairs refreshed.
	Pairs int

	// Degraded is the number of pairs whose refresh failed.
	Degraded int

	// Sent is the number of successful deliveries.
	Sent int

	// Failed is the number of subscriptions terminally removed.
	Failed int

	// Skipped is the number of subscriptions skipped this cycle.
	Skipped int
}

// Engine is the periodic driver: it snapshots the registry, refreshes each
// subscribed (category, entity) pair exactly once, and fans filtered
// payloads out to every live subscription.
//
// Cycles run sequentially on one goroutine; a cycle that outlasts the
// interval causes ticker ticks to be dropped rather than overlapped. The
// singleflight group additionally guards against a registration-time
// refresh racing the cycle's refresh for the same pair.
type Engine struct {
	cfg      Config
	registry *Registry
	stateFor func(Category) (State, bool)
	logger   log.Logger

	refreshGroup singleflight.Group
	cycleCount   atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a broadcast cycle engine. stateFor resolves the State
// implementation bound to a category; it must be safe for concurrent use.
func NewEngine(cfg Config, registry *Registry, stateFor func(Category) (State, bool), logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		registry: registry,
		stateFor: stateFor,
		logger:   logger,
	}
}

// Start begins periodic broadcast cycles.
func (e *Engine) Start() {
	if e.running.Swap(true) {
		return // Already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts periodic cycles and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return // Not running
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// run drives cycles on the configured interval until ctx is cancelled.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle executes one broadcast cycle and returns its stats. It is
// exported so callers (and tests) can drive cycles without the ticker.
// No failure inside a cycle propagates out of it.
func (e *Engine) RunCycle(ctx context.Context) CycleStats {
	stats := CycleStats{Cycle: e.cycleCount.Add(1)}

	snapshot := e.registry.Snapshot()
	stats.Subscriptions = len(snapshot)
	if len(snapshot) == 0 {
		return stats
	}

	// Partition the snapshot by (category, entity): N subscribers to the
	// same pair cause one refresh, not N.
	pairs := make(map[pairKey]struct{})
	for _, sub := range snapshot {
		pairs[pairKey{category: sub.Category, entity: sub.Entity}] = struct{}{}
	}
	stats.Pairs = len(pairs)

	// Refresh phase. Pairs refresh in parallel; the singleflight group
	// serializes duplicate triggers for the same pair. No refresh failure
	// escapes this phase: a failed pair is marked degraded and its
	// subscribers are served stale data below.
	var (
		degradedMu sync.Mutex
		degraded   = make(map[pairKey]bool)
	)
	var refreshes errgroup.Group
	for pair := range pairs {
		refreshes.Go(func() error {
			state, ok := e.stateFor(pair.category)
			if !ok {
				// Category unbound: nothing to refresh, fetch below
				// will drop the affected subscriptions.
				return nil
			}
			if err := e.refresh(ctx, state, pair); err != nil {
				degradedMu.Lock()
				degraded[pair] = true
				degradedMu.Unlock()
				e.logger.Log(log.Event{
					Timestamp: time.Now(),
					Kind:      log.KindRefreshFailed,
					Category:  uint8(pair.category),
					Entity:    string(pair.entity),
					Cycle:     stats.Cycle,
					Error:     err.Error(),
				})
			}
			return nil
		})
	}
	// Refresh strictly precedes every dependent read in this cycle.
	_ = refreshes.Wait()
	stats.Degraded = len(degraded)

	// Send phase. Each subscription is fetched and dispatched in isolation
	// under a bounded worker group; one broken or slow client affects
	// nobody else.
	var sent, failed, skipped atomic.Int64
	var sends errgroup.Group
	sends.SetLimit(e.cfg.MaxConcurrentSends)
	for _, sub := range snapshot {
		sends.Go(func() error {
			pair := pairKey{category: sub.Category, entity: sub.Entity}
			switch e.deliver(stats.Cycle, sub, degraded[pair]) {
			case deliverSent:
				sent.Add(1)
			case deliverFailed:
				failed.Add(1)
			case deliverSkipped:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = sends.Wait()

	stats.Sent = int(sent.Load())
	stats.Failed = int(failed.Load())
	stats.Skipped = int(skipped.Load())

	e.logger.Log(log.Event{
		Timestamp: time.Now(),
		Kind:      log.KindCycle,
		Cycle:     stats.Cycle,
		Summary: &log.CycleSummary{
			Subscriptions: stats.Subscriptions,
			Pairs:         stats.Pairs,
			Degraded:      stats.Degraded,
			Sent:          stats.Sent,
			Failed:        stats.Failed,
			Skipped:       stats.Skipped,
		},
	})
	return stats
}

// refresh performs a single-flight cache refresh for one pair, bounded by
// the refresh timeout. The bound holds even if the upstream call ignores
// its context: the call is abandoned, not waited on.
func (e *Engine) refresh(ctx context.Context, state State, pair pairKey) error {
	result := e.refreshGroup.DoChan(pair.String(), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RefreshTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- state.RefreshCache(rctx, pair.entity)
		}()

		select {
		case err := <-done:
			return nil, err
		case <-rctx.Done():
			return nil, fmt.Errorf("%w: refresh timed out after %s", ErrRefreshFailed, e.cfg.RefreshTimeout)
		}
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRefreshFailed, ctx.Err())
	}
}

type deliverOutcome uint8

const (
	deliverSent deliverOutcome = iota
	deliverFailed
	deliverSkipped
)

// deliver fetches the filtered view for one subscription and sends it.
// Failures remove only this subscription; a degraded pair with no cache
// entry is skipped and retried next cycle.
func (e *Engine) deliver(cycle uint64, sub *Subscription, degraded bool) deliverOutcome {
	key := sub.Key()

	// Liveness check: a subscription removed mid-cycle receives nothing.
	if !e.registry.Contains(key) {
		return deliverSkipped
	}

	state, ok := e.stateFor(sub.Category)
	if !ok {
		e.drop(sub, cycle, ErrCategoryNotRegistered)
		return deliverFailed
	}

	data, err := state.FetchData(sub.Entity, sub.Context)
	if err != nil {
		if degraded && errors.Is(err, ErrNoCacheEntry) {
			// Never-refreshed entity under a failed refresh: keep the
			// subscription, retry next cycle.
			return deliverSkipped
		}
		e.drop(sub, cycle, err)
		return deliverFailed
	}

	payload, err := wire.EncodeUpdate(wire.Update{
		Category:  uint8(sub.Category),
		Entity:    string(sub.Entity),
		Cycle:     cycle,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		e.drop(sub, cycle, err)
		return deliverFailed
	}

	if err := e.send(sub.Emitter, payload); err != nil {
		e.registry.RemoveSub(sub)
		sub.Emitter.CompleteWithError(err)
		e.logger.Log(log.Event{
			Timestamp: time.Now(),
			Kind:      log.KindSendFailed,
			Category:  uint8(sub.Category),
			Entity:    string(sub.Entity),
			Session:   key.Session,
			Cycle:     cycle,
			Error:     err.Error(),
		})
		return deliverFailed
	}

	return deliverSent
}

// drop terminally removes a subscription after a fetch or filter failure.
// Removal is by identity so a replacement under the same triple survives.
func (e *Engine) drop(sub *Subscription, cycle uint64, cause error) {
	key := sub.Key()
	e.registry.RemoveSub(sub)
	sub.Emitter.CompleteWithError(cause)
	e.logger.Log(log.Event{
		Timestamp: time.Now(),
		Kind:      log.KindSubscriptionDropped,
		Category:  uint8(sub.Category),
		Entity:    string(sub.Entity),
		Session:   key.Session,
		Cycle:     cycle,
		Error:     cause.Error(),
	})
}

// send dispatches one payload under the send timeout. A send that exceeds
// the timeout is a send failure even if the emitter later returns; the
// stuck goroutine drains into its buffered channel.
func (e *Engine) send(emitter Emitter, payload []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- emitter.Send(payload)
	}()

	timer := time.NewTimer(e.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: send timed out after %s", ErrSendFailed, e.cfg.SendTimeout)
	}
}
