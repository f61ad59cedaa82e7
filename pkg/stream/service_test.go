package stream_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
	"github.com/pulsefeed/pulsefeed-go/pkg/stream/streamtest"
)

func newTestService(state *streamtest.FakeState) *stream.Service {
	s := stream.NewService(testConfig(), nil)
	s.RegisterCategory(stream.CategoryOrder, state)
	return s
}

func TestServiceRegisterPrimesSynchronously(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", `{"status":"PLACED"}`)
	svc := newTestService(state)

	emitter := streamtest.NewRecordingEmitter()
	rc := stream.NewRequestContext("sess-a", nil)
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, emitter); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The initial snapshot arrives before Register returns.
	if emitter.SendCount() != 1 {
		t.Fatalf("expected 1 priming send, got %d", emitter.SendCount())
	}
	update := decodeLast(t, emitter)
	if !update.Priming {
		t.Error("initial update must be marked priming")
	}
	if update.Cycle != 0 {
		t.Errorf("priming update cycle = %d, want 0", update.Cycle)
	}
	if string(update.Data) != `{"status":"PLACED"}` {
		t.Errorf("priming data = %s", update.Data)
	}
	if svc.SubscriptionCount() != 1 {
		t.Errorf("expected 1 subscription, got %d", svc.SubscriptionCount())
	}
}

func TestServiceRegisterRefreshesColdEntity(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "fresh")
	svc := newTestService(state)

	emitter := streamtest.NewRecordingEmitter()
	rc := stream.NewRequestContext("sess-a", nil)
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, emitter); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// No prior cycle had run, so registration triggered the refresh itself.
	if got := state.RefreshCount("order-1"); got != 1 {
		t.Errorf("expected 1 registration-time refresh, got %d", got)
	}
	if got := string(decodeLast(t, emitter).Data); got != "fresh" {
		t.Errorf("priming data = %q", got)
	}
}

func TestServiceRegisterServesWarmCacheWithoutRefresh(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "warm")
	svc := newTestService(state)

	// Warm the cache via a first registration plus cycle.
	first := streamtest.NewRecordingEmitter()
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, stream.NewRequestContext("sess-a", nil), first); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	refreshes := state.RefreshCount("order-1")

	// A second registration for the same entity is served from cache.
	second := streamtest.NewRecordingEmitter()
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, stream.NewRequestContext("sess-b", nil), second); err != nil {
		t.Fatalf("second register failed: %v", err)
	}

	if got := state.RefreshCount("order-1"); got != refreshes {
		t.Errorf("warm registration refreshed (%d -> %d)", refreshes, got)
	}
	if second.SendCount() != 1 {
		t.Errorf("expected immediate priming from cache, got %d sends", second.SendCount())
	}
}

func TestServiceRegisterFailsWhenRefreshFails(t *testing.T) {
	state := streamtest.NewFakeState()
	state.FailRefreshes(errors.New("upstream down"))
	svc := newTestService(state)

	emitter := streamtest.NewRecordingEmitter()
	err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, stream.NewRequestContext("sess-a", nil), emitter)

	if !errors.Is(err, stream.ErrRegistrationFailed) {
		t.Fatalf("expected registration failure, got %v", err)
	}
	if svc.SubscriptionCount() != 0 {
		t.Error("failed registration must leave the registry untouched")
	}
	if emitter.SendCount() != 0 {
		t.Error("failed registration must send nothing")
	}
}

func TestServiceRegisterFailsWhenInitialSendFails(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	emitter := streamtest.NewRecordingEmitter()
	emitter.FailSends(errors.New("client gone"))

	err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, stream.NewRequestContext("sess-a", nil), emitter)

	if !errors.Is(err, stream.ErrRegistrationFailed) {
		t.Fatalf("expected registration failure, got %v", err)
	}
	if svc.SubscriptionCount() != 0 {
		t.Error("a subscription whose initial send failed must not register")
	}
}

func TestServiceRegisterUnknownCategory(t *testing.T) {
	svc := newTestService(streamtest.NewFakeState())

	err := svc.Register(context.Background(), "m-1", stream.CategoryMerchant, stream.NewRequestContext("sess-a", nil), streamtest.NewRecordingEmitter())
	if !errors.Is(err, stream.ErrCategoryNotRegistered) {
		t.Fatalf("expected category-not-registered, got %v", err)
	}
}

func TestServiceReRegisterReplacesAndCompletesPrior(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	old := streamtest.NewRecordingEmitter()
	rc := stream.NewRequestContext("sess-a", nil)
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, old); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	replacement := streamtest.NewRecordingEmitter()
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, replacement); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	if svc.SubscriptionCount() != 1 {
		t.Errorf("expected 1 subscription after replacement, got %d", svc.SubscriptionCount())
	}
	if completed, cause := old.Completed(); !completed || cause != nil {
		t.Errorf("replaced emitter completed=%v cause=%v, want clean completion", completed, cause)
	}

	// Only the replacement receives subsequent cycles.
	oldCount := old.SendCount()
	svc.RunCycle(context.Background())
	if old.SendCount() != oldCount {
		t.Error("replaced emitter must not receive cycle updates")
	}
	if replacement.SendCount() != 2 {
		t.Errorf("replacement sends = %d, want priming + 1 cycle", replacement.SendCount())
	}
}

func TestServiceEmitterCallSequence(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	emitter := &streamtest.MockEmitter{}
	emitter.On("Send", mock.Anything).Return(nil)
	emitter.On("Complete").Return()

	rc := stream.NewRequestContext("sess-a", nil)
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, emitter); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	svc.RunCycle(context.Background())
	svc.Unregister("order-1", stream.CategoryOrder, "sess-a")

	// Priming send, one cycle send, one clean completion; the error-path
	// completion never fires for a healthy subscription.
	emitter.AssertExpectations(t)
	emitter.AssertNumberOfCalls(t, "Send", 2)
	emitter.AssertNumberOfCalls(t, "Complete", 1)
	emitter.AssertNotCalled(t, "CompleteWithError", mock.Anything)
}

func TestServiceUnregisterIsIdempotent(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	emitter := streamtest.NewRecordingEmitter()
	if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, stream.NewRequestContext("sess-a", nil), emitter); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	svc.Unregister("order-1", stream.CategoryOrder, "sess-a")
	svc.Unregister("order-1", stream.CategoryOrder, "sess-a") // no-op
	svc.Unregister("order-9", stream.CategoryOrder, "sess-a") // never existed

	if svc.SubscriptionCount() != 0 {
		t.Errorf("expected empty registry, got %d", svc.SubscriptionCount())
	}
	if completed, cause := emitter.Completed(); !completed || cause != nil {
		t.Errorf("unregistered emitter completed=%v cause=%v, want clean completion", completed, cause)
	}
}

func TestServiceStopCompletesEmitters(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	emitters := make([]*streamtest.RecordingEmitter, 3)
	for i := range emitters {
		emitters[i] = streamtest.NewRecordingEmitter()
		rc := stream.NewRequestContext(fmt.Sprintf("sess-%d", i), nil)
		if err := svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, emitters[i]); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	svc.Start()
	svc.Stop()

	if svc.SubscriptionCount() != 0 {
		t.Errorf("expected empty registry after stop, got %d", svc.SubscriptionCount())
	}
	for i, emitter := range emitters {
		if completed, _ := emitter.Completed(); !completed {
			t.Errorf("emitter %d not completed at shutdown", i)
		}
	}
}

func TestServiceSubscriptionCounts(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	state.SetUpstream("order-2", "data")
	svc := newTestService(state)

	for i, entity := range []stream.EntityID{"order-1", "order-1", "order-2"} {
		rc := stream.NewRequestContext(fmt.Sprintf("sess-%d", i), nil)
		if err := svc.Register(context.Background(), entity, stream.CategoryOrder, rc, streamtest.NewRecordingEmitter()); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	counts := svc.SubscriptionCounts()
	if counts[stream.CategoryOrder] != 3 {
		t.Errorf("order count = %d, want 3", counts[stream.CategoryOrder])
	}
}

// A storm of registrations, removals and explicit cycles must never
// half-register a subscription: every emitter either receives its priming
// payload and participates, or is never registered at all.
func TestServiceConcurrentChurn(t *testing.T) {
	const sessions = 1000

	state := streamtest.NewFakeState()
	state.SetUpstream("order-1", "data")
	svc := newTestService(state)

	var wg sync.WaitGroup
	errs := make([]error, sessions)
	emitters := make([]*streamtest.RecordingEmitter, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitters[i] = streamtest.NewRecordingEmitter()
			rc := stream.NewRequestContext(fmt.Sprintf("sess-%d", i), nil)
			errs[i] = svc.Register(context.Background(), "order-1", stream.CategoryOrder, rc, emitters[i])
			if i%3 == 0 {
				svc.Unregister("order-1", stream.CategoryOrder, fmt.Sprintf("sess-%d", i))
			}
		}(i)
	}
	// Cycles run concurrently with the churn.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			svc.RunCycle(context.Background())
		}
	}()
	wg.Wait()

	registered := 0
	for i := 0; i < sessions; i++ {
		if errs[i] != nil {
			t.Fatalf("register %d failed: %v", i, errs[i])
		}
		// Atomicity: a successful registration always primed the emitter.
		if emitters[i].SendCount() < 1 {
			t.Errorf("session %d registered without a priming send", i)
		}
		if i%3 != 0 {
			registered++
		}
	}
	if got := svc.SubscriptionCount(); got != registered {
		t.Errorf("surviving subscriptions = %d, want %d", got, registered)
	}
}
