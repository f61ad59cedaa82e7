package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
	"github.com/pulsefeed/pulsefeed-go/pkg/stream/streamtest"
	"github.com/pulsefeed/pulsefeed-go/pkg/wire"
)

func TestSSEEmitterSendWritesBase64Frame(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter := newSSEEmitter(rec, rec)

	if err := emitter.Send([]byte("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: update\ndata: ") {
		t.Errorf("unexpected frame: %q", body)
	}
	encoded := strings.TrimSpace(strings.TrimPrefix(body, "event: update\ndata: "))
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("data line is not base64: %v", err)
	}
	if string(decoded) != "hello" {
		t.Errorf("payload = %q", decoded)
	}
	if !rec.Flushed {
		t.Error("send must flush the frame")
	}
}

func TestSSEEmitterRejectsSendAfterComplete(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter := newSSEEmitter(rec, rec)

	emitter.Complete()
	emitter.Complete() // idempotent

	if err := emitter.Send([]byte("late")); !errors.Is(err, stream.ErrEmitterCompleted) {
		t.Errorf("expected completed error, got %v", err)
	}
	select {
	case <-emitter.Done():
	default:
		t.Error("done channel must be closed after completion")
	}
}

func TestSSEEmitterCompleteWithErrorNotifiesClient(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter := newSSEEmitter(rec, rec)

	emitter.CompleteWithError(errors.New("send failed"))
	emitter.CompleteWithError(errors.New("again")) // idempotent

	body := rec.Body.String()
	if !strings.Contains(body, "event: error\ndata: send failed") {
		t.Errorf("missing error frame: %q", body)
	}
	if strings.Contains(body, "again") {
		t.Error("second completion must be a no-op")
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]struct {
		category stream.Category
		ok       bool
	}{
		"orders":     {stream.CategoryOrder, true},
		"deliveries": {stream.CategoryDelivery, true},
		"merchants":  {stream.CategoryMerchant, true},
		"couriers":   {0, false},
	}
	for segment, want := range cases {
		category, ok := parseCategory(segment)
		if category != want.category || ok != want.ok {
			t.Errorf("parseCategory(%q) = %v, %v", segment, category, ok)
		}
	}
}

func newTestServer(t *testing.T, state *streamtest.FakeState) (*httptest.Server, *stream.Service) {
	t.Helper()

	svc := stream.NewService(stream.Config{
		CycleInterval:      time.Hour, // cycles are driven explicitly
		SendTimeout:        time.Second,
		RefreshTimeout:     time.Second,
		MaxConcurrentSends: 8,
	}, nil)
	svc.RegisterCategory(stream.CategoryOrder, state)

	router := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, svc
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readEvents consumes n events from an open SSE response body.
func readEvents(t *testing.T, scanner *bufio.Scanner, n int) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	for len(events) < n && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	if len(events) < n {
		t.Fatalf("stream ended after %d of %d events: %v", len(events), n, scanner.Err())
	}
	return events
}

func decodeUpdateEvent(t *testing.T, event sseEvent) wire.Update {
	t.Helper()
	if event.name != "update" {
		t.Fatalf("expected update event, got %q", event.name)
	}
	raw, err := base64.StdEncoding.DecodeString(event.data)
	if err != nil {
		t.Fatalf("data line is not base64: %v", err)
	}
	update, err := wire.DecodeUpdate(raw)
	if err != nil {
		t.Fatalf("failed to decode update: %v", err)
	}
	return update
}

func TestStreamEndpointPrimesAndCycles(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-42", `{"status":"PLACED"}`)
	server, svc := newTestServer(t, state)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/streams/orders/order-42", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set(SessionHeader, "sess-test")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	scanner := bufio.NewScanner(resp.Body)

	// First the session announcement, then the synchronous priming update.
	events := readEvents(t, scanner, 2)
	if events[0].name != "session" || events[0].data != "sess-test" {
		t.Errorf("session event = %+v", events[0])
	}
	priming := decodeUpdateEvent(t, events[1])
	if !priming.Priming || priming.Cycle != 0 {
		t.Errorf("priming envelope = %+v", priming)
	}
	if string(priming.Data) != `{"status":"PLACED"}` {
		t.Errorf("priming data = %s", priming.Data)
	}

	// A cycle pushes the current snapshot down the open connection.
	state.SetUpstream("order-42", `{"status":"PACKED"}`)
	svc.RunCycle(context.Background())

	update := decodeUpdateEvent(t, readEvents(t, scanner, 1)[0])
	if update.Priming || update.Cycle == 0 {
		t.Errorf("cycle envelope = %+v", update)
	}
	if string(update.Data) != `{"status":"PACKED"}` {
		t.Errorf("cycle data = %s", update.Data)
	}
}

func TestStreamEndpointGeneratesSessionWhenHeaderAbsent(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-42", "data")
	server, _ := newTestServer(t, state)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/streams/orders/order-42", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	events := readEvents(t, bufio.NewScanner(resp.Body), 1)
	if events[0].name != "session" || events[0].data == "" {
		t.Errorf("expected generated session, got %+v", events[0])
	}
}

func TestStreamEndpointDisconnectUnregisters(t *testing.T) {
	state := streamtest.NewFakeState()
	state.SetUpstream("order-42", "data")
	server, svc := newTestServer(t, state)

	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/streams/orders/order-42", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set(SessionHeader, "sess-gone")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Wait until the subscription is registered, then drop the client.
	deadline := time.Now().Add(2 * time.Second)
	for svc.SubscriptionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.SubscriptionCount() != 1 {
		t.Fatal("subscription never registered")
	}

	cancel()

	deadline = time.Now().Add(2 * time.Second)
	for svc.SubscriptionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := svc.SubscriptionCount(); got != 0 {
		t.Errorf("expected unregistration on disconnect, got %d subscriptions", got)
	}
}

func TestStreamEndpointUnknownCategory(t *testing.T) {
	server, _ := newTestServer(t, streamtest.NewFakeState())

	resp, err := http.Get(server.URL + "/streams/couriers/c-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, streamtest.NewFakeState())

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status        string         `json:"status"`
		Subscriptions int            `json:"subscriptions"`
		ByCategory    map[string]int `json:"by_category"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body.Status != "ok" || body.Subscriptions != 0 {
		t.Errorf("health = %+v", body)
	}
}
