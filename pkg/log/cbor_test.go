package log

import (
	"bytes"
	"testing"
	"time"
)

func testEvent() Event {
	return Event{
		Timestamp: time.Date(2026, 8, 27, 12, 0, 0, 123456789, time.UTC),
		Kind:      KindSendFailed,
		Category:  1,
		Entity:    "order-42",
		Session:   "sess-a",
		Cycle:     17,
		Error:     "send failed: connection reset",
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	event := testEvent()

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.Kind != KindSendFailed {
		t.Errorf("kind = %v, want %v", decoded.Kind, KindSendFailed)
	}
	if decoded.Entity != "order-42" || decoded.Session != "sess-a" {
		t.Errorf("identity fields = %q/%q", decoded.Entity, decoded.Session)
	}
	if decoded.Cycle != 17 {
		t.Errorf("cycle = %d, want 17", decoded.Cycle)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestEncodeDecodeCycleEvent(t *testing.T) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Kind:      KindCycle,
		Cycle:     3,
		Summary: &CycleSummary{
			Subscriptions: 10,
			Pairs:         4,
			Degraded:      1,
			Sent:          8,
			Failed:        1,
			Skipped:       1,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.Summary == nil {
		t.Fatal("summary lost in roundtrip")
	}
	if *decoded.Summary != *event.Summary {
		t.Errorf("summary = %+v, want %+v", *decoded.Summary, *event.Summary)
	}
}

func TestDecodeEventInvalidData(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected decode error for garbage input")
	}
}

func TestReadEvents(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		event := testEvent()
		event.Cycle = uint64(i + 1)
		if err := enc.Encode(event); err != nil {
			t.Fatalf("encode %d failed: %v", i, err)
		}
	}

	events, err := ReadEvents(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, event := range events {
		if event.Cycle != uint64(i+1) {
			t.Errorf("event %d: cycle = %d", i, event.Cycle)
		}
	}
}

func TestReadEventsEmpty(t *testing.T) {
	events, err := ReadEvents(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindSubscribed:           "SUBSCRIBED",
		KindUnsubscribed:         "UNSUBSCRIBED",
		KindRefreshFailed:        "REFRESH_FAILED",
		KindSendFailed:           "SEND_FAILED",
		KindSubscriptionDropped:  "SUBSCRIPTION_DROPPED",
		KindCycle:                "CYCLE",
		KindRegistrationRejected: "REGISTRATION_REJECTED",
		Kind(99):                 "UNKNOWN",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
