package log

// Logger receives the streaming engine's lifecycle events: registrations
// and removals, refresh and send outcomes, and per-cycle summaries. The
// engine emits events from many goroutines at once and never waits on a
// logger, so implementations must be safe for concurrent use and return
// quickly; a slow Log call stalls delivery for the whole cycle.
type Logger interface {
	// Log records one stream event.
	Log(event Event)
}

// NoopLogger discards all events. The engine and service fall back to it
// when constructed without a logger; its zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
