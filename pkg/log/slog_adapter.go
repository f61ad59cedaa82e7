package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes stream events to an slog.Logger.
// Useful for development when you want to see stream events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Failure events are logged at
// Warn level, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("kind", event.Kind.String()),
	}

	if event.Entity != "" {
		attrs = append(attrs, slog.String("entity", event.Entity))
	}
	if event.Category != 0 {
		attrs = append(attrs, slog.Uint64("category", uint64(event.Category)))
	}
	if event.Session != "" {
		attrs = append(attrs, slog.String("session", event.Session))
	}
	if event.Cycle != 0 {
		attrs = append(attrs, slog.Uint64("cycle", event.Cycle))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Summary != nil {
		attrs = append(attrs,
			slog.Int("subscriptions", event.Summary.Subscriptions),
			slog.Int("pairs", event.Summary.Pairs),
			slog.Int("degraded", event.Summary.Degraded),
			slog.Int("sent", event.Summary.Sent),
			slog.Int("failed", event.Summary.Failed),
			slog.Int("skipped", event.Summary.Skipped),
		)
	}

	level := slog.LevelDebug
	switch event.Kind {
	case KindRefreshFailed, KindSendFailed, KindSubscriptionDropped, KindRegistrationRejected:
		level = slog.LevelWarn
	}

	a.logger.LogAttrs(context.Background(), level, "stream event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
