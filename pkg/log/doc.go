// Package log defines structured logging for stream lifecycle events.
//
// The streaming core reports subscription lifecycle, refresh outcomes, send
// failures and per-cycle summaries as typed events rather than formatted
// strings, so applications can route them anywhere: an slog logger for
// development, a CBOR event file for offline analysis, or both via
// MultiLogger.
//
// Pass NoopLogger wherever a Logger is accepted to disable logging.
package log
