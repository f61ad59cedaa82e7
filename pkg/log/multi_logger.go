package log

// MultiLogger fans each stream event out to several sinks, typically a
// console SlogAdapter next to a FileLogger capturing the CBOR event
// history of the broadcast cycles.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines loggers into one. Nil entries are skipped, so an
// optional sink (say, a file logger that failed to open) can be passed
// without guarding.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	sinks := make([]Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			sinks = append(sinks, l)
		}
	}
	return &MultiLogger{sinks: sinks}
}

// Log forwards the event to every sink in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, sink := range m.sinks {
		sink.Log(event)
	}
}

// Compile-time interface satisfaction check.
var _ Logger = (*MultiLogger)(nil)
