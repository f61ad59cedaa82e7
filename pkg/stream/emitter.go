package stream

// Emitter represents one live client channel. Implementations are supplied
// by the transport layer (SSE, websocket, long-poll) at connect time.
//
// Emitters must be safe for concurrent use: the engine may dispatch a send
// while the transport signals a disconnect. A completed emitter rejects
// further sends as a repeatable failure and must never corrupt shared state.
type Emitter interface {
	// Send delivers a payload to the client. It returns an error on
	// transport failure or if the emitter has already completed.
	Send(payload []byte) error

	// Complete marks the channel terminally closed on normal disconnect.
	// Irreversible; subsequent calls are no-ops.
	Complete()

	// CompleteWithError marks the channel terminally failed. Irreversible;
	// it must be followed by removal from the registry.
	CompleteWithError(err error)
}
