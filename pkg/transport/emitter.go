package transport

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// sseEmitter delivers update envelopes to one SSE connection.
// Safe for concurrent use: the engine may dispatch a send while the
// connection handler observes a disconnect.
type sseEmitter struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	flusher   http.Flusher
	completed bool
	done      chan struct{}
}

func newSSEEmitter(w http.ResponseWriter, flusher http.Flusher) *sseEmitter {
	return &sseEmitter{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
}

// Send writes one envelope as a base64 SSE data line and flushes it.
// Sends against a completed emitter fail without touching the connection.
func (e *sseEmitter) Send(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completed {
		return stream.ErrEmitterCompleted
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	if _, err := fmt.Fprintf(e.w, "event: update\ndata: %s\n\n", encoded); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Complete marks the channel closed on normal disconnect. Idempotent.
func (e *sseEmitter) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completed {
		return
	}
	e.completed = true
	close(e.done)
}

// CompleteWithError marks the channel terminally failed and makes a
// best-effort attempt to tell the client why. Idempotent.
func (e *sseEmitter) CompleteWithError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completed {
		return
	}
	e.completed = true

	// The connection may already be broken; the write is advisory.
	if _, werr := fmt.Fprintf(e.w, "event: error\ndata: %s\n\n", err.Error()); werr == nil {
		e.flusher.Flush()
	}
	close(e.done)
}

// Done is closed when the emitter reaches a terminal state, letting the
// connection handler return.
func (e *sseEmitter) Done() <-chan struct{} {
	return e.done
}

// Compile-time interface satisfaction check.
var _ stream.Emitter = (*sseEmitter)(nil)
