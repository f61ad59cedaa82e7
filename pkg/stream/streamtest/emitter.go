package streamtest

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// RecordingEmitter collects sent payloads and tracks terminal completion.
// Safe for concurrent use.
type RecordingEmitter struct {
	mu           sync.Mutex
	payloads     [][]byte
	sendErr      error
	sendDelay    time.Duration
	completed    bool
	completedErr error
}

// NewRecordingEmitter creates an emitter that accepts every send.
func NewRecordingEmitter() *RecordingEmitter {
	return &RecordingEmitter{}
}

// FailSends makes every subsequent send return err.
func (e *RecordingEmitter) FailSends(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendErr = err
}

// DelaySends makes every subsequent send block for d before returning.
func (e *RecordingEmitter) DelaySends(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendDelay = d
}

// Send records the payload, honoring the configured failure and delay.
func (e *RecordingEmitter) Send(payload []byte) error {
	e.mu.Lock()
	delay := e.sendDelay
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.completed {
		return stream.ErrEmitterCompleted
	}
	if e.sendErr != nil {
		return e.sendErr
	}

	copied := make([]byte, len(payload))
	copy(copied, payload)
	e.payloads = append(e.payloads, copied)
	return nil
}

// Complete marks the emitter terminally closed. Idempotent.
func (e *RecordingEmitter) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = true
}

// CompleteWithError marks the emitter terminally failed. The first terminal
// state wins; later completions are no-ops.
func (e *RecordingEmitter) CompleteWithError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completed {
		return
	}
	e.completed = true
	e.completedErr = err
}

// Payloads returns a copy of everything sent so far.
func (e *RecordingEmitter) Payloads() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.payloads))
	copy(out, e.payloads)
	return out
}

// SendCount returns the number of successful sends.
func (e *RecordingEmitter) SendCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.payloads)
}

// Completed reports terminal state and the terminal error, if any.
func (e *RecordingEmitter) Completed() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed, e.completedErr
}

// MockEmitter is a testify mock of stream.Emitter for expectation-style tests.
type MockEmitter struct {
	mock.Mock
}

// Send records the call and returns the configured error.
func (m *MockEmitter) Send(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

// Complete records the call.
func (m *MockEmitter) Complete() {
	m.Called()
}

// CompleteWithError records the call.
func (m *MockEmitter) CompleteWithError(err error) {
	m.Called(err)
}

// Compile-time interface satisfaction checks.
var (
	_ stream.Emitter = (*RecordingEmitter)(nil)
	_ stream.Emitter = (*MockEmitter)(nil)
)
