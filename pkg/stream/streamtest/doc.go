// Package streamtest provides in-memory fakes for exercising the streaming
// core: a recording emitter, a mock emitter and a fake state with a
// controllable upstream.
package streamtest
