// Package transport adapts live HTTP connections to the streaming core.
//
// Each GET /streams/{category}/{entity} request becomes one SSE connection
// and one stream.Emitter. The session identity comes from the X-Session-ID
// header (generated when absent) and the filter context from the query
// string. Update envelopes are binary CBOR, so they travel base64-encoded
// in SSE data lines.
//
// The transport owns nothing beyond the connection lifecycle: registration,
// the blocking wait for disconnect or terminal completion, and the
// idempotent unregister on the way out.
package transport
