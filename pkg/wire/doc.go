// Package wire defines the outbound update envelope.
//
// Every payload delivered to a client is wrapped in an Update envelope that
// identifies the entity and state category, the broadcast cycle that
// produced it, and whether it is the priming snapshot sent at registration.
// Envelopes are CBOR-encoded with integer keys for compactness; the Data
// field carries the state's filtered, serialized view opaquely.
package wire
