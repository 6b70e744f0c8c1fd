// Package transport defines the envelope pipe between a client and its
// backend. The Provider interface decouples the client from the wire: the
// websocket subpackage speaks the Ditto WebSocket protocol, the nats
// subpackage bridges envelopes over NATS subjects, and Local keeps
// everything in memory for tests.
package transport
