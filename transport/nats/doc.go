// Package nats implements the transport.Provider interface over NATS
// subjects, for deployments where a broker bridge sits in front of the
// digital-twin backend instead of its WebSocket endpoint.
//
// # Subject layout
//
// Everything hangs off a configurable prefix, "twinstreams" by default:
//
//	<prefix>.commands             client -> backend, all outbound envelopes
//	<prefix>.client.<clientID>    backend -> one client, responses and
//	                              targeted live messages
//	<prefix>.events.>             backend -> all clients, twin and live events
//
// Outbound envelopes carry <prefix>.client.<clientID> in their reply-to
// header, so the bridge can route the response without holding state.
//
// # Reconnection
//
// The NATS client library reconnects on its own; this transport maps the
// library's connection callbacks onto transport.Status transitions and
// keeps accepting Send calls while reconnecting, letting the library's
// internal buffer absorb the gap.
package nats
