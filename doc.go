// Package twinstreams is a client SDK for digital twin backends speaking
// the Ditto protocol. It connects over WebSocket or NATS, correlates
// commands with their responses, dispatches events, live commands, messages
// and search frames to registered handlers, and exposes typed handles for
// things, features and policies.
//
// # Usage
//
// A client is built from a Config, connected once and shared:
//
//	cfg, err := twinstreams.LoadConfig("client.yaml")
//	if err != nil { ... }
//	client, err := twinstreams.New(cfg)
//	if err != nil { ... }
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close()
//
//	thing, err := client.Twin().Thing(model.MustParseNamespacedID("org.acme:sensor-1")).Retrieve(ctx)
//
// Twin returns the channel for persisted state: thing and feature handles,
// change registrations and search. Live returns the peer-to-peer channel:
// answering commands, exchanging messages, emitting events. Policies
// manages access control.
//
// # Channels and routing
//
// Both channels multiplex over one connection by default; inbound traffic
// is routed to the twin or live dispatch bus by its topic channel. Pass
// WithTwinProvider and WithLiveProvider to split the channels across two
// connections instead.
//
// # Concurrency
//
// All handle operations are synchronous and safe for concurrent use.
// Registered handlers run on the owning channel's dispatch goroutine:
// ordered per channel, never concurrent with each other, and required not
// to block. Handing work off to another goroutine is the handler's job
// when it needs to wait.
//
// # Observability
//
// The SDK logs through log/slog and ships Prometheus collectors behind
// WithMetrics. It never opens HTTP endpoints; exposing the metric registry
// is the host's concern.
package twinstreams
