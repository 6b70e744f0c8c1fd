// Package bus routes inbound protocol envelopes to their consumers: one-shot
// correlation waiters for responses, selector subscriptions for everything
// else.
//
// # Overview
//
// A client runs one bus per channel (twin and live). The transport read loop
// publishes every inbound envelope into the bus's bounded queue; a single
// dispatch goroutine drains it, which gives subscribers a simple ordering
// guarantee: envelopes on one bus are observed in receipt order.
//
//	transport read loop --> Publish --> [queue] --> dispatch goroutine
//	                                                   |-- settle one-shot (responses)
//	                                                   `-- multicast (events, commands, messages, search)
//
// # Responses and one-shot waiters
//
// Envelopes carrying a status code are responses. They settle the pending
// waiter registered under their correlation id and are never multicast.
// Ownership of a waiter transfers atomically with its removal from the
// pending map, so double settlement is impossible: a response either finds
// its waiter or is dropped with a debug log. Waiters are registered with
// AwaitResponse BEFORE the request goes out, closing the race window where a
// fast response could arrive unclaimed.
//
// The cancel function returned by AwaitResponse must run on every path that
// stops waiting (timeout, send failure, context cancellation). It frees the
// correlation id slot, so abandoned requests cannot leak pending entries no
// matter how many of them time out.
//
// # Selectors
//
// Everything that is not a response multicasts by address. An address is the
// flattened entity path of the envelope, such as
// "/things/org.acme:sensor-1/features/engine/properties/rpm". Subscriptions
// register a Selector compiled from a template:
//
//	/things/{thingId}/attributes/*     placeholders capture one segment
//	/things/org.acme:sensor-1/*        final * matches one or more segments
//	/search/things/sub-42              literals match exactly
//
// Placeholder captures are handed to the handler, so one subscription can
// serve many entities and still know which one an envelope belongs to.
// Matching selectors all fire; zero matches is not an error.
//
// Templates are validated at Compile time. A selector that compiles never
// fails at dispatch time.
//
// # Backpressure and isolation
//
// The inbound queue is bounded. When subscribers cannot keep up, Publish
// blocks the transport read loop rather than buffering without limit. For
// the websocket provider that stalls frame reads; for NATS the server-side
// pending limits take over.
//
// Handlers run on the dispatch goroutine and are expected to return quickly.
// A panicking handler is recovered, logged with its registration id, and
// counted; the dispatch loop keeps running.
//
// # Shutdown
//
// Close stops the dispatch goroutine, then closes every pending one-shot
// channel so requesters unblock with an error instead of waiting out their
// timeout. Subscribe, AwaitResponse and Publish all fail once the bus is
// closed.
package bus
