// Package websocket implements the transport.Provider interface over the
// Ditto WebSocket protocol: every text frame carries exactly one JSON
// envelope, in both directions.
//
// # Connection lifecycle
//
// Connect dials once and fails fast so callers see bad endpoints and bad
// credentials immediately. After the first successful connect the transport
// owns the connection: a ping loop probes the peer every PingInterval, a
// missing pong within PongTimeout kills the read, and the supervise loop
// re-dials with exponential backoff and jitter per ReconnectConfig. Status
// transitions are reported through the StatusHandler with the error that
// caused them.
//
// Subscriptions above the transport survive a reconnect untouched since
// they live on the bus, but envelopes that arrive at the backend while the
// connection is down are gone. Consumers needing gapless delivery should
// resync state after seeing StatusConnected follow StatusReconnecting.
//
// # Backpressure
//
// Inbound frames are handed to the Handler on the read goroutine. A slow
// handler therefore slows the read loop, which is intentional: the bus
// queue bounds memory and TCP flow control pushes the excess back to the
// backend. Outbound, Send optionally blocks on a token-bucket rate limiter
// (MessagesPerSecond, SendBurst) to stay under backend throttling limits.
//
// # Authentication
//
// The auth.Provider is applied to the handshake request on every attempt,
// including reconnects, so short-lived bearer tokens keep working.
package websocket
