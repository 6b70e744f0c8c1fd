package transport

import (
	"context"

	"github.com/c360/twinstreams/protocol"
)

// Status is the connection state of a transport provider.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives every inbound envelope. The transport calls it from its
// read loop, so a slow handler applies backpressure to the connection.
type Handler func(env *protocol.Envelope)

// StatusHandler observes connection state transitions. err is non-nil when
// the transition was caused by a failure, such as a dropped connection.
type StatusHandler func(status Status, err error)

// Provider is a bidirectional envelope pipe to a backend.
//
// SetHandler and SetStatusHandler must be called before Connect; the
// remaining methods are safe for concurrent use afterwards.
type Provider interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, env *protocol.Envelope) error
	SetHandler(h Handler)
	SetStatusHandler(h StatusHandler)
	Status() Status
	Close() error
}
