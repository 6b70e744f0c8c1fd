package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/protocol"
)

const localOutboundCapacity = 64

// Local is an in-memory Provider for tests and embedded setups. Every
// envelope crossing it is encoded and decoded again, so marshaling bugs
// surface exactly as they would on a real connection.
//
// The peer side plays the backend: it observes what the client sent and
// injects envelopes travelling the other way.
type Local struct {
	mu            sync.Mutex
	handler       Handler
	statusHandler StatusHandler

	status atomic.Int32
	closed atomic.Bool

	peer *LocalPeer
}

// NewLocal creates a disconnected in-memory transport.
func NewLocal() *Local {
	l := &Local{}
	l.peer = &LocalPeer{
		local:    l,
		outbound: make(chan *protocol.Envelope, localOutboundCapacity),
	}
	return l
}

// Peer returns the backend side of the transport.
func (l *Local) Peer() *LocalPeer {
	return l.peer
}

func (l *Local) SetHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *Local) SetStatusHandler(h StatusHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusHandler = h
}

func (l *Local) Status() Status {
	return Status(l.status.Load())
}

func (l *Local) Connect(context.Context) error {
	if l.closed.Load() {
		return errors.Wrap(errors.ErrAlreadyClosed, "LocalTransport", "Connect", "reuse closed transport")
	}
	l.mu.Lock()
	handlerSet := l.handler != nil
	l.mu.Unlock()
	if !handlerSet {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "LocalTransport", "Connect",
			"connect without an inbound handler")
	}

	l.setStatus(StatusConnected, nil)
	return nil
}

// Send passes env through a JSON round-trip and hands it to the peer. With
// a responder installed the envelope goes to it alone; otherwise it lands
// on the peer's Outbound channel, blocking when the channel is full.
func (l *Local) Send(ctx context.Context, env *protocol.Envelope) error {
	if l.closed.Load() {
		return errors.Wrap(errors.ErrAlreadyClosed, "LocalTransport", "Send", "send on closed transport")
	}
	if l.Status() != StatusConnected {
		return errors.WrapTransient(errors.ErrNotConnected, "LocalTransport", "Send", "send envelope")
	}

	wired, err := roundTrip(env)
	if err != nil {
		return err
	}

	l.peer.mu.Lock()
	responder := l.peer.responder
	l.peer.mu.Unlock()

	if responder != nil {
		if resp := responder(wired); resp != nil {
			return l.peer.Deliver(resp)
		}
		return nil
	}

	select {
	case l.peer.outbound <- wired:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "LocalTransport", "Send", "enqueue envelope")
	}
}

func (l *Local) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.setStatus(StatusClosed, nil)
	close(l.peer.outbound)
	return nil
}

func (l *Local) setStatus(s Status, err error) {
	l.status.Store(int32(s))
	l.mu.Lock()
	notify := l.statusHandler
	l.mu.Unlock()
	if notify != nil {
		notify(s, err)
	}
}

// LocalPeer is the backend side of a Local transport.
type LocalPeer struct {
	local    *Local
	outbound chan *protocol.Envelope

	mu        sync.Mutex
	responder func(req *protocol.Envelope) *protocol.Envelope
}

// Outbound exposes the envelopes the client sent, in order. Only fed while
// no responder is installed; closed when the transport closes.
func (p *LocalPeer) Outbound() <-chan *protocol.Envelope {
	return p.outbound
}

// Respond installs fn as the backend. Every envelope the client sends is
// passed to fn; a non-nil result is delivered back to the client. Pass nil
// to fall back to the Outbound channel.
func (p *LocalPeer) Respond(fn func(req *protocol.Envelope) *protocol.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = fn
}

// Deliver injects an envelope as if the backend had pushed it. The client's
// handler runs on the calling goroutine.
func (p *LocalPeer) Deliver(env *protocol.Envelope) error {
	if p.local.closed.Load() {
		return errors.Wrap(errors.ErrAlreadyClosed, "LocalTransport", "Deliver", "deliver on closed transport")
	}
	if p.local.Status() != StatusConnected {
		return errors.WrapTransient(errors.ErrNotConnected, "LocalTransport", "Deliver", "deliver envelope")
	}

	wired, err := roundTrip(env)
	if err != nil {
		return err
	}

	p.local.mu.Lock()
	handler := p.local.handler
	p.local.mu.Unlock()

	handler(wired)
	return nil
}

// Interrupt simulates a dropped and re-established connection, driving the
// status handler through reconnecting and back to connected.
func (p *LocalPeer) Interrupt(err error) {
	if p.local.closed.Load() {
		return
	}
	p.local.setStatus(StatusReconnecting, err)
	p.local.setStatus(StatusConnected, nil)
}

func roundTrip(env *protocol.Envelope) (*protocol.Envelope, error) {
	data, err := env.Encode()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}
