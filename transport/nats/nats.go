package nats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/protocol"
	"github.com/c360/twinstreams/transport"
)

// Option configures a Transport during construction.
type Option func(*Transport) error

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "NATSTransport", "WithLogger", "nil logger")
		}
		t.logger = logger
		return nil
	}
}

// WithMetrics registers the transport's instruments with the given registrar.
func WithMetrics(registrar metric.Registrar) Option {
	return func(t *Transport) error {
		t.registrar = registrar
		return nil
	}
}

// Transport bridges envelopes over NATS subjects. Outbound envelopes are
// published to the command subject; the transport listens on a per-client
// subject for responses and on the shared events subject for everything the
// backend broadcasts. Outbound envelopes carry the per-client subject in
// their reply-to header so the backend knows where to answer.
//
// Reconnection is delegated to the NATS client library; its connection
// callbacks are mapped onto the transport status handler.
type Transport struct {
	cfg       Config
	logger    *slog.Logger
	registrar metric.Registrar
	metrics   *transportMetrics

	handler       transport.Handler
	statusHandler transport.StatusHandler

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription

	status   atomic.Int32
	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
}

// New creates a Transport for the given server. The transport is inert
// until Connect.
func New(cfg Config, opts ...Option) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	t := &Transport{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	t.logger = t.logger.With("component", "nats-transport")
	t.metrics = newMetrics(t.registrar)
	return t, nil
}

func (t *Transport) SetHandler(h transport.Handler) {
	t.handler = h
}

func (t *Transport) SetStatusHandler(h transport.StatusHandler) {
	t.statusHandler = h
}

// Status returns the current connection status.
func (t *Transport) Status() transport.Status {
	return transport.Status(t.status.Load())
}

// Connect establishes the NATS connection and subscribes to the inbound
// subjects.
func (t *Transport) Connect(ctx context.Context) error {
	if t.Status() == transport.StatusClosed {
		return errors.Wrap(errors.ErrAlreadyClosed, "NATSTransport", "Connect", "reuse closed transport")
	}
	if t.handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "NATSTransport", "Connect",
			"connect without an inbound handler")
	}
	if t.started.Swap(true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "NATSTransport", "Connect", "connect twice")
	}

	t.setStatus(transport.StatusConnecting, nil)

	opts, err := t.buildOptions()
	if err != nil {
		t.started.Store(false)
		t.setStatus(transport.StatusDisconnected, err)
		return err
	}

	// nats.Connect has no context form; run it aside so ctx still cancels
	// the wait.
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(t.cfg.URL, opts...)
		if err != nil {
			connectDone <- err
			return
		}
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			t.started.Store(false)
			t.trackError("dial")
			t.setStatus(transport.StatusDisconnected, err)
			return errors.WrapTransient(err, "NATSTransport", "Connect", "dial "+t.cfg.URL)
		}
	case <-ctx.Done():
		t.started.Store(false)
		t.setStatus(transport.StatusDisconnected, ctx.Err())
		return errors.WrapTransient(ctx.Err(), "NATSTransport", "Connect", "dial "+t.cfg.URL)
	}

	if err := t.subscribe(); err != nil {
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()
		conn.Close()
		t.started.Store(false)
		t.setStatus(transport.StatusDisconnected, err)
		return err
	}

	if t.metrics != nil {
		t.metrics.connectionsTotal.Inc()
	}
	t.setStatus(transport.StatusConnected, nil)
	t.logger.Info("connected", "url", t.cfg.URL, "client_subject", t.cfg.clientSubject())
	return nil
}

// Send publishes one envelope to the command subject, filling in the
// reply-to header when the caller left it empty.
func (t *Transport) Send(_ context.Context, env *protocol.Envelope) error {
	switch t.Status() {
	case transport.StatusClosed:
		return errors.Wrap(errors.ErrAlreadyClosed, "NATSTransport", "Send", "send on closed transport")
	case transport.StatusConnected, transport.StatusReconnecting:
		// The NATS client buffers while reconnecting.
	default:
		return errors.WrapTransient(errors.ErrNotConnected, "NATSTransport", "Send", "send envelope")
	}

	if env.Headers == nil {
		env.Headers = protocol.Headers{}
	}
	if env.Headers.ReplyTo() == "" {
		env.Headers[protocol.HeaderReplyTo] = t.cfg.clientSubject()
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "NATSTransport", "Send", "send envelope")
	}

	if err := conn.Publish(t.cfg.commandSubject(), data); err != nil {
		t.trackError("publish")
		return errors.WrapTransient(err, "NATSTransport", "Send", "publish envelope")
	}
	if t.metrics != nil {
		t.metrics.messagesSent.Inc()
	}
	return nil
}

// Close drains the connection so in-flight messages finish, then tears it
// down. Safe to call more than once.
func (t *Transport) Close() error {
	t.stopOnce.Do(func() {
		t.closed.Store(true)

		t.mu.Lock()
		conn := t.conn
		subs := t.subs
		t.conn = nil
		t.subs = nil
		t.mu.Unlock()

		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				t.logger.Debug("unsubscribe failed", "error", err)
			}
		}

		if conn != nil {
			drainDone := make(chan error, 1)
			go func() { drainDone <- conn.Drain() }()

			select {
			case err := <-drainDone:
				if err != nil {
					t.logger.Warn("drain failed", "error", err)
				}
			case <-time.After(t.cfg.DrainTimeout):
				t.logger.Warn("drain timed out, forcing close", "timeout", t.cfg.DrainTimeout)
			}
			conn.Close()
		}

		t.setStatus(transport.StatusClosed, nil)
		t.logger.Info("closed")
	})
	return nil
}

func (t *Transport) buildOptions() ([]nats.Option, error) {
	maxReconnects := -1
	if t.cfg.DisableReconnect {
		maxReconnects = 0
	} else if t.cfg.MaxReconnects > 0 {
		maxReconnects = t.cfg.MaxReconnects
	}

	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.Timeout(t.cfg.ConnectTimeout),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(t.cfg.ReconnectWait),
		nats.PingInterval(t.cfg.PingInterval),
		nats.DrainTimeout(t.cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if t.closed.Load() {
				return
			}
			t.trackError("disconnect")
			t.setStatus(transport.StatusReconnecting, err)
			t.logger.Warn("connection lost, client reconnecting", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			if t.metrics != nil {
				t.metrics.reconnectsTotal.Inc()
			}
			t.setStatus(transport.StatusConnected, nil)
			t.logger.Info("reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			if t.closed.Load() {
				return
			}
			t.setStatus(transport.StatusDisconnected, errors.ErrConnectionLost)
			t.logger.Error("connection closed, reconnects exhausted")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			t.trackError("async")
			t.logger.Warn("async error", "error", err)
		}),
	}

	switch p := t.cfg.Auth.(type) {
	case nil, auth.None:
	case auth.Basic:
		opts = append(opts, nats.UserInfo(p.Username, p.Password))
	case auth.Bearer:
		opts = append(opts, nats.Token(p.Token))
	case auth.BearerFunc:
		token, err := p()
		if err != nil {
			return nil, errors.WrapTransient(err, "NATSTransport", "buildOptions", "resolve token")
		}
		opts = append(opts, nats.Token(token))
	default:
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "NATSTransport", "buildOptions",
			"unsupported auth provider "+p.Kind())
	}

	if t.cfg.TLS.CertFile != "" && t.cfg.TLS.KeyFile != "" {
		opts = append(opts, nats.ClientCert(t.cfg.TLS.CertFile, t.cfg.TLS.KeyFile))
	}
	if len(t.cfg.TLS.CAFiles) > 0 {
		opts = append(opts, nats.RootCAs(t.cfg.TLS.CAFiles...))
	}

	return opts, nil
}

func (t *Transport) subscribe() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	for _, subject := range []string{t.cfg.clientSubject(), t.cfg.eventsSubject()} {
		sub, err := conn.Subscribe(subject, t.onMessage)
		if err != nil {
			return errors.Wrap(err, "NATSTransport", "subscribe", "subscribe to "+subject)
		}
		t.mu.Lock()
		t.subs = append(t.subs, sub)
		t.mu.Unlock()
	}
	return nil
}

func (t *Transport) onMessage(msg *nats.Msg) {
	env, err := protocol.Decode(msg.Data)
	if err != nil {
		t.trackError("decode")
		t.logger.Debug("dropping malformed envelope", "subject", msg.Subject, "error", err)
		return
	}
	if t.metrics != nil {
		t.metrics.messagesReceived.Inc()
	}
	t.handler(env)
}

func (t *Transport) setStatus(s transport.Status, err error) {
	t.status.Store(int32(s))
	if t.metrics != nil {
		if s == transport.StatusConnected {
			t.metrics.connectionActive.Set(1)
		} else {
			t.metrics.connectionActive.Set(0)
		}
	}
	if t.statusHandler != nil {
		t.statusHandler(s, err)
	}
}

func (t *Transport) trackError(errorType string) {
	if t.metrics != nil {
		t.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
}
