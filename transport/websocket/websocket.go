package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/pkg/retry"
	"github.com/c360/twinstreams/pkg/tlsutil"
	"github.com/c360/twinstreams/protocol"
	"github.com/c360/twinstreams/transport"
)

// Option configures a Transport during construction.
type Option func(*Transport) error

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "WebSocketTransport", "WithLogger", "nil logger")
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

// Transport speaks the Ditto WebSocket protocol: one JSON envelope per text
// frame, both directions. It pings the peer to detect dead connections and
// reconnects with exponential backoff when configured to.
type Transport struct {
	cfg       Config
	logger    *slog.Logger
	registrar metric.Registrar
	metrics   *transportMetrics
	dialer    *websocket.Dialer
	limiter   *rate.Limiter

	handler       transport.Handler
	statusHandler transport.StatusHandler

	mu   sync.Mutex
	conn *websocket.Conn

	// The gorilla connection panics on concurrent writes, so every write
	// including pings and the close frame goes through writeMu.
	writeMu sync.Mutex

	status   atomic.Int32
	started  atomic.Bool
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Transport for the given endpoint. The transport is inert
// until Connect.
func New(cfg Config, opts ...Option) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	t := &Transport{
		cfg:      cfg,
		logger:   slog.Default(),
		shutdown: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	t.logger = t.logger.With("component", "websocket-transport")

	t.dialer = &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if !cfg.TLS.IsZero() {
		tlsConfig, err := tlsutil.LoadClientTLS(cfg.TLS)
		if err != nil {
			return nil, err
		}
		t.dialer.TLSClientConfig = tlsConfig
	}

	if cfg.MessagesPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.SendBurst)
	}

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

// Connect dials the endpoint and starts the read and ping loops. The first
// dial is not retried; once connected, lost connections are re-established
// per the reconnect config.
func (t *Transport) Connect(ctx context.Context) error {
	if t.Status() == transport.StatusClosed {
		return errors.Wrap(errors.ErrAlreadyClosed, "WebSocketTransport", "Connect", "reuse closed transport")
	}
	if t.handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "WebSocketTransport", "Connect",
			"connect without an inbound handler")
	}
	if t.started.Swap(true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "WebSocketTransport", "Connect", "connect twice")
	}

	t.setStatus(transport.StatusConnecting, nil)

	conn, err := t.dial(ctx)
	if err != nil {
		t.started.Store(false)
		t.setStatus(transport.StatusDisconnected, err)
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setStatus(transport.StatusConnected, nil)
	t.logger.Info("connected", "url", t.cfg.URL)

	t.wg.Add(2)
	go t.supervise()
	go t.pingLoop()

	return nil
}

// Send writes one envelope as a text frame. Blocks on the rate limiter
// when one is configured.
func (t *Transport) Send(ctx context.Context, env *protocol.Envelope) error {
	switch t.Status() {
	case transport.StatusClosed:
		return errors.Wrap(errors.ErrAlreadyClosed, "WebSocketTransport", "Send", "send on closed transport")
	case transport.StatusConnected:
	default:
		return errors.WrapTransient(errors.ErrNotConnected, "WebSocketTransport", "Send", "send envelope")
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return errors.WrapTransient(err, "WebSocketTransport", "Send", "await rate limiter")
		}
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "WebSocketTransport", "Send", "send envelope")
	}

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()

	if err != nil {
		t.trackError("write")
		return errors.WrapTransient(err, "WebSocketTransport", "Send", "write frame")
	}
	if t.metrics != nil {
		t.metrics.messagesSent.Inc()
	}
	return nil
}

// Close sends a close frame, tears the connection down and stops the
// loops. Safe to call more than once.
func (t *Transport) Close() error {
	t.stopOnce.Do(func() {
		close(t.shutdown)

		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		if conn != nil {
			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			t.writeMu.Unlock()
			_ = conn.Close()
		}

		t.wg.Wait()
		if t.metrics != nil {
			t.metrics.connectionActive.Set(0)
		}
		t.setStatus(transport.StatusClosed, nil)
		t.logger.Info("closed")
	})
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	if t.cfg.Auth != nil {
		if err := t.cfg.Auth.Apply(headers); err != nil {
			return nil, err
		}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, headers)
	if err != nil {
		t.trackError("dial")
		if resp != nil {
			t.logger.Debug("handshake rejected", "status", resp.StatusCode)
		}
		return nil, errors.WrapTransient(err, "WebSocketTransport", "dial", "dial "+t.cfg.URL)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))

	if t.metrics != nil {
		t.metrics.connectionsTotal.Inc()
		t.metrics.connectionActive.Set(1)
	}
	return conn, nil
}

// supervise owns the read loop and drives reconnection when it exits.
func (t *Transport) supervise() {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		err := t.readLoop(conn)

		if t.metrics != nil {
			t.metrics.connectionActive.Set(0)
		}
		select {
		case <-t.shutdown:
			return
		default:
		}

		if !t.cfg.Reconnect.Enabled {
			t.setStatus(transport.StatusDisconnected, err)
			t.logger.Warn("connection lost, reconnect disabled", "error", err)
			return
		}

		t.setStatus(transport.StatusReconnecting, err)
		t.logger.Warn("connection lost, reconnecting", "error", err)
		if !t.reconnect() {
			return
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		select {
		case <-t.shutdown:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.shutdown:
				return nil
			default:
			}
			t.trackError("read")
			return errors.WrapTransient(errors.ErrConnectionLost, "WebSocketTransport", "readLoop",
				"read frame")
		}

		env, err := protocol.Decode(data)
		if err != nil {
			t.trackError("decode")
			t.logger.Debug("dropping malformed envelope", "error", err)
			continue
		}

		if t.metrics != nil {
			t.metrics.messagesReceived.Inc()
		}
		t.handler(env)
	}
}

// reconnect dials with exponential backoff until it succeeds, retries run
// out, or the transport shuts down. Returns true when connected again.
func (t *Transport) reconnect() bool {
	backoff := retry.Config{
		InitialDelay: t.cfg.Reconnect.InitialInterval,
		MaxDelay:     t.cfg.Reconnect.MaxInterval,
		Multiplier:   t.cfg.Reconnect.Multiplier,
		AddJitter:    true,
	}

	for attempt := 1; ; attempt++ {
		if t.cfg.Reconnect.MaxRetries > 0 && attempt > t.cfg.Reconnect.MaxRetries {
			t.setStatus(transport.StatusDisconnected, errors.ErrConnectionLost)
			t.logger.Error("giving up on reconnect", "attempts", t.cfg.Reconnect.MaxRetries)
			return false
		}

		select {
		case <-t.shutdown:
			return false
		case <-time.After(retry.Delay(backoff, attempt)):
		}

		if t.metrics != nil {
			t.metrics.reconnectsTotal.Inc()
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			t.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.setStatus(transport.StatusConnected, nil)
		t.logger.Info("reconnected", "attempt", attempt)
		return true
	}
}

func (t *Transport) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.shutdown:
			return
		case <-ticker.C:
			if t.Status() != transport.StatusConnected {
				continue
			}
			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				continue
			}

			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				// The read loop notices the dead connection.
				t.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

func (t *Transport) setStatus(s transport.Status, err error) {
	t.status.Store(int32(s))
	if t.statusHandler != nil {
		t.statusHandler(s, err)
	}
}

func (t *Transport) trackError(errorType string) {
	if t.metrics != nil {
		t.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
}
