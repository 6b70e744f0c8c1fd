package correlation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/protocol"
)

// DefaultTimeout bounds a request when neither the envelope's timeout header
// nor WithTimeout says otherwise.
const DefaultTimeout = 10 * time.Second

// SendFunc hands an outbound envelope to the transport. Implementations must
// be safe for concurrent use; the exchange calls it from many goroutines.
type SendFunc func(ctx context.Context, env *protocol.Envelope) error

// Option configures an Exchange during construction.
type Option func(*Exchange) error

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exchange) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "WithLogger", "nil logger")
		}
		e.logger = logger
		return nil
	}
}

// WithTimeout sets the default response deadline for Request.
func WithTimeout(d time.Duration) Option {
	return func(e *Exchange) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "WithTimeout",
				"timeout must be positive")
		}
		e.timeout = d
		return nil
	}
}

// WithMetrics registers the exchange's instruments with the given registrar.
func WithMetrics(registrar metric.Registrar) Option {
	return func(e *Exchange) error {
		e.registrar = registrar
		return nil
	}
}

// Exchange turns the bus's one-shot response waiters into a synchronous
// request/response call. The waiter is registered before the envelope is
// handed to the transport, so a response cannot arrive unmatched no matter
// how fast the backend answers.
type Exchange struct {
	bus       *bus.Bus
	send      SendFunc
	timeout   time.Duration
	logger    *slog.Logger
	registrar metric.Registrar
	metrics   *exchangeMetrics
}

// New creates an Exchange on top of a bus. Outbound envelopes go through
// send; responses come back via the bus's correlation waiters.
func New(b *bus.Bus, send SendFunc, opts ...Option) (*Exchange, error) {
	if b == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "New", "nil bus")
	}
	if send == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "New", "nil send function")
	}

	e := &Exchange{
		bus:     b,
		send:    send,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.logger = e.logger.With("component", b.Name()+"-exchange")
	e.metrics = newMetrics(e.registrar, b.Name())

	return e, nil
}

// Timeout returns the default response deadline.
func (e *Exchange) Timeout() time.Duration {
	return e.timeout
}

// Request sends env and blocks until the correlated response arrives, the
// deadline passes, or ctx is done. A missing correlation id is filled in
// with a fresh UUID and the response-required header is forced to true.
//
// The envelope's own timeout header, when present, takes precedence over
// the exchange default; when absent it is set so the backend applies the
// same deadline. Error responses from the backend are returned along with
// a *protocol.Error describing the rejection; every other failure is a
// ClassifiedError.
func (e *Exchange) Request(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	if env == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "Request", "nil envelope")
	}
	if env.Headers == nil {
		env.Headers = protocol.Headers{}
	}

	correlationID := env.Headers.CorrelationID()
	if correlationID == "" {
		correlationID = uuid.NewString()
		env.Headers.SetCorrelationID(correlationID)
	}
	env.Headers.SetResponseRequired(true)

	timeout := e.timeout
	if d, ok := env.Headers.Timeout(); ok {
		timeout = d
	} else {
		env.Headers.SetTimeout(timeout)
	}

	// Register before sending. The reverse order races the backend.
	respCh, cancel, err := e.bus.AwaitResponse(correlationID)
	if err != nil {
		return nil, errors.Wrap(err, "Exchange", "Request", "register response waiter")
	}

	if e.metrics != nil {
		e.metrics.inFlight.Inc()
		defer e.metrics.inFlight.Dec()
	}
	start := time.Now()

	if err := e.send(ctx, env); err != nil {
		cancel()
		e.observe(start, outcomeSendFailed)
		return nil, errors.Wrap(err, "Exchange", "Request", "send envelope")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			e.observe(start, outcomeClosed)
			return nil, errors.Wrap(errors.ErrAlreadyClosed, "Exchange", "Request", "await response")
		}
		if resp.IsError() {
			e.observe(start, outcomeRejected)
			return resp, protocol.DecodeError(resp)
		}
		e.observe(start, outcomeOK)
		return resp, nil

	case <-timer.C:
		cancel()
		e.observe(start, outcomeTimeout)
		e.logger.Debug("request timed out",
			"correlation_id", correlationID,
			"timeout", timeout,
			"topic", env.Topic.String())
		return nil, errors.WrapTransient(errors.ErrTimeout, "Exchange", "Request", "await response")

	case <-ctx.Done():
		cancel()
		e.observe(start, outcomeCanceled)
		return nil, errors.WrapTransient(ctx.Err(), "Exchange", "Request", "await response")
	}
}

// Send hands env to the transport without waiting for a response. The
// response-required header is forced to false so the backend stays quiet;
// a correlation id is still filled in for tracing.
func (e *Exchange) Send(ctx context.Context, env *protocol.Envelope) error {
	if env == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Exchange", "Send", "nil envelope")
	}
	if env.Headers == nil {
		env.Headers = protocol.Headers{}
	}
	if env.Headers.CorrelationID() == "" {
		env.Headers.SetCorrelationID(uuid.NewString())
	}
	env.Headers.SetResponseRequired(false)

	if err := e.send(ctx, env); err != nil {
		return errors.Wrap(err, "Exchange", "Send", "send envelope")
	}
	if e.metrics != nil {
		e.metrics.sends.Inc()
	}
	return nil
}

func (e *Exchange) observe(start time.Time, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.requests.WithLabelValues(outcome).Inc()
	e.metrics.duration.Observe(time.Since(start).Seconds())
}
