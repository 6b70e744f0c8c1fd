package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/protocol"
)

const defaultQueueCapacity = 256

// Handler consumes one dispatched envelope together with the segments the
// subscription's selector captured. Handlers run on the bus dispatch
// goroutine: block here and the whole channel stalls behind you.
type Handler func(env *protocol.Envelope, captures Captures)

// Subscription is one registered selector/handler pair.
type Subscription struct {
	id       string
	selector Selector
	handler  Handler
	bus      *Bus
}

// ID returns the registration id.
func (s *Subscription) ID() string {
	return s.id
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.Unsubscribe(s.id)
}

// Option configures a Bus during construction.
type Option func(*Bus) error

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "WithLogger", "nil logger")
		}
		b.logger = logger
		return nil
	}
}

// WithQueueCapacity bounds the inbound queue. Publishing to a full queue
// blocks, which pushes backpressure onto the transport read loop.
func WithQueueCapacity(n int) Option {
	return func(b *Bus) error {
		if n <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "WithQueueCapacity",
				"capacity must be positive")
		}
		b.capacity = n
		return nil
	}
}

// WithMetrics registers the bus's instruments with the given registrar.
func WithMetrics(registrar metric.Registrar) Option {
	return func(b *Bus) error {
		b.registrar = registrar
		return nil
	}
}

// Bus routes inbound envelopes to subscribers. Response envelopes settle
// one-shot correlation waiters; everything else multicasts to every
// subscription whose selector matches the envelope's address. A single
// dispatch goroutine drains the queue, so handlers for one bus observe
// envelopes in receipt order.
type Bus struct {
	name      string
	logger    *slog.Logger
	capacity  int
	registrar metric.Registrar
	metrics   *busMetrics

	queue chan *protocol.Envelope
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	subs    map[string]*Subscription
	pending map[string]chan *protocol.Envelope

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a bus and starts its dispatch goroutine. The name shows up in
// logs and metric labels; a client typically runs one bus per channel, named
// "twin-bus" and "live-bus".
func New(name string, opts ...Option) (*Bus, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "New", "empty bus name")
	}

	b := &Bus{
		name:     name,
		logger:   slog.Default(),
		capacity: defaultQueueCapacity,
		subs:     make(map[string]*Subscription),
		pending:  make(map[string]chan *protocol.Envelope),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	b.logger = b.logger.With("component", name)
	b.queue = make(chan *protocol.Envelope, b.capacity)
	b.metrics = newMetrics(b.registrar, name)

	b.wg.Add(1)
	go b.dispatchLoop()

	return b, nil
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*Subscription)

// WithRegistrationID pins the subscription id so the caller can cancel by
// name later. Reusing an id that is still active is an error.
func WithRegistrationID(id string) SubscribeOption {
	return func(s *Subscription) {
		s.id = id
	}
}

// Subscribe registers a handler for every envelope whose address matches the
// selector. The returned subscription stays active until cancelled or the
// bus closes.
func (b *Bus) Subscribe(selector Selector, handler Handler, opts ...SubscribeOption) (*Subscription, error) {
	if selector == nil || handler == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "Subscribe",
			"selector and handler are required")
	}

	sub := &Subscription{
		selector: selector,
		handler:  handler,
		bus:      b,
	}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.id == "" {
		sub.id = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, errors.WrapInvalid(errors.ErrAlreadyClosed, "Bus", "Subscribe", "bus is closed")
	}
	if _, exists := b.subs[sub.id]; exists {
		return nil, errors.WrapInvalid(errors.ErrDuplicateRegistration, "Bus", "Subscribe",
			"registration id "+sub.id)
	}

	b.subs[sub.id] = sub
	if b.metrics != nil {
		b.metrics.subscriptions.Inc()
	}
	return sub, nil
}

// Unsubscribe removes a subscription by id and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; !exists {
		return false
	}
	delete(b.subs, id)
	if b.metrics != nil {
		b.metrics.subscriptions.Dec()
	}
	return true
}

// AwaitResponse registers a one-shot waiter for the response carrying the
// given correlation id. It must be called before the request is sent, so the
// response cannot lose the race against registration. The returned channel
// receives exactly one envelope, or closes without a value when the bus
// shuts down. The cancel function releases the slot; callers must invoke it
// on every non-delivery path or the id stays occupied.
func (b *Bus) AwaitResponse(correlationID string) (<-chan *protocol.Envelope, func(), error) {
	if correlationID == "" {
		return nil, nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "AwaitResponse",
			"empty correlation id")
	}

	ch := make(chan *protocol.Envelope, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, nil, errors.WrapInvalid(errors.ErrAlreadyClosed, "Bus", "AwaitResponse", "bus is closed")
	}
	if _, exists := b.pending[correlationID]; exists {
		return nil, nil, errors.WrapInvalid(errors.ErrDuplicateRegistration, "Bus", "AwaitResponse",
			"correlation id "+correlationID+" already pending")
	}

	b.pending[correlationID] = ch
	if b.metrics != nil {
		b.metrics.pendingRequests.Inc()
	}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.pending[correlationID]; ok && cur == ch {
			delete(b.pending, correlationID)
			if b.metrics != nil {
				b.metrics.pendingRequests.Dec()
			}
		}
	}
	return ch, cancel, nil
}

// Publish enqueues an inbound envelope for dispatch. It blocks while the
// queue is full and fails once the bus is closed. Transport read loops are
// the only intended callers.
func (b *Bus) Publish(env *protocol.Envelope) error {
	if env == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Bus", "Publish", "nil envelope")
	}
	if b.closed.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyClosed, "Bus", "Publish", "bus is closed")
	}

	select {
	case b.queue <- env:
		if b.metrics != nil {
			b.metrics.envelopesReceived.Inc()
			b.metrics.queueDepth.Set(float64(len(b.queue)))
		}
		return nil
	case <-b.done:
		return errors.WrapInvalid(errors.ErrAlreadyClosed, "Bus", "Publish", "bus is closed")
	}
}

// Close stops the dispatch goroutine and fails every pending one-shot by
// closing its channel. Envelopes still queued are dropped. Close is
// idempotent.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		b.wg.Wait()

		b.mu.Lock()
		for id, ch := range b.pending {
			delete(b.pending, id)
			close(ch)
			if b.metrics != nil {
				b.metrics.pendingRequests.Dec()
			}
		}
		b.mu.Unlock()

		b.logger.Debug("bus closed", "dropped_queue", len(b.queue))
	})
	return nil
}

// Name returns the name the bus was created with.
func (b *Bus) Name() string {
	return b.name
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PendingCount returns the number of unsettled one-shot waiters.
func (b *Bus) PendingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case env := <-b.queue:
			if b.metrics != nil {
				b.metrics.queueDepth.Set(float64(len(b.queue)))
			}
			b.dispatch(env)
		}
	}
}

func (b *Bus) dispatch(env *protocol.Envelope) {
	if env.IsResponse() {
		b.settle(env)
		return
	}
	b.multicast(env)
}

// settle delivers a response to its one-shot waiter. Whoever removes the
// entry from the map owns the delivery, so a response can never settle the
// same waiter twice, and late responses whose waiter already gave up are
// dropped quietly.
func (b *Bus) settle(env *protocol.Envelope) {
	correlationID := env.CorrelationID()
	if correlationID == "" {
		b.logger.Debug("dropping response without correlation id", "address", env.Address())
		if b.metrics != nil {
			b.metrics.responsesDropped.WithLabelValues(b.name, "no_correlation_id").Inc()
		}
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[correlationID]
	if ok {
		delete(b.pending, correlationID)
		if b.metrics != nil {
			b.metrics.pendingRequests.Dec()
		}
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping late or unmatched response", "correlation_id", correlationID)
		if b.metrics != nil {
			b.metrics.responsesDropped.WithLabelValues(b.name, "unmatched").Inc()
		}
		return
	}

	ch <- env
	if b.metrics != nil {
		b.metrics.responsesMatched.Inc()
	}
}

func (b *Bus) multicast(env *protocol.Envelope) {
	address := env.Address()

	type delivery struct {
		id       string
		handler  Handler
		captures Captures
	}

	// Snapshot matches under the read lock, invoke without it, so handlers
	// may subscribe and cancel freely.
	b.mu.RLock()
	var matches []delivery
	for _, sub := range b.subs {
		if captures, ok := sub.selector.Match(address); ok {
			matches = append(matches, delivery{sub.id, sub.handler, captures})
		}
	}
	b.mu.RUnlock()

	if len(matches) == 0 {
		b.logger.Debug("no subscription for envelope", "address", address)
		if b.metrics != nil {
			b.metrics.envelopesUnmatched.Inc()
		}
		return
	}

	for _, m := range matches {
		b.invoke(m.id, m.handler, env, m.captures)
	}
}

// invoke isolates handler panics so one broken callback cannot take down
// the dispatch goroutine.
func (b *Bus) invoke(id string, handler Handler, env *protocol.Envelope, captures Captures) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "registration_id", id, "panic", r)
			if b.metrics != nil {
				b.metrics.handlerPanics.Inc()
			}
		}
	}()
	handler(env, captures)
	if b.metrics != nil {
		b.metrics.envelopesDelivered.WithLabelValues(b.name, string(env.Topic.Criterion)).Inc()
	}
}
