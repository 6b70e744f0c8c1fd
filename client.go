package twinstreams

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/live"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/policies"
	"github.com/c360/twinstreams/protocol"
	"github.com/c360/twinstreams/transport"
	"github.com/c360/twinstreams/transport/nats"
	"github.com/c360/twinstreams/transport/websocket"
	"github.com/c360/twinstreams/twin"
)

// Channel names reported to status handlers and used as metric label
// values. They match the protocol channel segment of the envelopes each
// side carries.
const (
	channelTwin = "twin"
	channelLive = "live"
)

// Client is the root handle to a digital twin backend. It owns the
// transport connections, one dispatch bus per channel and the twin, live
// and policies sub-clients. Construct with New, start with Connect, stop
// with Close.
//
// All methods are safe for concurrent use.
type Client struct {
	name   string
	logger *slog.Logger
	log    *slog.Logger

	registry *metric.Registry
	metrics  *clientMetrics

	twinProvider transport.Provider
	liveProvider transport.Provider
	shared       bool

	twinBus *bus.Bus
	liveBus *bus.Bus

	twin     *twin.Client
	live     *live.Client
	policies *policies.Client

	statusHandler  func(channel string, status transport.Status, err error)
	defaultTimeout time.Duration
	busCapacity    int
	authOverride   auth.Provider

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New assembles a client from configuration and options. When no provider
// option is given, the transport is built from cfg.Transport and the
// configuration is validated against its schema; with explicit providers
// the transport section may stay empty.
//
// The returned client is inert until Connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		name:           cfg.Name,
		logger:         slog.Default(),
		defaultTimeout: cfg.DefaultTimeout.Std(),
		busCapacity:    cfg.BusCapacity,
	}
	if c.name == "" {
		c.name = DefaultName
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.log = c.logger.With("component", "client", "client", c.name)

	if err := c.resolveProviders(cfg); err != nil {
		return nil, err
	}
	c.shared = c.twinProvider == c.liveProvider

	twinBusName := c.name + "-twin"
	liveBusName := c.name + "-live"

	fail := func(err error) (*Client, error) {
		if c.twinBus != nil {
			_ = c.twinBus.Close()
		}
		if c.liveBus != nil {
			_ = c.liveBus.Close()
		}
		if c.registry != nil {
			c.registry.UnregisterComponent(twinBusName)
			c.registry.UnregisterComponent(liveBusName)
		}
		return nil, err
	}

	busOpts := []bus.Option{bus.WithLogger(c.logger)}
	if c.busCapacity > 0 {
		busOpts = append(busOpts, bus.WithQueueCapacity(c.busCapacity))
	}
	if c.registry != nil {
		busOpts = append(busOpts, bus.WithMetrics(c.registry))
	}
	var err error
	if c.twinBus, err = bus.New(twinBusName, busOpts...); err != nil {
		return fail(err)
	}
	if c.liveBus, err = bus.New(liveBusName, busOpts...); err != nil {
		return fail(err)
	}

	exchangeOpts := []correlation.Option{correlation.WithLogger(c.logger)}
	if c.defaultTimeout > 0 {
		exchangeOpts = append(exchangeOpts, correlation.WithTimeout(c.defaultTimeout))
	}
	if c.registry != nil {
		exchangeOpts = append(exchangeOpts, correlation.WithMetrics(c.registry))
	}
	twinExchange, err := correlation.New(c.twinBus, c.twinProvider.Send, exchangeOpts...)
	if err != nil {
		return fail(err)
	}
	liveExchange, err := correlation.New(c.liveBus, c.liveProvider.Send, exchangeOpts...)
	if err != nil {
		return fail(err)
	}

	c.twin = twin.NewClient(c.twinBus, twinExchange, c.logger)
	c.policies = policies.NewClient(twinExchange, c.logger)
	if c.live, err = live.NewClient(c.liveBus, liveExchange, c.logger); err != nil {
		return fail(err)
	}

	if c.registry != nil {
		c.metrics = newClientMetrics(c.name, c.registry)
	}

	if c.shared {
		c.twinProvider.SetHandler(c.route)
		c.twinProvider.SetStatusHandler(c.onStatus(channelTwin, channelLive))
	} else {
		c.twinProvider.SetHandler(func(env *protocol.Envelope) { c.deliver(c.twinBus, env) })
		c.liveProvider.SetHandler(func(env *protocol.Envelope) { c.deliver(c.liveBus, env) })
		c.twinProvider.SetStatusHandler(c.onStatus(channelTwin))
		c.liveProvider.SetStatusHandler(c.onStatus(channelLive))
	}
	return c, nil
}

// resolveProviders settles which transport serves which channel. Explicit
// providers win; a single-sided option serves both channels; with none,
// the transport comes from the validated configuration.
func (c *Client) resolveProviders(cfg Config) error {
	if c.twinProvider != nil || c.liveProvider != nil {
		if c.twinProvider == nil {
			c.twinProvider = c.liveProvider
		}
		if c.liveProvider == nil {
			c.liveProvider = c.twinProvider
		}
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	authProvider := c.authOverride
	if authProvider == nil {
		var err error
		if authProvider, err = cfg.Auth.provider(); err != nil {
			return err
		}
	}
	provider, err := buildProvider(c.name, cfg, authProvider, c.logger, c.registry)
	if err != nil {
		return err
	}
	c.twinProvider = provider
	c.liveProvider = provider
	return nil
}

// buildProvider maps the transport section onto the concrete provider's
// config. Zero fields keep the provider's own defaults.
func buildProvider(name string, cfg Config, provider auth.Provider, logger *slog.Logger, registry *metric.Registry) (transport.Provider, error) {
	rc := cfg.Transport.Reconnect
	switch cfg.Transport.Kind {
	case TransportWebSocket:
		wsCfg := websocket.Config{
			URL:               cfg.Transport.URL,
			Auth:              provider,
			TLS:               cfg.TLS,
			HandshakeTimeout:  cfg.Transport.HandshakeTimeout.Std(),
			PingInterval:      cfg.Transport.PingInterval.Std(),
			MessagesPerSecond: cfg.Transport.MessagesPerSecond,
			Reconnect: websocket.ReconnectConfig{
				Enabled:         !rc.Disabled,
				MaxRetries:      rc.MaxRetries,
				InitialInterval: rc.InitialInterval.Std(),
				MaxInterval:     rc.MaxInterval.Std(),
				Multiplier:      rc.Multiplier,
			},
		}
		opts := []websocket.Option{websocket.WithLogger(logger)}
		if registry != nil {
			opts = append(opts, websocket.WithMetrics(registry))
		}
		return websocket.New(wsCfg, opts...)
	case TransportNATS:
		nCfg := nats.Config{
			URL:              cfg.Transport.URL,
			SubjectPrefix:    cfg.Transport.SubjectPrefix,
			ClientID:         cfg.Transport.ClientID,
			Name:             name,
			Auth:             provider,
			TLS:              cfg.TLS,
			DisableReconnect: rc.Disabled,
			MaxReconnects:    rc.MaxRetries,
			ReconnectWait:    rc.InitialInterval.Std(),
			PingInterval:     cfg.Transport.PingInterval.Std(),
		}
		opts := []nats.Option{nats.WithLogger(logger)}
		if registry != nil {
			opts = append(opts, nats.WithMetrics(registry))
		}
		return nats.New(nCfg, opts...)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "buildProvider",
			"unknown transport kind "+cfg.Transport.Kind)
	}
}

// Connect establishes the transport connections and blocks until every
// provider is connected or ctx is done. A failed Connect leaves the client
// connectable again; a successful one makes further calls return
// ErrAlreadyStarted.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(errors.ErrAlreadyClosed, "Client", "Connect", "connect "+c.name)
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Connect", "connect "+c.name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.twinProvider.Connect(gctx) })
	if !c.shared {
		g.Go(func() error { return c.liveProvider.Connect(gctx) })
	}
	if err := g.Wait(); err != nil {
		c.started.Store(false)
		return errors.Wrap(err, "Client", "Connect", "establish transport connection")
	}
	c.log.Info("connected", "shared_transport", c.shared)
	return nil
}

// Close tears the client down: transports first so nothing new arrives,
// then the dispatch buses, then the metric registrations. In-flight
// requests fail with ErrConnectionLost. Close is idempotent and safe to
// call before Connect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		var firstErr error
		record := func(err error) {
			if firstErr == nil && err != nil {
				firstErr = err
			}
		}
		record(c.twinProvider.Close())
		if !c.shared {
			record(c.liveProvider.Close())
		}
		record(c.twinBus.Close())
		record(c.liveBus.Close())

		if c.registry != nil {
			c.registry.UnregisterComponent(c.name)
			c.registry.UnregisterComponent(c.twinBus.Name())
			c.registry.UnregisterComponent(c.liveBus.Name())
		}

		if firstErr != nil {
			c.closeErr = errors.Wrap(firstErr, "Client", "Close", "close "+c.name)
			return
		}
		c.log.Info("closed")
	})
	return c.closeErr
}

// Twin accesses persisted twin state: thing and feature handles, change
// registrations and search.
func (c *Client) Twin() *twin.Client { return c.twin }

// Live accesses the live channel: command handling, peer messages and
// live events.
func (c *Client) Live() *live.Client { return c.live }

// Policies manages access control policies.
func (c *Client) Policies() *policies.Client { return c.policies }

// Name returns the label this client uses in logs and metrics.
func (c *Client) Name() string { return c.name }

// Status reports each channel's connection state. With a shared transport
// both values are equal.
func (c *Client) Status() (twinStatus, liveStatus transport.Status) {
	return c.twinProvider.Status(), c.liveProvider.Status()
}

// route sends shared-transport envelopes to the bus owning their channel.
// Everything without an explicit live channel belongs to the twin bus:
// twin commands and events, policy envelopes whose topics carry no channel,
// and search frames.
func (c *Client) route(env *protocol.Envelope) {
	if env == nil {
		return
	}
	b := c.twinBus
	if env.Topic.Channel == protocol.ChannelLive {
		b = c.liveBus
	}
	c.deliver(b, env)
}

func (c *Client) deliver(b *bus.Bus, env *protocol.Envelope) {
	if err := b.Publish(env); err != nil {
		c.log.Warn("dropping inbound envelope",
			"bus", b.Name(),
			"topic", env.Topic.String(),
			"error", err)
	}
}

// onStatus fans one provider's transitions out to the per-channel gauge
// and the user's status handler. A shared provider reports both channels.
func (c *Client) onStatus(channels ...string) transport.StatusHandler {
	return func(status transport.Status, err error) {
		for _, ch := range channels {
			c.metrics.setStatus(ch, status)
			if c.statusHandler != nil {
				c.statusHandler(ch, status, err)
			}
		}
		if err != nil {
			c.log.Warn("transport status changed", "status", status.String(), "error", err)
			return
		}
		c.log.Debug("transport status changed", "status", status.String())
	}
}
