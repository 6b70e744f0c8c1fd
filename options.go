package twinstreams

import (
	"log/slog"
	"time"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/transport"
)

// Option configures a Client during construction.
type Option func(*Client) error

// WithLogger sets the structured logger shared by every component.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithLogger", "nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics registers every component's instruments with the registry.
// Close unregisters them again, so short-lived clients do not leak
// collectors. Give concurrent clients distinct names; they share the
// registry's prometheus namespace.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithMetrics", "nil registry")
		}
		c.registry = registry
		return nil
	}
}

// WithAuth replaces the configuration's auth section with an explicit
// provider. Use this for schemes the configuration cannot express, such as
// rotating tokens via auth.BearerFunc.
func WithAuth(provider auth.Provider) Option {
	return func(c *Client) error {
		if provider == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithAuth", "nil provider")
		}
		c.authOverride = provider
		return nil
	}
}

// WithDefaultTimeout overrides the configuration's request timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithDefaultTimeout",
				"timeout must be positive")
		}
		c.defaultTimeout = d
		return nil
	}
}

// WithBusCapacity overrides the configuration's dispatch queue size.
func WithBusCapacity(n int) Option {
	return func(c *Client) error {
		if n <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithBusCapacity",
				"capacity must be positive")
		}
		c.busCapacity = n
		return nil
	}
}

// WithProvider supplies an already-built transport shared by the twin and
// live channels, bypassing Config.Transport entirely. The client takes
// ownership and closes it on Close.
func WithProvider(p transport.Provider) Option {
	return func(c *Client) error {
		if p == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithProvider", "nil provider")
		}
		c.twinProvider = p
		c.liveProvider = p
		return nil
	}
}

// WithTwinProvider supplies the transport for the twin channel. When no
// live provider is given, the live channel shares it.
func WithTwinProvider(p transport.Provider) Option {
	return func(c *Client) error {
		if p == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithTwinProvider", "nil provider")
		}
		c.twinProvider = p
		return nil
	}
}

// WithLiveProvider supplies the transport for the live channel. When no
// twin provider is given, the twin channel shares it.
func WithLiveProvider(p transport.Provider) Option {
	return func(c *Client) error {
		if p == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithLiveProvider", "nil provider")
		}
		c.liveProvider = p
		return nil
	}
}

// WithStatusHandler observes connection state transitions. channel is
// "twin" or "live"; a shared transport reports each transition on both.
// The handler runs on transport goroutines and must not block.
func WithStatusHandler(h func(channel string, status transport.Status, err error)) Option {
	return func(c *Client) error {
		if h == nil {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithStatusHandler", "nil handler")
		}
		c.statusHandler = h
		return nil
	}
}
