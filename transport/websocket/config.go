package websocket

import (
	"net/url"
	"time"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/pkg/tlsutil"
)

// ReconnectConfig controls automatic reconnection after a lost connection.
// The first Connect never retries; reconnection starts once a connection
// has been established and then drops.
type ReconnectConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"` // 0 = unlimited
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`
}

// Config holds the wire settings for a WebSocket transport.
type Config struct {
	// URL is the ws:// or wss:// endpoint, typically ending in /ws/2.
	URL string `json:"url" yaml:"url"`

	// Auth is applied to the handshake request on every connection attempt.
	Auth auth.Provider `json:"-" yaml:"-"`

	// TLS configures certificate verification for wss endpoints.
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`

	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	PingInterval     time.Duration `json:"ping_interval" yaml:"ping_interval"`
	PongTimeout      time.Duration `json:"pong_timeout" yaml:"pong_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// MessagesPerSecond rate-limits Send. Zero means unlimited.
	MessagesPerSecond float64 `json:"messages_per_second" yaml:"messages_per_second"`
	SendBurst         int     `json:"send_burst" yaml:"send_burst"`

	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// DefaultConfig returns a Config with production defaults. The URL must
// still be filled in.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 45 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBurst:        16,
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
		},
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "WebSocketTransport", "validate", "url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "WebSocketTransport", "validate",
			"parse url "+c.URL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapFatal(errors.ErrInvalidConfig, "WebSocketTransport", "validate",
			"url scheme must be ws or wss, got "+u.Scheme)
	}
	if c.MessagesPerSecond < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "WebSocketTransport", "validate",
			"messages_per_second must not be negative")
	}
	return nil
}

// normalized fills unset durations with the defaults so a zero-heavy
// literal Config still behaves.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SendBurst <= 0 {
		c.SendBurst = def.SendBurst
	}
	if c.Reconnect.InitialInterval <= 0 {
		c.Reconnect.InitialInterval = def.Reconnect.InitialInterval
	}
	if c.Reconnect.MaxInterval <= 0 {
		c.Reconnect.MaxInterval = def.Reconnect.MaxInterval
	}
	if c.Reconnect.Multiplier <= 1 {
		c.Reconnect.Multiplier = def.Reconnect.Multiplier
	}
	return c
}
