package nats

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/pkg/tlsutil"
)

// Config holds the wire settings for a NATS transport.
type Config struct {
	// URL is the NATS server address, such as nats://localhost:4222.
	URL string `json:"url" yaml:"url"`

	// SubjectPrefix roots the subject layout. Commands go to
	// <prefix>.commands, responses come back on <prefix>.client.<clientID>,
	// events arrive on <prefix>.events.>.
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`

	// ClientID names this client's response subject. Defaults to a fresh
	// UUID so two clients never share one.
	ClientID string `json:"client_id" yaml:"client_id"`

	// Name is the connection name visible in NATS monitoring.
	Name string `json:"name" yaml:"name"`

	// Auth maps onto NATS credentials: Basic becomes user/password, Bearer
	// becomes a token.
	Auth auth.Provider `json:"-" yaml:"-"`

	// TLS uses the file-based fields only: CertFile/KeyFile for the client
	// certificate and CAFiles for the trust roots.
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`

	// DisableReconnect turns the NATS client's automatic reconnection off.
	DisableReconnect bool `json:"disable_reconnect" yaml:"disable_reconnect"`
	// MaxReconnects caps reconnect attempts. Zero means unlimited.
	MaxReconnects int `json:"max_reconnects" yaml:"max_reconnects"`

	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	PingInterval   time.Duration `json:"ping_interval" yaml:"ping_interval"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	DrainTimeout   time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// DefaultConfig returns a Config with production defaults. The URL must
// still be filled in.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix:  "twinstreams",
		Name:           "twinstreams-client",
		ReconnectWait:  2 * time.Second,
		PingInterval:   30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		DrainTimeout:   30 * time.Second,
	}
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "NATSTransport", "validate", "url is required")
	}
	return nil
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = def.SubjectPrefix
	}
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = def.ReconnectWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	return c
}

func (c Config) commandSubject() string {
	return c.SubjectPrefix + ".commands"
}

func (c Config) clientSubject() string {
	return c.SubjectPrefix + ".client." + c.ClientID
}

func (c Config) eventsSubject() string {
	return c.SubjectPrefix + ".events.>"
}
