package twinstreams

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/pkg/tlsutil"
)

// DefaultName labels clients that were not given an explicit name. Names
// feed log attributes and metric label values, so two clients sharing one
// metric registry need distinct names.
const DefaultName = "twinstreams"

// Transport kinds accepted by TransportConfig.Kind.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Duration is a time.Duration that unmarshals from YAML and JSON either as
// a Go duration string such as "30s" or as an integer number of seconds.
// It marshals back to the string form.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.decode(raw)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.decode(raw)
}

func (d *Duration) decode(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "decode", "parse duration "+v)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		// JSON numbers arrive as float64.
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "decode",
			fmt.Sprintf("duration must be a string or seconds, got %T", raw))
	}
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ReconnectConfig controls automatic reconnection for transports built from
// configuration. The zero value keeps reconnection enabled with the
// transport's backoff defaults.
type ReconnectConfig struct {
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MaxRetries caps consecutive reconnect attempts. Zero means unlimited.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	InitialInterval Duration `json:"initial_interval,omitempty" yaml:"initial_interval,omitempty"`
	MaxInterval     Duration `json:"max_interval,omitempty" yaml:"max_interval,omitempty"`
	Multiplier      float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// TransportConfig describes the backend connection. Kind selects the wire
// protocol; the remaining fields only apply to the kind that uses them.
type TransportConfig struct {
	Kind string `json:"kind" yaml:"kind"`

	// URL is the backend endpoint: ws(s):// for websocket, nats:// for nats.
	URL string `json:"url" yaml:"url"`

	// WebSocket settings.
	HandshakeTimeout  Duration `json:"handshake_timeout,omitempty" yaml:"handshake_timeout,omitempty"`
	PingInterval      Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	MessagesPerSecond float64  `json:"messages_per_second,omitempty" yaml:"messages_per_second,omitempty"`

	// NATS settings.
	SubjectPrefix string `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
	ClientID      string `json:"client_id,omitempty" yaml:"client_id,omitempty"`

	Reconnect ReconnectConfig `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// AuthConfig selects how the client authenticates. Kind defaults to "none".
// For basic and bearer kinds the *_env fields name environment variables to
// read at client construction; when set they take precedence over inline
// credentials.
type AuthConfig struct {
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	UsernameEnv string `json:"username_env,omitempty" yaml:"username_env,omitempty"`
	PasswordEnv string `json:"password_env,omitempty" yaml:"password_env,omitempty"`

	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`

	// Subject is the asserted identity for the pre-authenticated kind.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// provider resolves the configured credentials into an auth.Provider.
func (a AuthConfig) provider() (auth.Provider, error) {
	switch a.Kind {
	case "", "none":
		return auth.None{}, nil
	case "basic":
		if a.UsernameEnv != "" || a.PasswordEnv != "" {
			return auth.BasicFromEnv(a.UsernameEnv, a.PasswordEnv)
		}
		if a.Username == "" {
			return nil, errors.WrapFatal(errors.ErrMissingConfig, "Config", "provider",
				"basic auth requires username or username_env")
		}
		return auth.Basic{Username: a.Username, Password: a.Password}, nil
	case "bearer":
		if a.TokenEnv != "" {
			return auth.BearerFromEnv(a.TokenEnv)
		}
		if a.Token == "" {
			return nil, errors.WrapFatal(errors.ErrMissingConfig, "Config", "provider",
				"bearer auth requires token or token_env")
		}
		return auth.Bearer{Token: a.Token}, nil
	case "pre-authenticated":
		if a.Subject == "" {
			return nil, errors.WrapFatal(errors.ErrMissingConfig, "Config", "provider",
				"pre-authenticated auth requires subject")
		}
		return auth.PreAuthenticated{Subject: a.Subject}, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "provider",
			"unknown auth kind "+a.Kind)
	}
}

// Config is the root client configuration. Transport.Kind and Transport.URL
// are the only required fields; everything else has a working default.
type Config struct {
	// Name labels this client in logs and metric labels.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Transport TransportConfig      `json:"transport" yaml:"transport"`
	Auth      AuthConfig           `json:"auth,omitempty" yaml:"auth,omitempty"`
	TLS       tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`

	// DefaultTimeout bounds request/response calls whose context carries no
	// deadline. Zero keeps the exchange default.
	DefaultTimeout Duration `json:"default_timeout,omitempty" yaml:"default_timeout,omitempty"`

	// BusCapacity sets each dispatch queue's size. Zero keeps the bus
	// default.
	BusCapacity int `json:"bus_capacity,omitempty" yaml:"bus_capacity,omitempty"`
}

// LoadConfig reads, parses and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapFatal(err, "Config", "LoadConfig", "read "+path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrap(err, "Config", "LoadConfig", "load "+path)
	}
	return cfg, nil
}

// ParseConfig parses and validates YAML configuration data. Validation runs
// on the raw document, so unknown keys are rejected rather than silently
// dropped.
func ParseConfig(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "ParseConfig", "parse yaml")
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "ParseConfig", "encode document")
	}
	if err := validateConfigDocument(doc); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "ParseConfig", "parse yaml")
	}
	return cfg, nil
}

// Validate checks the configuration against its schema. LoadConfig and
// ParseConfig already validate; call this directly when building a Config
// in code.
func (c Config) Validate() error {
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "encode config")
	}
	return validateConfigDocument(doc)
}

func validateConfigDocument(doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "evaluate schema")
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.Field()+": "+desc.Description())
	}
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
		strings.Join(details, "; "))
}
