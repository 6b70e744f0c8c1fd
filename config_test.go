package twinstreams

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/auth"
	"github.com/c360/twinstreams/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
name: edge-gateway
transport:
  kind: websocket
  url: wss://ditto.example.com/ws/2
  handshake_timeout: 15s
  ping_interval: 20s
  messages_per_second: 40
  reconnect:
    max_retries: 10
    initial_interval: 500ms
    max_interval: 1m30s
    multiplier: 1.5
auth:
  kind: basic
  username: ditto
  password: secret
tls:
  min_version: "1.3"
default_timeout: 45s
bus_capacity: 512
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "edge-gateway", cfg.Name)
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, "wss://ditto.example.com/ws/2", cfg.Transport.URL)
	assert.Equal(t, 15*time.Second, cfg.Transport.HandshakeTimeout.Std())
	assert.Equal(t, 20*time.Second, cfg.Transport.PingInterval.Std())
	assert.Equal(t, 40.0, cfg.Transport.MessagesPerSecond)
	assert.Equal(t, 10, cfg.Transport.Reconnect.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.Reconnect.InitialInterval.Std())
	assert.Equal(t, 90*time.Second, cfg.Transport.Reconnect.MaxInterval.Std())
	assert.Equal(t, 1.5, cfg.Transport.Reconnect.Multiplier)
	assert.Equal(t, "basic", cfg.Auth.Kind)
	assert.Equal(t, "1.3", cfg.TLS.MinVersion)
	assert.Equal(t, 45*time.Second, cfg.DefaultTimeout.Std())
	assert.Equal(t, 512, cfg.BusCapacity)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestParseConfigNATS(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
transport:
  kind: nats
  url: nats://broker:4222
  subject_prefix: factory
  client_id: edge-7
  reconnect:
    disabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, "nats://broker:4222", cfg.Transport.URL)
	assert.Equal(t, "factory", cfg.Transport.SubjectPrefix)
	assert.Equal(t, "edge-7", cfg.Transport.ClientID)
	assert.True(t, cfg.Transport.Reconnect.Disabled)
}

func TestParseConfigRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
transport:
  kind: websocket
  url: wss://example.com/ws/2
bus_capcity: 10
`,
		"missing transport": `
name: lonely
`,
		"bad kind": `
transport:
  kind: carrier-pigeon
  url: somewhere
`,
		"empty url": `
transport:
  kind: nats
  url: ""
`,
		"negative rate": `
transport:
  kind: websocket
  url: wss://example.com/ws/2
  messages_per_second: -3
`,
		"zero bus capacity": `
transport:
  kind: nats
  url: nats://localhost:4222
bus_capacity: 0
`,
		"malformed duration": `
transport:
  kind: websocket
  url: wss://example.com/ws/2
  ping_interval: soon
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestDurationForms(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
transport:
  kind: nats
  url: nats://localhost:4222
  ping_interval: 25
default_timeout: 1m30s
`))
	require.NoError(t, err)
	assert.Equal(t, 25*time.Second, cfg.Transport.PingInterval.Std(), "bare integers are seconds")
	assert.Equal(t, 90*time.Second, cfg.DefaultTimeout.Std())
}

func TestConfigValidateInCode(t *testing.T) {
	cfg := Config{
		Transport:      TransportConfig{Kind: TransportNATS, URL: "nats://localhost:4222"},
		DefaultTimeout: Duration(90 * time.Second),
	}
	require.NoError(t, cfg.Validate())

	cfg.Transport.Kind = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestAuthConfigProvider(t *testing.T) {
	p, err := AuthConfig{}.provider()
	require.NoError(t, err)
	assert.Equal(t, "none", p.Kind())

	p, err = AuthConfig{Kind: "basic", Username: "ditto", Password: "secret"}.provider()
	require.NoError(t, err)
	assert.Equal(t, auth.Basic{Username: "ditto", Password: "secret"}, p)

	t.Setenv("TWINSTREAMS_TEST_USER", "env-user")
	t.Setenv("TWINSTREAMS_TEST_PASS", "env-pass")
	p, err = AuthConfig{
		Kind:        "basic",
		UsernameEnv: "TWINSTREAMS_TEST_USER",
		PasswordEnv: "TWINSTREAMS_TEST_PASS",
	}.provider()
	require.NoError(t, err)
	assert.Equal(t, auth.Basic{Username: "env-user", Password: "env-pass"}, p)

	p, err = AuthConfig{Kind: "bearer", Token: "tok"}.provider()
	require.NoError(t, err)
	assert.Equal(t, auth.Bearer{Token: "tok"}, p)

	p, err = AuthConfig{Kind: "pre-authenticated", Subject: "nginx:ditto"}.provider()
	require.NoError(t, err)
	assert.Equal(t, auth.PreAuthenticated{Subject: "nginx:ditto"}, p)

	_, err = AuthConfig{Kind: "basic"}.provider()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	_, err = AuthConfig{Kind: "bearer"}.provider()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	_, err = AuthConfig{Kind: "pre-authenticated"}.provider()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	_, err = AuthConfig{Kind: "saml"}.provider()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}
