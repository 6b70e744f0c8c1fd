package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/protocol"
	"github.com/c360/twinstreams/transport"
)

func TestConfig_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222"}.normalized()

	assert.Equal(t, "twinstreams", cfg.SubjectPrefix)
	assert.NotEmpty(t, cfg.ClientID)
	assert.Equal(t, "twinstreams.commands", cfg.commandSubject())
	assert.Equal(t, "twinstreams.client."+cfg.ClientID, cfg.clientSubject())
	assert.Equal(t, "twinstreams.events.>", cfg.eventsSubject())
}

func TestConfig_CustomPrefix(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222", SubjectPrefix: "ditto", ClientID: "c1"}.normalized()

	assert.Equal(t, "ditto.commands", cfg.commandSubject())
	assert.Equal(t, "ditto.client.c1", cfg.clientSubject())
	assert.Equal(t, "ditto.events.>", cfg.eventsSubject())
}

func TestTransport_SendBeforeConnect(t *testing.T) {
	tr, err := New(Config{URL: "nats://localhost:4222"})
	require.NoError(t, err)

	env, err := protocol.New(protocol.MustParseTopic("org.acme/t1/things/twin/commands/retrieve"), "/", nil)
	require.NoError(t, err)

	err = tr.Send(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
	assert.Equal(t, transport.StatusDisconnected, tr.Status())
}

func TestTransport_ConnectRequiresHandler(t *testing.T) {
	tr, err := New(Config{URL: "nats://localhost:4222"})
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestTransport_CloseWithoutConnect(t *testing.T) {
	tr, err := New(Config{URL: "nats://localhost:4222"})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.Equal(t, transport.StatusClosed, tr.Status())

	err = tr.Connect(context.Background())
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))
}
