package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/protocol"
)

func testEnvelope(t *testing.T, value any) *protocol.Envelope {
	t.Helper()

	env, err := protocol.New(
		protocol.MustParseTopic("org.acme/t1/things/twin/commands/modify"),
		"/attributes/location", value,
		protocol.WithCorrelationID("corr-1"))
	require.NoError(t, err)
	return env
}

func TestLocal_SendReachesPeer(t *testing.T) {
	l := NewLocal()
	l.SetHandler(func(*protocol.Envelope) {})
	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, StatusConnected, l.Status())

	env := testEnvelope(t, map[string]any{"lat": 52.5})
	require.NoError(t, l.Send(context.Background(), env))

	got := <-l.Peer().Outbound()
	assert.Equal(t, "corr-1", got.Headers.CorrelationID())
	assert.Equal(t, env.Topic, got.Topic)

	// The wire round-trip decodes the value fresh.
	var value map[string]any
	require.NoError(t, got.DecodeValue(&value))
	assert.Equal(t, 52.5, value["lat"])
}

func TestLocal_DeliverReachesHandler(t *testing.T) {
	l := NewLocal()

	received := make(chan *protocol.Envelope, 1)
	l.SetHandler(func(env *protocol.Envelope) { received <- env })
	require.NoError(t, l.Connect(context.Background()))

	require.NoError(t, l.Peer().Deliver(testEnvelope(t, nil)))
	got := <-received
	assert.Equal(t, "corr-1", got.Headers.CorrelationID())
}

func TestLocal_Responder(t *testing.T) {
	l := NewLocal()

	received := make(chan *protocol.Envelope, 1)
	l.SetHandler(func(env *protocol.Envelope) { received <- env })
	require.NoError(t, l.Connect(context.Background()))

	l.Peer().Respond(func(req *protocol.Envelope) *protocol.Envelope {
		resp, err := protocol.NewResponse(req, 204, nil)
		require.NoError(t, err)
		return resp
	})

	require.NoError(t, l.Send(context.Background(), testEnvelope(t, nil)))
	got := <-received
	assert.Equal(t, 204, got.Status)
	assert.Equal(t, "corr-1", got.Headers.CorrelationID())
}

func TestLocal_ConnectRequiresHandler(t *testing.T) {
	l := NewLocal()
	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestLocal_SendBeforeConnect(t *testing.T) {
	l := NewLocal()
	l.SetHandler(func(*protocol.Envelope) {})

	err := l.Send(context.Background(), testEnvelope(t, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotConnected))
}

func TestLocal_Close(t *testing.T) {
	l := NewLocal()
	l.SetHandler(func(*protocol.Envelope) {})
	require.NoError(t, l.Connect(context.Background()))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, StatusClosed, l.Status())

	err := l.Send(context.Background(), testEnvelope(t, nil))
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))

	err = l.Peer().Deliver(testEnvelope(t, nil))
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))

	// Outbound closes so draining tests terminate.
	_, open := <-l.Peer().Outbound()
	assert.False(t, open)
}

func TestLocal_StatusTransitions(t *testing.T) {
	l := NewLocal()
	l.SetHandler(func(*protocol.Envelope) {})

	var transitions []Status
	l.SetStatusHandler(func(s Status, _ error) { transitions = append(transitions, s) })

	require.NoError(t, l.Connect(context.Background()))
	l.Peer().Interrupt(errors.ErrConnectionLost)
	require.NoError(t, l.Close())

	assert.Equal(t, []Status{
		StatusConnected,
		StatusReconnecting,
		StatusConnected,
		StatusClosed,
	}, transitions)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "closed", StatusClosed.String())
	assert.Equal(t, "unknown", Status(99).String())
}
