package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/metric"
	"github.com/c360/twinstreams/protocol"
)

const testWait = 2 * time.Second

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()

	b, err := New("twin", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func eventEnvelope(t *testing.T, topic, path string) *protocol.Envelope {
	t.Helper()

	env, err := protocol.New(protocol.MustParseTopic(topic), path, nil)
	require.NoError(t, err)
	return env
}

func responseEnvelope(t *testing.T, correlationID string, status int) *protocol.Envelope {
	t.Helper()

	env, err := protocol.New(
		protocol.MustParseTopic("org.acme/t1/things/twin/commands/retrieve"),
		"/", nil,
		protocol.WithCorrelationID(correlationID),
	)
	require.NoError(t, err)
	env.Status = status
	return env
}

type delivery struct {
	env      *protocol.Envelope
	captures Captures
}

func recordingHandler(ch chan delivery) Handler {
	return func(env *protocol.Envelope, captures Captures) {
		ch <- delivery{env: env, captures: captures}
	}
}

func awaitDelivery(t *testing.T, ch chan delivery) delivery {
	t.Helper()

	select {
	case d := <-ch:
		return d
	case <-time.After(testWait):
		t.Fatal("timed out waiting for delivery")
		return delivery{}
	}
}

func TestBus_SubscribeAndPublish(t *testing.T) {
	b := newTestBus(t)

	deliveries := make(chan delivery, 1)
	sub, err := b.Subscribe(MustCompile("/things/{thingId}/attributes/*"), recordingHandler(deliveries))
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	env := eventEnvelope(t, "org.acme/t1/things/twin/events/modified", "/attributes/location")
	require.NoError(t, b.Publish(env))

	got := awaitDelivery(t, deliveries)
	assert.Equal(t, env, got.env)
	assert.Equal(t, "org.acme:t1", got.captures["thingId"])
}

func TestBus_NonMatchingAddressNotDelivered(t *testing.T) {
	b := newTestBus(t)

	wrong := make(chan delivery, 1)
	_, err := b.Subscribe(MustCompile("/policies/{policyId}"), recordingHandler(wrong))
	require.NoError(t, err)

	// A second subscription on the same bus acts as a fence: dispatch is
	// in receipt order, so once this fires the first had its chance.
	fence := make(chan delivery, 1)
	_, err = b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(fence))
	require.NoError(t, err)

	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/")))

	awaitDelivery(t, fence)
	assert.Empty(t, wrong)
}

func TestBus_MulticastToAllMatches(t *testing.T) {
	b := newTestBus(t)

	first := make(chan delivery, 1)
	second := make(chan delivery, 1)
	_, err := b.Subscribe(MustCompile("/things/{thingId}/*"), recordingHandler(first))
	require.NoError(t, err)
	_, err = b.Subscribe(MustCompile("/things/org.acme:t1/features/{featureId}/*"), recordingHandler(second))
	require.NoError(t, err)

	env := eventEnvelope(t, "org.acme/t1/things/twin/events/modified", "/features/engine/properties/rpm")
	require.NoError(t, b.Publish(env))

	got := awaitDelivery(t, first)
	assert.Equal(t, "org.acme:t1", got.captures["thingId"])

	got = awaitDelivery(t, second)
	assert.Equal(t, "engine", got.captures["featureId"])
}

func TestBus_ReceiptOrderPreserved(t *testing.T) {
	b := newTestBus(t)

	const count = 50
	deliveries := make(chan delivery, count)
	_, err := b.Subscribe(MustCompile("/things/{thingId}/*"), recordingHandler(deliveries))
	require.NoError(t, err)

	for i := 0; i < count; i++ {
		env := eventEnvelope(t, "org.acme/t1/things/twin/events/modified", fmt.Sprintf("/attributes/a%d", i))
		require.NoError(t, b.Publish(env))
	}

	for i := 0; i < count; i++ {
		got := awaitDelivery(t, deliveries)
		assert.Equal(t, fmt.Sprintf("/attributes/a%d", i), got.env.Path)
	}
}

func TestBus_ResponseSettlesWaiter(t *testing.T) {
	b := newTestBus(t)

	respCh, cancel, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)
	defer cancel()
	assert.Equal(t, 1, b.PendingCount())

	env := responseEnvelope(t, "corr-1", 200)
	require.NoError(t, b.Publish(env))

	select {
	case got, ok := <-respCh:
		require.True(t, ok)
		assert.Equal(t, env, got)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for response")
	}

	assert.Equal(t, 0, b.PendingCount())
}

func TestBus_ResponseNotMulticast(t *testing.T) {
	b := newTestBus(t)

	deliveries := make(chan delivery, 2)
	_, err := b.Subscribe(MustCompile("/things/{thingId}/*"), recordingHandler(deliveries))
	require.NoError(t, err)

	respCh, cancel, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)
	defer cancel()

	// The response is published first. If it were multicast the handler
	// would see it before the event, because dispatch preserves order.
	resp := responseEnvelope(t, "corr-1", 200)
	resp.Path = "/attributes/location"
	require.NoError(t, b.Publish(resp))

	event := eventEnvelope(t, "org.acme/t1/things/twin/events/modified", "/attributes/location")
	require.NoError(t, b.Publish(event))

	got := awaitDelivery(t, deliveries)
	assert.Equal(t, event, got.env)

	select {
	case got := <-respCh:
		assert.Equal(t, resp, got)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for response")
	}
}

func TestBus_LateResponseDropped(t *testing.T) {
	b := newTestBus(t)

	require.NoError(t, b.Publish(responseEnvelope(t, "nobody-waiting", 200)))

	// The loop must survive the drop and keep delivering.
	deliveries := make(chan delivery, 1)
	_, err := b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(deliveries))
	require.NoError(t, err)

	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/")))
	awaitDelivery(t, deliveries)
	assert.Equal(t, 0, b.PendingCount())
}

func TestBus_AwaitResponse_DuplicateCorrelationID(t *testing.T) {
	b := newTestBus(t)

	_, cancel, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)
	defer cancel()

	_, _, err = b.AwaitResponse("corr-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateRegistration))
}

func TestBus_AwaitResponse_CancelFreesSlot(t *testing.T) {
	b := newTestBus(t)

	for i := 0; i < 100; i++ {
		_, cancel, err := b.AwaitResponse("corr-1")
		require.NoError(t, err)
		cancel()
	}
	assert.Equal(t, 0, b.PendingCount())

	// Cancel after settlement must not disturb a successor waiter
	// reusing the same correlation id.
	respCh, cancel, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)
	require.NoError(t, b.Publish(responseEnvelope(t, "corr-1", 200)))
	select {
	case <-respCh:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for response")
	}

	successor, successorCancel, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)
	defer successorCancel()

	cancel()
	assert.Equal(t, 1, b.PendingCount())

	require.NoError(t, b.Publish(responseEnvelope(t, "corr-1", 200)))
	select {
	case _, ok := <-successor:
		assert.True(t, ok)
	case <-time.After(testWait):
		t.Fatal("timed out waiting for successor response")
	}
}

func TestBus_Subscribe_DuplicateRegistrationID(t *testing.T) {
	b := newTestBus(t)

	handler := func(*protocol.Envelope, Captures) {}
	_, err := b.Subscribe(MustCompile("/things/{thingId}"), handler, WithRegistrationID("handler-1"))
	require.NoError(t, err)

	_, err = b.Subscribe(MustCompile("/policies/{policyId}"), handler, WithRegistrationID("handler-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateRegistration))

	// The id becomes available again once the registration is gone.
	require.True(t, b.Unsubscribe("handler-1"))
	_, err = b.Subscribe(MustCompile("/policies/{policyId}"), handler, WithRegistrationID("handler-1"))
	assert.NoError(t, err)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)

	deliveries := make(chan delivery, 1)
	sub, err := b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(deliveries))
	require.NoError(t, err)
	assert.Equal(t, 1, b.SubscriptionCount())

	assert.True(t, b.Unsubscribe(sub.ID()))
	assert.False(t, b.Unsubscribe(sub.ID()))
	assert.Equal(t, 0, b.SubscriptionCount())

	fence := make(chan delivery, 1)
	_, err = b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(fence))
	require.NoError(t, err)

	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/")))
	awaitDelivery(t, fence)
	assert.Empty(t, deliveries)
}

func TestBus_SubscriptionCancel(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe(MustCompile("/things/{thingId}"), func(*protocol.Envelope, Captures) {})
	require.NoError(t, err)

	sub.Cancel()
	assert.Equal(t, 0, b.SubscriptionCount())
	sub.Cancel()
}

func TestBus_HandlerPanicIsolation(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe(MustCompile("/things/{thingId}"), func(*protocol.Envelope, Captures) {
		panic("boom")
	})
	require.NoError(t, err)

	deliveries := make(chan delivery, 2)
	_, err = b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(deliveries))
	require.NoError(t, err)

	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/")))
	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t2/things/twin/events/created", "/")))

	got := awaitDelivery(t, deliveries)
	assert.Equal(t, "org.acme:t1", got.captures["thingId"])
	got = awaitDelivery(t, deliveries)
	assert.Equal(t, "org.acme:t2", got.captures["thingId"])
}

func TestBus_PublishNil(t *testing.T) {
	b := newTestBus(t)

	err := b.Publish(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestBus_Close(t *testing.T) {
	b, err := New("twin")
	require.NoError(t, err)

	respCh, _, err := b.AwaitResponse("corr-1")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	// Close settles outstanding waiters by closing their channels.
	select {
	case _, ok := <-respCh:
		assert.False(t, ok)
	case <-time.After(testWait):
		t.Fatal("pending channel not closed on shutdown")
	}

	err = b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/"))
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))

	_, err = b.Subscribe(MustCompile("/things/{thingId}"), func(*protocol.Envelope, Captures) {})
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))

	_, _, err = b.AwaitResponse("corr-2")
	assert.True(t, errors.Is(err, errors.ErrAlreadyClosed))
}

func TestBus_WithMetrics(t *testing.T) {
	registry := metric.NewRegistry()
	b := newTestBus(t, WithMetrics(registry))

	deliveries := make(chan delivery, 1)
	_, err := b.Subscribe(MustCompile("/things/{thingId}"), recordingHandler(deliveries))
	require.NoError(t, err)

	require.NoError(t, b.Publish(eventEnvelope(t, "org.acme/t1/things/twin/events/created", "/")))
	awaitDelivery(t, deliveries)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["twinstreams_bus_envelopes_received_total"])
	assert.True(t, names["twinstreams_bus_envelopes_delivered_total"])
}
