package twin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// backendFunc decides how the fake backend answers one command.
type backendFunc func(env *protocol.Envelope) (status int, value any)

func okBackend(status int, value any) backendFunc {
	return func(*protocol.Envelope) (int, any) { return status, value }
}

// sentLog records every envelope the client pushed toward the backend.
type sentLog struct {
	mu   sync.Mutex
	envs []*protocol.Envelope
}

func (l *sentLog) last(t *testing.T) *protocol.Envelope {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.envs, "expected at least one sent envelope")
	return l.envs[len(l.envs)-1]
}

func (l *sentLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.envs)
}

// newTestClient wires a twin client to an in-process backend that records
// sent commands and answers them through the bus.
func newTestClient(t *testing.T, respond backendFunc) (*Client, *sentLog) {
	t.Helper()

	b, err := bus.New("twin")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	log := &sentLog{}
	send := func(_ context.Context, env *protocol.Envelope) error {
		log.mu.Lock()
		log.envs = append(log.envs, env)
		log.mu.Unlock()

		status, value := respond(env)
		resp, err := protocol.NewResponse(env, status, value)
		if err != nil {
			return err
		}
		return b.Publish(resp)
	}

	ex, err := correlation.New(b, send, correlation.WithTimeout(2*time.Second))
	require.NoError(t, err)
	return NewClient(b, ex, nil), log
}

func sensorID(t *testing.T) model.NamespacedID {
	t.Helper()
	return model.MustParseNamespacedID("org.acme:sensor-1")
}

func TestThingHandle_Retrieve(t *testing.T) {
	c, log := newTestClient(t, okBackend(200, map[string]any{
		"thingId":   "org.acme:sensor-1",
		"policyId":  "org.acme:default",
		"_revision": 7,
	}))

	thing, err := c.Thing(sensorID(t)).Retrieve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "org.acme:sensor-1", thing.ID.String())
	assert.Equal(t, "org.acme:default", thing.PolicyID)
	assert.Equal(t, int64(7), thing.Revision)

	sent := log.last(t)
	assert.Equal(t, "org.acme/sensor-1/things/twin/commands/retrieve", sent.Topic.String())
	assert.Equal(t, "", sent.Path)
}

func TestThingHandle_Create_StampsHandleID(t *testing.T) {
	echo := func(env *protocol.Envelope) (int, any) {
		return 201, json.RawMessage(env.Value)
	}
	c, log := newTestClient(t, echo)

	created, err := c.Thing(sensorID(t)).Create(context.Background(), model.Thing{
		Attributes: model.Attributes{"room": "lab"},
	})
	require.NoError(t, err)
	assert.Equal(t, sensorID(t), created.ID)

	var sentValue struct {
		ThingID string `json:"thingId"`
	}
	require.NoError(t, log.last(t).DecodeValue(&sentValue))
	assert.Equal(t, "org.acme:sensor-1", sentValue.ThingID)
}

func TestThingHandle_Create_RejectsForeignID(t *testing.T) {
	c, log := newTestClient(t, okBackend(201, nil))

	_, err := c.Thing(sensorID(t)).Create(context.Background(), model.Thing{
		ID: model.MustParseNamespacedID("org.acme:other"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, log.count(), "nothing should reach the backend")
}

func TestThingHandle_InvalidID_FailsBeforeSend(t *testing.T) {
	c, log := newTestClient(t, okBackend(200, nil))

	_, err := c.Thing(model.NamespacedID{}).Retrieve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, log.count())
}

func TestThingHandle_Merge_SetsMergePatchContentType(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))

	patch := map[string]any{"attributes": map[string]any{"room": nil}}
	require.NoError(t, c.Thing(sensorID(t)).Merge(context.Background(), patch))

	sent := log.last(t)
	assert.Equal(t, protocol.ActionMerge, sent.Topic.Action)
	assert.Equal(t, protocol.ContentTypeMergePatch, sent.Headers.ContentType())
}

func TestThingHandle_PutAttribute_BuildsPointerPath(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))

	err := c.Thing(sensorID(t)).PutAttribute(context.Background(), "location/latitude", 52.5)
	require.NoError(t, err)

	sent := log.last(t)
	assert.Equal(t, protocol.ActionModify, sent.Topic.Action)
	assert.Equal(t, "/attributes/location/latitude", sent.Path)
	assert.Equal(t, "52.5", string(sent.Value))
}

func TestThingHandle_PutAttribute_RejectsBadPaths(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))
	h := c.Thing(sensorID(t))

	for _, path := range []string{"", "/", "a//b"} {
		err := h.PutAttribute(context.Background(), path, 1)
		require.Error(t, err, "path %q", path)
		assert.True(t, errors.IsInvalid(err), "path %q", path)
	}
	assert.Equal(t, 0, log.count())
}

func TestThingHandle_PutPolicyID(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))

	require.NoError(t, c.Thing(sensorID(t)).PutPolicyID(context.Background(), "org.acme:readonly"))

	sent := log.last(t)
	assert.Equal(t, "/policyId", sent.Path)
	assert.Equal(t, `"org.acme:readonly"`, string(sent.Value))
}

func TestThingHandle_BackendError_SurfacesProtocolError(t *testing.T) {
	c, _ := newTestClient(t, okBackend(404, protocol.Error{
		StatusCode: 404,
		Code:       "things:thing.notfound",
		Message:    "The Thing was not found",
	}))

	_, err := c.Thing(sensorID(t)).Retrieve(context.Background())
	require.Error(t, err)

	var perr *protocol.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 404, perr.StatusCode)
	assert.Equal(t, "things:thing.notfound", perr.Code)
}

func TestThingHandle_DeleteFeature(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))

	require.NoError(t, c.Thing(sensorID(t)).DeleteFeature(context.Background(), "engine"))

	sent := log.last(t)
	assert.Equal(t, protocol.ActionDelete, sent.Topic.Action)
	assert.Equal(t, "/features/engine", sent.Path)
}

func TestFeatureHandle_Retrieve(t *testing.T) {
	c, log := newTestClient(t, okBackend(200, map[string]any{
		"properties": map[string]any{"rpm": 900},
	}))

	feature, err := c.Thing(sensorID(t)).Feature("engine").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, feature.Properties, "rpm")

	assert.Equal(t, "/features/engine", log.last(t).Path)
}

func TestFeatureHandle_RetrieveProperty(t *testing.T) {
	c, log := newTestClient(t, okBackend(200, 900))

	raw, err := c.Thing(sensorID(t)).Feature("engine").RetrieveProperty(context.Background(), "status/rpm")
	require.NoError(t, err)
	assert.Equal(t, "900", string(raw))

	sent := log.last(t)
	assert.Equal(t, protocol.ActionRetrieve, sent.Topic.Action)
	assert.Equal(t, "/features/engine/properties/status/rpm", sent.Path)
}

func TestFeatureHandle_PutDefinition(t *testing.T) {
	c, log := newTestClient(t, okBackend(204, nil))

	err := c.Thing(sensorID(t)).Feature("engine").
		PutDefinition(context.Background(), []string{"org.acme:engine:2.0.0"})
	require.NoError(t, err)

	sent := log.last(t)
	assert.Equal(t, "/features/engine/definition", sent.Path)
	assert.JSONEq(t, `["org.acme:engine:2.0.0"]`, string(sent.Value))
}

func TestFeatureHandle_EmptyFeatureID_FailsBeforeSend(t *testing.T) {
	c, log := newTestClient(t, okBackend(200, nil))

	_, err := c.Thing(sensorID(t)).Feature("").Retrieve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, log.count())
}

func TestClient_SearchHandleIsStable(t *testing.T) {
	c, _ := newTestClient(t, okBackend(200, nil))
	assert.Same(t, c.Search(), c.Search())
}
