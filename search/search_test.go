package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/protocol"
)

const testWait = 2 * time.Second

// fakeBackend implements the backend half of the search protocol over the
// exchange's send function. It answers the subscribe round trip, serves
// preloaded pages against granted demand and records every grant and
// cancel.
type fakeBackend struct {
	t   *testing.T
	b   *bus.Bus
	sid string

	// completeWhenDone ends the subscription cleanly once all pages are
	// served; failWhenDone fails it instead. ignoreDemand serves all
	// remaining pages regardless of the grant, violating the protocol.
	completeWhenDone bool
	failWhenDone     *protocol.Error
	ignoreDemand     bool
	subscribeStatus  int
	subscribeValue   any

	mu         sync.Mutex
	pending    [][]json.RawMessage
	requests   []int
	cancels    int
	doneSent   bool
	subscribed *protocol.Envelope
}

func (bk *fakeBackend) send(_ context.Context, env *protocol.Envelope) error {
	switch env.Topic.Action {
	case protocol.ActionSubscribe:
		bk.mu.Lock()
		bk.subscribed = env
		bk.mu.Unlock()

		status, value := bk.subscribeStatus, bk.subscribeValue
		if status == 0 {
			status = 200
		}
		if value == nil {
			value = subscriptionRef{SubscriptionID: bk.sid}
		}
		resp, err := protocol.NewResponse(env, status, value)
		if err != nil {
			return err
		}
		return bk.b.Publish(resp)

	case protocol.ActionRequest:
		var req requestPayload
		if err := env.DecodeValue(&req); err != nil {
			return err
		}

		bk.mu.Lock()
		bk.requests = append(bk.requests, req.Demand)
		n := req.Demand
		if bk.ignoreDemand || n > len(bk.pending) {
			n = len(bk.pending)
		}
		serve := bk.pending[:n]
		bk.pending = bk.pending[n:]
		finish := len(bk.pending) == 0 && !bk.doneSent
		if finish {
			bk.doneSent = true
		}
		bk.mu.Unlock()

		for _, items := range serve {
			if err := bk.frame(protocol.ActionNext, nextPayload{SubscriptionID: bk.sid, Items: items}); err != nil {
				return err
			}
		}
		if finish {
			if bk.failWhenDone != nil {
				return bk.frame(protocol.ActionFailed, failedPayload{SubscriptionID: bk.sid, Error: bk.failWhenDone})
			}
			if bk.completeWhenDone {
				return bk.frame(protocol.ActionComplete, subscriptionRef{SubscriptionID: bk.sid})
			}
		}
		return nil

	case protocol.ActionCancel:
		bk.mu.Lock()
		bk.cancels++
		bk.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unexpected action %s", env.Topic.Action)
	}
}

func (bk *fakeBackend) frame(action protocol.Action, value any) error {
	env, err := protocol.New(searchTopic(action), "/", value)
	if err != nil {
		return err
	}
	return bk.b.Publish(env)
}

func (bk *fakeBackend) grantLog() []int {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	out := make([]int, len(bk.requests))
	copy(out, bk.requests)
	return out
}

func (bk *fakeBackend) cancelCount() int {
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.cancels
}

// newTestHandle wires a search handle to the given backend.
func newTestHandle(t *testing.T, bk *fakeBackend) *Handle {
	t.Helper()

	b, err := bus.New("twin")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	bk.t = t
	bk.b = b
	if bk.sid == "" {
		bk.sid = "s-1"
	}

	ex, err := correlation.New(b, bk.send, correlation.WithTimeout(testWait))
	require.NoError(t, err)
	return New(b, ex, nil)
}

func page(ids ...string) []json.RawMessage {
	items := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		items[i] = json.RawMessage(`{"thingId":"` + id + `"}`)
	}
	return items
}

func collect(ctx context.Context, s *Stream) []string {
	var ids []string
	for s.Next(ctx) {
		ids = append(ids, s.Thing().ID.String())
	}
	return ids
}

func TestStream_IteratesAllPagesAndCompletes(t *testing.T) {
	bk := &fakeBackend{
		pending:          [][]json.RawMessage{page("org.acme:t1", "org.acme:t2"), page("org.acme:t3")},
		completeWhenDone: true,
	}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{})
	require.NoError(t, err)
	defer s.Close()

	ids := collect(context.Background(), s)
	assert.Equal(t, []string{"org.acme:t1", "org.acme:t2", "org.acme:t3"}, ids)
	assert.NoError(t, s.Err())

	assert.False(t, s.Next(context.Background()), "terminated stream must stay terminated")
	assert.Equal(t, 0, bk.cancelCount(), "completion must not cancel upstream")
	require.NotEmpty(t, bk.grantLog())
	assert.Equal(t, DefaultInitialDemand, bk.grantLog()[0])
}

func TestStream_SubscribePayload(t *testing.T) {
	bk := &fakeBackend{completeWhenDone: true}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{
		Filter:     `eq(attributes/location,"kitchen")`,
		Options:    []string{"sort(+thingId)"},
		PageSize:   25,
		Namespaces: []string{"org.acme"},
		Fields:     "thingId,attributes",
	})
	require.NoError(t, err)
	defer s.Close()

	bk.mu.Lock()
	sub := bk.subscribed
	bk.mu.Unlock()
	require.NotNil(t, sub)

	var payload subscribePayload
	require.NoError(t, sub.DecodeValue(&payload))
	assert.Equal(t, `eq(attributes/location,"kitchen")`, payload.Filter)
	assert.Equal(t, "sort(+thingId),size(25)", payload.Options)
	assert.Equal(t, []string{"org.acme"}, payload.Namespaces)
	assert.Equal(t, "thingId,attributes", payload.Fields)
}

func TestStream_DemandReplenishment(t *testing.T) {
	bk := &fakeBackend{
		pending: [][]json.RawMessage{
			page("org.acme:t1"), page("org.acme:t2"),
			page("org.acme:t3"), page("org.acme:t4"),
		},
		completeWhenDone: true,
	}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{InitialDemand: 2, Demand: 2})
	require.NoError(t, err)
	defer s.Close()

	ids := collect(context.Background(), s)
	require.Len(t, ids, 4)
	assert.NoError(t, s.Err())

	// Initial grant, then one replenish per two consumed pages.
	assert.Equal(t, []int{2, 2, 2}, bk.grantLog())
}

func TestStream_Close_CancelsUpstreamOnce(t *testing.T) {
	bk := &fakeBackend{
		pending: [][]json.RawMessage{
			page("org.acme:t1"), page("org.acme:t2"), page("org.acme:t3"),
			page("org.acme:t4"), page("org.acme:t5"),
		},
	}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{})
	require.NoError(t, err)

	require.True(t, s.Next(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, bk.cancelCount(), "cancel must be sent exactly once")
	assert.False(t, s.Next(context.Background()))
	assert.NoError(t, s.Err(), "Close is not an error")
}

func TestStream_BackendFailure_SurfacesError(t *testing.T) {
	bk := &fakeBackend{
		pending: [][]json.RawMessage{page("org.acme:t1")},
		failWhenDone: &protocol.Error{
			StatusCode: 400,
			Code:       "things:search.filter.invalid",
			Message:    "The filter could not be parsed",
		},
	}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{})
	require.NoError(t, err)
	defer s.Close()

	for s.Next(context.Background()) {
	}

	require.Error(t, s.Err())
	var perr *protocol.Error
	require.True(t, errors.As(s.Err(), &perr))
	assert.Equal(t, "things:search.filter.invalid", perr.Code)
	assert.Equal(t, 0, bk.cancelCount(), "failure must not cancel upstream")
}

func TestStream_ContextCancel_TerminatesAndCancels(t *testing.T) {
	bk := &fakeBackend{pending: [][]json.RawMessage{page("org.acme:t1")}}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, s.Next(ctx))

	cancel()
	assert.False(t, s.Next(ctx))
	require.Error(t, s.Err())
	assert.True(t, errors.IsTransient(s.Err()))
	assert.Equal(t, 1, bk.cancelCount())
}

func TestStream_MalformedItem_FailsStream(t *testing.T) {
	bk := &fakeBackend{
		pending: [][]json.RawMessage{{json.RawMessage(`42`)}},
	}
	h := newTestHandle(t, bk)

	s, err := h.Stream(context.Background(), Query{})
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Next(context.Background()))
	require.Error(t, s.Err())
	assert.True(t, errors.Is(s.Err(), errors.ErrTypeMismatch))
	assert.Equal(t, 1, bk.cancelCount())
}

func TestStream_PageBeyondDemand_FailsStream(t *testing.T) {
	bk := &fakeBackend{
		pending: [][]json.RawMessage{
			page("org.acme:t1"), page("org.acme:t2"),
			page("org.acme:t3"), page("org.acme:t4"),
		},
		ignoreDemand: true,
	}
	h := newTestHandle(t, bk)

	// InitialDemand 2 buffers two pages; the backend floods all four
	// without waiting for grants.
	s, err := h.Stream(context.Background(), Query{InitialDemand: 2})
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return bk.cancelCount() == 1 },
		testWait, 10*time.Millisecond, "demand violation must cancel the subscription")

	assert.False(t, s.Next(context.Background()))
	require.Error(t, s.Err())
	assert.True(t, errors.IsInvalid(s.Err()))
}

func TestStream_SubscribeRejected(t *testing.T) {
	bk := &fakeBackend{
		subscribeStatus: 400,
		subscribeValue: protocol.Error{
			StatusCode: 400,
			Code:       "things:search.subscription.invalid",
			Message:    "Invalid namespaces",
		},
	}
	h := newTestHandle(t, bk)

	_, err := h.Stream(context.Background(), Query{Namespaces: []string{""}})
	require.Error(t, err)

	var perr *protocol.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 400, perr.StatusCode)
}

func TestStream_SubscribeWithoutSubscriptionID(t *testing.T) {
	bk := &fakeBackend{subscribeValue: map[string]any{"unexpected": true}}
	h := newTestHandle(t, bk)

	_, err := h.Stream(context.Background(), Query{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestQuery_Normalized(t *testing.T) {
	q := Query{}.normalized()
	assert.Equal(t, DefaultInitialDemand, q.InitialDemand)
	assert.Equal(t, DefaultDemand, q.Demand)

	q = Query{InitialDemand: 1, Demand: 8}.normalized()
	assert.Equal(t, 1, q.Demand, "demand is clamped to the buffer size")

	q = Query{PageSize: 10, Options: []string{"sort(+thingId)"}}.normalized()
	assert.Equal(t, []string{"sort(+thingId)", "size(10)"}, q.Options)
}
