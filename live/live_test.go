package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/protocol"
)

const testWait = 2 * time.Second

// sentLog records every envelope the client pushed toward the backend.
type sentLog struct {
	mu   sync.Mutex
	envs []*protocol.Envelope
}

func (l *sentLog) add(env *protocol.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.envs = append(l.envs, env)
}

func (l *sentLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.envs)
}

func (l *sentLog) last(t *testing.T) *protocol.Envelope {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.envs, "expected at least one sent envelope")
	return l.envs[len(l.envs)-1]
}

// awaitSent blocks until the log holds at least n envelopes.
func (l *sentLog) awaitSent(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return l.count() >= n },
		testWait, 10*time.Millisecond, "expected %d sent envelopes", n)
}

// newTestClient wires a live client to an in-process backend. respond, when
// non-nil, answers outgoing requests through the bus; fire-and-forget sends
// are only recorded.
func newTestClient(t *testing.T, respond func(env *protocol.Envelope) (int, any)) (*Client, *bus.Bus, *sentLog) {
	t.Helper()

	b, err := bus.New("live")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	log := &sentLog{}
	send := func(_ context.Context, env *protocol.Envelope) error {
		log.add(env)
		if respond == nil || !env.Headers.ResponseRequired() {
			return nil
		}
		status, value := respond(env)
		resp, err := protocol.NewResponse(env, status, value)
		if err != nil {
			return err
		}
		return b.Publish(resp)
	}

	ex, err := correlation.New(b, send, correlation.WithTimeout(testWait))
	require.NoError(t, err)

	c, err := NewClient(b, ex, nil)
	require.NoError(t, err)
	return c, b, log
}

// inboundCommand builds a live command envelope as a peer would send it.
func inboundCommand(t *testing.T, action protocol.Action, path string, value any, opts ...protocol.Option) *protocol.Envelope {
	t.Helper()

	env, err := protocol.New(protocol.Topic{
		Namespace: "org.acme",
		Name:      "sensor-1",
		Group:     protocol.GroupThings,
		Channel:   protocol.ChannelLive,
		Criterion: protocol.CriterionCommands,
		Action:    action,
	}, path, value, append([]protocol.Option{protocol.WithCorrelationID("cmd-1")}, opts...)...)
	require.NoError(t, err)
	return env
}
