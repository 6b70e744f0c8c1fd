package live

import (
	"log/slog"
	"sync"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/events"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// commandRegistrationID names the internal bus subscription feeding the
// command registry.
const commandRegistrationID = "live-commands"

// Client is the entry point for live channel interactions: answering
// commands, exchanging messages, emitting and observing events.
type Client struct {
	*events.Registrar

	bus      *bus.Bus
	exchange *correlation.Exchange
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[CommandKind]CommandFunc
}

// NewClient creates a live client on the given bus and exchange. Both must
// be backed by the live channel transport. The command subscription is
// installed here, so commands arriving before any HandleCommand call are
// observed and dropped with a log line rather than lost silently.
func NewClient(b *bus.Bus, exchange *correlation.Exchange, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		Registrar: events.NewRegistrar(b, logger),
		bus:       b,
		exchange:  exchange,
		logger:    logger.With("component", "live"),
		handlers:  make(map[CommandKind]CommandFunc),
	}

	selector, err := bus.CompileOr("/things/{thingId}", "/things/{thingId}/*")
	if err != nil {
		return nil, err
	}
	if _, err := b.Subscribe(selector, c.dispatch, bus.WithRegistrationID(commandRegistrationID)); err != nil {
		return nil, errors.Wrap(err, "LiveClient", "NewClient", "subscribe for commands")
	}
	return c, nil
}

// Thing returns a handle for the given thing on the live channel.
func (c *Client) Thing(id model.NamespacedID) *ThingHandle {
	return &ThingHandle{
		id: id,
		cmd: protocol.ThingCommand{
			Namespace: id.Namespace,
			Name:      id.Name,
			Channel:   protocol.ChannelLive,
		},
		exchange: c.exchange,
	}
}
