package twin

import (
	"log/slog"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/events"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
	"github.com/c360/twinstreams/search"
)

// Client is the entry point for twin channel interactions. It hands out
// thing handles, registers for twin events through the embedded Registrar
// and owns the search handle.
type Client struct {
	*events.Registrar

	exchange *correlation.Exchange
	logger   *slog.Logger
	search   *search.Handle
}

// NewClient creates a twin client on the given bus and exchange. Both must
// be backed by the twin channel transport.
func NewClient(b *bus.Bus, exchange *correlation.Exchange, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Registrar: events.NewRegistrar(b, logger),
		exchange:  exchange,
		logger:    logger.With("component", "twin"),
		search:    search.New(b, exchange, logger),
	}
}

// Thing returns a handle for the given thing. The id is validated when the
// first operation runs, so handles for not-yet-known things are fine.
func (c *Client) Thing(id model.NamespacedID) *ThingHandle {
	return &ThingHandle{
		id: id,
		cmd: protocol.ThingCommand{
			Namespace: id.Namespace,
			Name:      id.Name,
			Channel:   protocol.ChannelTwin,
		},
		exchange: c.exchange,
	}
}

// Search returns the handle for streaming search subscriptions.
func (c *Client) Search() *search.Handle {
	return c.search
}
