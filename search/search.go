package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/protocol"
)

// Demand defaults. InitialDemand bounds how many result pages the client
// buffers ahead of consumption; Demand is the batch size requested once
// consumption frees that many buffer slots.
const (
	DefaultInitialDemand = 2
	DefaultDemand        = 1
)

// Query describes one search. The zero value streams every visible thing.
type Query struct {
	// Filter is an RQL expression such as `eq(attributes/location,"kitchen")`.
	// It is passed to the backend verbatim.
	Filter string

	// Options are backend paging and sorting directives such as
	// "sort(+thingId)". PageSize is appended as a size(n) option.
	Options  []string
	PageSize int

	// Namespaces restricts the search to the given namespaces.
	Namespaces []string

	// Fields is a projection selector such as "thingId,attributes/location".
	Fields string

	// InitialDemand is the number of pages buffered ahead of consumption,
	// DefaultInitialDemand when zero. Demand is the replenish batch,
	// DefaultDemand when zero, clamped to InitialDemand so the stream can
	// always make progress.
	InitialDemand int
	Demand        int
}

func (q Query) normalized() Query {
	if q.InitialDemand < 1 {
		q.InitialDemand = DefaultInitialDemand
	}
	if q.Demand < 1 {
		q.Demand = DefaultDemand
	}
	if q.Demand > q.InitialDemand {
		q.Demand = q.InitialDemand
	}
	if q.PageSize > 0 {
		q.Options = append(q.Options[:len(q.Options):len(q.Options)], "size("+strconv.Itoa(q.PageSize)+")")
	}
	return q
}

func (q Query) payload() subscribePayload {
	return subscribePayload{
		Filter:     q.Filter,
		Options:    strings.Join(q.Options, ","),
		Namespaces: q.Namespaces,
		Fields:     q.Fields,
	}
}

// Wire payloads of the search protocol. Every server frame names the
// subscription it belongs to, which is what routes it to the right stream.
type subscribePayload struct {
	Filter     string   `json:"filter,omitempty"`
	Options    string   `json:"options,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	Fields     string   `json:"fields,omitempty"`
}

type subscriptionRef struct {
	SubscriptionID string `json:"subscriptionId"`
}

type requestPayload struct {
	SubscriptionID string `json:"subscriptionId"`
	Demand         int    `json:"demand"`
}

type nextPayload struct {
	SubscriptionID string            `json:"subscriptionId"`
	Items          []json.RawMessage `json:"items"`
}

type failedPayload struct {
	SubscriptionID string          `json:"subscriptionId"`
	Error          *protocol.Error `json:"error"`
}

func searchTopic(action protocol.Action) protocol.Topic {
	return protocol.Topic{
		Namespace: protocol.TopicPlaceholder,
		Name:      protocol.TopicPlaceholder,
		Group:     protocol.GroupThings,
		Channel:   protocol.ChannelTwin,
		Criterion: protocol.CriterionSearch,
		Action:    action,
	}
}

// Handle runs search queries against the twin channel.
type Handle struct {
	bus      *bus.Bus
	exchange *correlation.Exchange
	logger   *slog.Logger
}

// New wires a search handle onto the twin bus and exchange.
func New(b *bus.Bus, ex *correlation.Exchange, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		bus:      b,
		exchange: ex,
		logger:   logger.With("component", b.Name()+"-search"),
	}
}

// Stream opens a demand-bounded result stream for the query. It subscribes
// on the backend, registers for the subscription's frames and grants the
// initial demand. The registration must exist before the first grant, or an
// immediate first page could arrive unroutable.
//
// The caller owns the returned stream and must drain it or close it;
// abandoning it without Close leaks a backend subscription until the
// connection drops.
func (h *Handle) Stream(ctx context.Context, q Query) (*Stream, error) {
	q = q.normalized()

	env, err := protocol.New(searchTopic(protocol.ActionSubscribe), "/", q.payload())
	if err != nil {
		return nil, err
	}
	resp, err := h.exchange.Request(ctx, env)
	if err != nil {
		return nil, err
	}
	var ref subscriptionRef
	if err := resp.DecodeValue(&ref); err != nil || ref.SubscriptionID == "" {
		return nil, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Search", "Stream",
			"subscribe response carries no subscription id")
	}

	s := &Stream{
		exchange: h.exchange,
		logger:   h.logger.With("subscription", ref.SubscriptionID),
		sid:      ref.SubscriptionID,
		demand:   q.Demand,
		pages:    make(chan []json.RawMessage, q.InitialDemand),
		done:     make(chan struct{}),
	}

	selector, err := bus.Compile(protocol.SearchAddressPrefix + "/" + ref.SubscriptionID)
	if err != nil {
		s.terminate(err, true)
		return nil, errors.Wrap(err, "Search", "Stream", "compile subscription selector")
	}
	sub, err := h.bus.Subscribe(selector, s.onFrame)
	if err != nil {
		s.terminate(err, true)
		return nil, errors.Wrap(err, "Search", "Stream", "register subscription handler")
	}
	s.sub = sub

	if err := s.request(ctx, q.InitialDemand); err != nil {
		s.terminate(err, true)
		return nil, err
	}
	return s, nil
}
