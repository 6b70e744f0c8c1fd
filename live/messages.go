package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// Direction tells whether a message travels to a thing or from it.
type Direction string

const (
	// DirectionInbox addresses messages sent to the thing.
	DirectionInbox Direction = "inbox"
	// DirectionOutbox addresses messages sent by the thing.
	DirectionOutbox Direction = "outbox"
)

func (d Direction) valid() bool {
	return d == DirectionInbox || d == DirectionOutbox
}

// MessageOpts describes one outgoing message. Direction defaults to the
// inbox, the usual case of telling a thing to do something.
type MessageOpts struct {
	ThingID     model.NamespacedID
	Subject     string
	Direction   Direction
	Payload     any
	ContentType string
}

func (o MessageOpts) envelope(opts []protocol.Option) (*protocol.Envelope, error) {
	if err := o.ThingID.Validate(); err != nil {
		return nil, err
	}
	if err := validateSubject("MessageOpts", o.Subject); err != nil {
		return nil, err
	}
	dir := o.Direction
	if dir == "" {
		dir = DirectionInbox
	}
	if !dir.valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "MessageOpts", "envelope",
			"direction "+string(dir)+" is not inbox or outbox")
	}
	if o.ContentType != "" {
		opts = append(opts, protocol.WithContentType(o.ContentType))
	}

	return protocol.New(protocol.Topic{
		Namespace: o.ThingID.Namespace,
		Name:      o.ThingID.Name,
		Group:     protocol.GroupThings,
		Channel:   protocol.ChannelLive,
		Criterion: protocol.CriterionMessages,
		Action:    protocol.Action(o.Subject),
	}, "/"+string(dir)+"/messages/"+o.Subject, o.Payload, opts...)
}

// SendMessage delivers a message without waiting for an answer.
func (c *Client) SendMessage(ctx context.Context, msg MessageOpts, opts ...protocol.Option) error {
	env, err := msg.envelope(opts)
	if err != nil {
		return err
	}
	return c.exchange.Send(ctx, env)
}

// RequestMessage delivers a message and blocks until the correlated answer,
// returning its raw payload.
func (c *Client) RequestMessage(ctx context.Context, msg MessageOpts, opts ...protocol.Option) (json.RawMessage, error) {
	env, err := msg.envelope(opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.exchange.Request(ctx, env)
	if err != nil {
		return nil, errors.Wrap(err, "LiveClient", "RequestMessage", "message "+msg.Subject)
	}
	return resp.Value, nil
}

// Message is one received message. Reply answers it over the outbox with
// the same subject and correlation id.
type Message struct {
	ThingID       model.NamespacedID
	Subject       string
	Direction     Direction
	Payload       json.RawMessage
	ContentType   string
	CorrelationID string

	responseRequired bool
	exchange         *correlation.Exchange
}

// ResponseRequired reports whether the sender waits for a reply.
func (m *Message) ResponseRequired() bool {
	return m.responseRequired
}

// DecodePayload unmarshals the message payload into out.
func (m *Message) DecodePayload(out any) error {
	if len(m.Payload) == 0 {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Message", "DecodePayload", "message has no payload")
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Message", "DecodePayload", err.Error())
	}
	return nil
}

// Reply answers the message. A zero status defaults to 200.
func (m *Message) Reply(ctx context.Context, status int, payload any, opts ...protocol.Option) error {
	if m.exchange == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Message", "Reply",
			"message was not received through a registration")
	}
	if m.CorrelationID == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "Message", "Reply",
			"message carries no correlation id")
	}
	if status == 0 {
		status = http.StatusOK
	}

	opts = append(opts, protocol.WithCorrelationID(m.CorrelationID))
	env, err := protocol.New(protocol.Topic{
		Namespace: m.ThingID.Namespace,
		Name:      m.ThingID.Name,
		Group:     protocol.GroupThings,
		Channel:   protocol.ChannelLive,
		Criterion: protocol.CriterionMessages,
		Action:    protocol.Action(m.Subject),
	}, "/"+string(DirectionOutbox)+"/messages/"+m.Subject, payload, opts...)
	if err != nil {
		return err
	}
	env.Status = status
	return m.exchange.Send(ctx, env)
}

// MessageHandler receives messages. It runs on the bus dispatch goroutine
// and must not block.
type MessageHandler func(msg *Message)

// RegisterForMessages delivers messages for the given subject on any thing,
// inbox and outbox alike. An empty subject delivers all messages. The
// registrationID must be unique per client; reusing one returns
// ErrDuplicateRegistration until it is deregistered.
func (c *Client) RegisterForMessages(registrationID, subject string, handler MessageHandler) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "LiveClient", "RegisterForMessages",
			"handler is required")
	}
	suffix := "/*"
	if subject != "" {
		if err := validateSubject("LiveClient", subject); err != nil {
			return err
		}
		if strings.ContainsAny(subject, "{}*") {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "LiveClient", "RegisterForMessages",
				"subject "+subject+" must not contain selector placeholders")
		}
		suffix = "/" + subject
	}

	selector, err := bus.CompileOr(
		"/things/{thingId}/inbox/messages"+suffix,
		"/things/{thingId}/outbox/messages"+suffix,
	)
	if err != nil {
		return err
	}

	_, err = c.bus.Subscribe(selector, func(env *protocol.Envelope, _ bus.Captures) {
		if env.Topic.Criterion != protocol.CriterionMessages {
			return
		}
		msg, err := c.messageFromEnvelope(env)
		if err != nil {
			c.logger.Debug("dropping malformed message",
				"topic", env.Topic.String(), "path", env.Path, "error", err)
			return
		}
		handler(msg)
	}, bus.WithRegistrationID(registrationID))
	return err
}

// DeregisterMessages removes a message registration, reporting whether it
// existed.
func (c *Client) DeregisterMessages(registrationID string) bool {
	return c.bus.Unsubscribe(registrationID)
}

func (c *Client) messageFromEnvelope(env *protocol.Envelope) (*Message, error) {
	thingID, err := model.ParseNamespacedID(env.Topic.EntityID())
	if err != nil {
		return nil, err
	}
	dir, subject, err := splitMessagePath(env.Path)
	if err != nil {
		return nil, err
	}
	return &Message{
		ThingID:          thingID,
		Subject:          subject,
		Direction:        dir,
		Payload:          env.Value,
		ContentType:      env.Headers.ContentType(),
		CorrelationID:    env.CorrelationID(),
		responseRequired: env.Headers.ResponseRequired(),
		exchange:         c.exchange,
	}, nil
}

// splitMessagePath decomposes "/<direction>/messages/<subject>"; the
// subject may contain further slashes.
func splitMessagePath(path string) (Direction, string, error) {
	segs := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(segs) != 3 || segs[1] != "messages" || segs[2] == "" {
		return "", "", errors.WrapInvalid(errors.ErrMalformedEnvelope, "Message", "FromEnvelope",
			"path "+path+" is not a message path")
	}
	dir := Direction(segs[0])
	if !dir.valid() {
		return "", "", errors.WrapInvalid(errors.ErrMalformedEnvelope, "Message", "FromEnvelope",
			"path "+path+" names direction "+segs[0])
	}
	return dir, segs[2], nil
}

func validateSubject(component, subject string) error {
	if subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgument, component, "validateSubject",
			"message subject must not be empty")
	}
	for _, seg := range strings.Split(subject, "/") {
		if seg == "" {
			return errors.WrapInvalid(errors.ErrInvalidArgument, component, "validateSubject",
				"message subject "+subject+" has an empty segment")
		}
	}
	return nil
}
