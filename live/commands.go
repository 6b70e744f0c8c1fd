package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// CommandKind classifies an inbound live command by its verb and the part
// of the thing it addresses. Handlers are registered per kind, so one
// client can answer retrievals while another process answers modifications.
type CommandKind int

const (
	commandUnknown CommandKind = iota

	CommandRetrieveThing
	CommandCreateThing
	CommandModifyThing
	CommandMergeThing
	CommandDeleteThing

	CommandModifyAttribute
	CommandDeleteAttribute

	CommandModifyFeature
	CommandDeleteFeature

	CommandModifyFeatureProperty
	CommandDeleteFeatureProperty
)

func (k CommandKind) String() string {
	switch k {
	case CommandRetrieveThing:
		return "retrieve-thing"
	case CommandCreateThing:
		return "create-thing"
	case CommandModifyThing:
		return "modify-thing"
	case CommandMergeThing:
		return "merge-thing"
	case CommandDeleteThing:
		return "delete-thing"
	case CommandModifyAttribute:
		return "modify-attribute"
	case CommandDeleteAttribute:
		return "delete-attribute"
	case CommandModifyFeature:
		return "modify-feature"
	case CommandDeleteFeature:
		return "delete-feature"
	case CommandModifyFeatureProperty:
		return "modify-feature-property"
	case CommandDeleteFeatureProperty:
		return "delete-feature-property"
	default:
		return "unknown"
	}
}

func (k CommandKind) valid() bool {
	return k > commandUnknown && k <= CommandDeleteFeatureProperty
}

// Command is one inbound live command handed to a CommandFunc. Path and
// Value address and carry the affected part, like on the wire envelope.
type Command struct {
	Kind    CommandKind
	ThingID model.NamespacedID
	Path    string
	Value   json.RawMessage
	Headers protocol.Headers
}

// DecodeValue unmarshals the command value into out.
func (c Command) DecodeValue(out any) error {
	if len(c.Value) == 0 {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Command", "DecodeValue", "command has no value")
	}
	if err := json.Unmarshal(c.Value, out); err != nil {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Command", "DecodeValue", err.Error())
	}
	return nil
}

// CommandFunc answers one live command. It runs on the bus dispatch
// goroutine and must not block. The returned value and status become the
// response; a zero status defaults to 200 with a value and 204 without.
// Returning an error produces an error response instead, with the status
// when it names one at or above 400, otherwise 500.
type CommandFunc func(cmd Command) (value any, status int, err error)

// HandleCommand registers fn as the answerer for the given command kind.
// One handler per kind; a second registration returns
// ErrDuplicateRegistration until the first is removed.
func (c *Client) HandleCommand(kind CommandKind, fn CommandFunc) error {
	if !kind.valid() {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "LiveClient", "HandleCommand",
			"unknown command kind")
	}
	if fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "LiveClient", "HandleCommand",
			"handler is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, occupied := c.handlers[kind]; occupied {
		return errors.WrapInvalid(errors.ErrDuplicateRegistration, "LiveClient", "HandleCommand",
			"handler for "+kind.String()+" already registered")
	}
	c.handlers[kind] = fn
	return nil
}

// StopHandlingCommand removes the handler for the given kind, reporting
// whether one was registered.
func (c *Client) StopHandlingCommand(kind CommandKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, occupied := c.handlers[kind]
	delete(c.handlers, kind)
	return occupied
}

// dispatch routes one inbound live envelope through the command registry.
// Responses never reach subscriptions, but the guard keeps that invariant
// local.
func (c *Client) dispatch(env *protocol.Envelope, _ bus.Captures) {
	if env.Topic.Criterion != protocol.CriterionCommands || env.IsResponse() {
		return
	}

	kind, ok := classifyCommand(env)
	if !ok {
		c.logger.Debug("dropping unroutable live command",
			"topic", env.Topic.String(), "path", env.Path)
		return
	}

	c.mu.Lock()
	fn := c.handlers[kind]
	c.mu.Unlock()
	if fn == nil {
		c.logger.Debug("no handler for live command",
			"kind", kind.String(), "topic", env.Topic.String())
		return
	}

	thingID, err := model.ParseNamespacedID(env.Topic.EntityID())
	if err != nil {
		c.logger.Debug("dropping live command with invalid entity id",
			"topic", env.Topic.String(), "error", err)
		return
	}

	c.answer(env, fn, Command{
		Kind:    kind,
		ThingID: thingID,
		Path:    env.Path,
		Value:   env.Value,
		Headers: env.Headers,
	})
}

func (c *Client) answer(env *protocol.Envelope, fn CommandFunc, cmd Command) {
	value, status, err := fn(cmd)

	if !env.Headers.ResponseRequired() {
		if err != nil {
			c.logger.Warn("live command handler failed, no response requested",
				"kind", cmd.Kind.String(), "error", err)
		}
		return
	}

	var resp *protocol.Envelope
	var buildErr error
	switch {
	case err != nil:
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		resp, buildErr = protocol.NewResponse(env, status, protocol.Error{
			StatusCode: status,
			Code:       "live:command.failed",
			Message:    err.Error(),
		})
	default:
		if status == 0 {
			status = http.StatusNoContent
			if value != nil {
				status = http.StatusOK
			}
		}
		resp, buildErr = protocol.NewResponse(env, status, value)
	}
	if buildErr != nil {
		c.logger.Warn("building live command response failed",
			"kind", cmd.Kind.String(), "error", buildErr)
		return
	}

	if err := c.exchange.Send(context.Background(), resp); err != nil {
		c.logger.Warn("sending live command response failed",
			"kind", cmd.Kind.String(), "error", err)
	}
}

// classifyCommand maps an envelope onto its command kind by verb and path
// shape. Commands addressing parts the registry has no kind for, such as a
// retrieve of a single attribute, stay unclassified.
func classifyCommand(env *protocol.Envelope) (CommandKind, bool) {
	verb := env.Topic.Action
	path := strings.Trim(env.Path, "/")

	if path == "" {
		switch verb {
		case protocol.ActionRetrieve:
			return CommandRetrieveThing, true
		case protocol.ActionCreate:
			return CommandCreateThing, true
		case protocol.ActionModify:
			return CommandModifyThing, true
		case protocol.ActionMerge:
			return CommandMergeThing, true
		case protocol.ActionDelete:
			return CommandDeleteThing, true
		}
		return commandUnknown, false
	}

	segs := strings.Split(path, "/")
	switch {
	case segs[0] == "attributes" && len(segs) >= 2:
		switch verb {
		case protocol.ActionModify:
			return CommandModifyAttribute, true
		case protocol.ActionDelete:
			return CommandDeleteAttribute, true
		}
	case segs[0] == "features" && len(segs) == 2:
		switch verb {
		case protocol.ActionModify:
			return CommandModifyFeature, true
		case protocol.ActionDelete:
			return CommandDeleteFeature, true
		}
	case segs[0] == "features" && len(segs) >= 4 && segs[2] == "properties":
		switch verb {
		case protocol.ActionModify:
			return CommandModifyFeatureProperty, true
		case protocol.ActionDelete:
			return CommandDeleteFeatureProperty, true
		}
	}
	return commandUnknown, false
}
