package events

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// Change describes one observed event on a thing: a creation, modification,
// merge or deletion of the thing itself or of a part of it. Path points at
// the changed part relative to the thing root, empty meaning the thing
// itself. Value holds the new state of that part; deletions carry none.
type Change struct {
	Action    protocol.Action
	ThingID   model.NamespacedID
	Path      string
	Value     json.RawMessage
	Extra     json.RawMessage
	Revision  int64
	Timestamp string

	// Matched holds the selector placeholder captures, such as the thing
	// id for registrations spanning all things.
	Matched bus.Captures
}

// DecodeValue unmarshals the changed part into out.
func (c Change) DecodeValue(out any) error {
	if len(c.Value) == 0 {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Change", "DecodeValue", "change has no value")
	}
	if err := json.Unmarshal(c.Value, out); err != nil {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Change", "DecodeValue", err.Error())
	}
	return nil
}

// Handler receives changes. It runs on the bus dispatch goroutine, so it
// must not block.
type Handler func(change Change)

// Registrar turns bus subscriptions into typed change registrations. Both
// channel clients embed one; the same registration API works against twin
// events and live events depending on which bus backs it.
type Registrar struct {
	bus    *bus.Bus
	logger *slog.Logger
}

// NewRegistrar creates a Registrar dispatching from the given bus.
func NewRegistrar(b *bus.Bus, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		bus:    b,
		logger: logger.With("component", b.Name()+"-events"),
	}
}

// RegisterForThingChanges delivers every change touching the given thing,
// from the thing root down to single properties. A zero thingID registers
// for changes on all things; the thing id is then available in
// Matched["thingId"].
//
// The registrationID must be unique per client; reusing one returns
// ErrDuplicateRegistration until it is deregistered.
func (r *Registrar) RegisterForThingChanges(registrationID string, thingID model.NamespacedID, handler Handler) error {
	base := "/things/" + thingSegment(thingID)
	return r.register(registrationID, base, handler)
}

// RegisterForAttributeChanges delivers changes below the thing's attributes.
// A non-empty path narrows the registration to one attribute subtree, such
// as "location" or "location/city".
func (r *Registrar) RegisterForAttributeChanges(registrationID string, thingID model.NamespacedID, path string, handler Handler) error {
	base := "/things/" + thingSegment(thingID) + "/attributes" + normalizePointer(path)
	return r.register(registrationID, base, handler)
}

// RegisterForFeatureChanges delivers changes below the thing's features. A
// non-empty featureID narrows the registration to that feature.
func (r *Registrar) RegisterForFeatureChanges(registrationID string, thingID model.NamespacedID, featureID string, handler Handler) error {
	base := "/things/" + thingSegment(thingID) + "/features"
	if featureID != "" {
		base += "/" + featureID
	}
	return r.register(registrationID, base, handler)
}

// DeregisterChanges removes a registration. Returns false when the id is
// unknown.
func (r *Registrar) DeregisterChanges(registrationID string) bool {
	return r.bus.Unsubscribe(registrationID)
}

// register subscribes to base and its whole subtree. The selector matches
// commands and events alike, so the wrapper filters on the events criterion.
func (r *Registrar) register(registrationID, base string, handler Handler) error {
	selector, err := bus.CompileOr(base, base+"/*")
	if err != nil {
		return err
	}

	_, err = r.bus.Subscribe(selector, func(env *protocol.Envelope, captures bus.Captures) {
		if env.Topic.Criterion != protocol.CriterionEvents {
			return
		}
		change, err := changeFromEnvelope(env, captures)
		if err != nil {
			r.logger.Debug("dropping event with invalid entity id", "topic", env.Topic.String(), "error", err)
			return
		}
		handler(change)
	}, bus.WithRegistrationID(registrationID))
	return err
}

func changeFromEnvelope(env *protocol.Envelope, captures bus.Captures) (Change, error) {
	thingID, err := model.ParseNamespacedID(env.Topic.EntityID())
	if err != nil {
		return Change{}, err
	}
	return Change{
		Action:    env.Topic.Action,
		ThingID:   thingID,
		Path:      env.Path,
		Value:     env.Value,
		Extra:     env.Extra,
		Revision:  env.Revision,
		Timestamp: env.Timestamp,
		Matched:   captures,
	}, nil
}

func thingSegment(id model.NamespacedID) string {
	if id.IsZero() {
		return "{thingId}"
	}
	return id.String()
}

// normalizePointer brings a user-supplied sub-path into selector form: no
// trailing slash, exactly one leading slash, empty stays empty.
func normalizePointer(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
