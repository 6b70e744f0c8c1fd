package live

import (
	"context"
	"strings"

	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// ThingHandle addresses one thing on the live channel. Command operations
// block until a peer answers, times out or the context ends; there is no
// backend fallback, so an unanswered command is a timeout.
type ThingHandle struct {
	id       model.NamespacedID
	cmd      protocol.ThingCommand
	exchange *correlation.Exchange
}

// ID returns the thing this handle addresses.
func (h *ThingHandle) ID() model.NamespacedID {
	return h.id
}

func (h *ThingHandle) run(ctx context.Context, method string, action protocol.Action, path string, value any, opts []protocol.Option) (*protocol.Envelope, error) {
	if err := h.id.Validate(); err != nil {
		return nil, err
	}
	env, err := h.cmd.Envelope(action, path, value, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := h.exchange.Request(ctx, env)
	if err != nil {
		return nil, errors.Wrap(err, "ThingHandle", method, string(action)+" "+h.id.String())
	}
	return resp, nil
}

// Create asks the answering peer to create the thing.
func (h *ThingHandle) Create(ctx context.Context, thing model.Thing, opts ...protocol.Option) (*model.Thing, error) {
	if thing.ID.IsZero() {
		thing.ID = h.id
	} else if thing.ID != h.id {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "Create",
			"thing id "+thing.ID.String()+" does not match handle "+h.id.String())
	}
	resp, err := h.run(ctx, "Create", protocol.ActionCreate, "", thing, opts)
	if err != nil {
		return nil, err
	}
	var created model.Thing
	if err := resp.DecodeValue(&created); err != nil {
		return nil, errors.Wrap(err, "ThingHandle", "Create", "decode response")
	}
	return &created, nil
}

// Retrieve asks the answering peer for the current state of the thing.
func (h *ThingHandle) Retrieve(ctx context.Context, opts ...protocol.Option) (*model.Thing, error) {
	resp, err := h.run(ctx, "Retrieve", protocol.ActionRetrieve, "", nil, opts)
	if err != nil {
		return nil, err
	}
	var thing model.Thing
	if err := resp.DecodeValue(&thing); err != nil {
		return nil, errors.Wrap(err, "ThingHandle", "Retrieve", "decode response")
	}
	return &thing, nil
}

// Modify asks the answering peer to replace the thing state.
func (h *ThingHandle) Modify(ctx context.Context, thing model.Thing, opts ...protocol.Option) error {
	if !thing.ID.IsZero() && thing.ID != h.id {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "Modify",
			"thing id "+thing.ID.String()+" does not match handle "+h.id.String())
	}
	_, err := h.run(ctx, "Modify", protocol.ActionModify, "", thing, opts)
	return err
}

// Merge asks the answering peer to apply an RFC 7396 merge patch.
func (h *ThingHandle) Merge(ctx context.Context, patch any, opts ...protocol.Option) error {
	if patch == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "Merge", "patch must not be nil")
	}
	opts = append(opts, protocol.WithContentType(protocol.ContentTypeMergePatch))
	_, err := h.run(ctx, "Merge", protocol.ActionMerge, "", patch, opts)
	return err
}

// Delete asks the answering peer to delete the thing.
func (h *ThingHandle) Delete(ctx context.Context, opts ...protocol.Option) error {
	_, err := h.run(ctx, "Delete", protocol.ActionDelete, "", nil, opts)
	return err
}

// PutAttribute asks the answering peer to set one attribute.
func (h *ThingHandle) PutAttribute(ctx context.Context, path string, value any, opts ...protocol.Option) error {
	p, err := livePath("PutAttribute", "/attributes", path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "PutAttribute", protocol.ActionModify, p, value, opts)
	return err
}

// DeleteAttribute asks the answering peer to remove one attribute.
func (h *ThingHandle) DeleteAttribute(ctx context.Context, path string, opts ...protocol.Option) error {
	p, err := livePath("DeleteAttribute", "/attributes", path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "DeleteAttribute", protocol.ActionDelete, p, nil, opts)
	return err
}

// PutFeatureProperty asks the answering peer to set one feature property.
func (h *ThingHandle) PutFeatureProperty(ctx context.Context, featureID, path string, value any, opts ...protocol.Option) error {
	p, err := featurePropertyPath("PutFeatureProperty", featureID, path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "PutFeatureProperty", protocol.ActionModify, p, value, opts)
	return err
}

// DeleteFeatureProperty asks the answering peer to remove one feature
// property.
func (h *ThingHandle) DeleteFeatureProperty(ctx context.Context, featureID, path string, opts ...protocol.Option) error {
	p, err := featurePropertyPath("DeleteFeatureProperty", featureID, path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "DeleteFeatureProperty", protocol.ActionDelete, p, nil, opts)
	return err
}

// EmitEvent publishes a live event for this thing without waiting for
// anything: events have no responses. Path addresses the changed part,
// empty meaning the thing root.
func (h *ThingHandle) EmitEvent(ctx context.Context, action protocol.Action, path string, value any, opts ...protocol.Option) error {
	if err := h.id.Validate(); err != nil {
		return err
	}
	switch action {
	case protocol.ActionCreated, protocol.ActionModified, protocol.ActionMerged, protocol.ActionDeleted:
	default:
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "EmitEvent",
			"action "+string(action)+" is not an event action")
	}

	env, err := protocol.New(protocol.Topic{
		Namespace: h.id.Namespace,
		Name:      h.id.Name,
		Group:     protocol.GroupThings,
		Channel:   protocol.ChannelLive,
		Criterion: protocol.CriterionEvents,
		Action:    action,
	}, path, value, opts...)
	if err != nil {
		return err
	}
	return h.exchange.Send(ctx, env)
}

// livePath joins base and a caller supplied pointer path, rejecting empty
// paths and empty segments.
func livePath(method, base, path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", method, "path must not be empty")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			return "", errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", method,
				"path "+path+" has an empty segment")
		}
	}
	return base + "/" + trimmed, nil
}

func featurePropertyPath(method, featureID, path string) (string, error) {
	base, err := livePath(method, "/features", featureID)
	if err != nil {
		return "", err
	}
	return livePath(method, base+"/properties", path)
}
