package twin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// ThingHandle addresses one thing on the twin channel. All operations are
// synchronous: they send a command and block until the correlated response,
// the exchange timeout or the context ends. A backend rejection surfaces as
// a *protocol.Error reachable through errors.As.
type ThingHandle struct {
	id       model.NamespacedID
	cmd      protocol.ThingCommand
	exchange *correlation.Exchange
}

// ID returns the thing this handle addresses.
func (h *ThingHandle) ID() model.NamespacedID {
	return h.id
}

// Feature returns a handle scoped to one feature of this thing.
func (h *ThingHandle) Feature(featureID string) *FeatureHandle {
	return &FeatureHandle{thing: h, featureID: featureID}
}

// run validates the handle, builds the command envelope and executes it.
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

// Create registers the thing with the backend and returns the created
// state. A zero thing id is stamped with the handle id; a different one is
// rejected before anything is sent.
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
	return decodeThing(resp, "Create")
}

// Retrieve fetches the current twin state. Use protocol.WithFields to limit
// the returned projection.
func (h *ThingHandle) Retrieve(ctx context.Context, opts ...protocol.Option) (*model.Thing, error) {
	resp, err := h.run(ctx, "Retrieve", protocol.ActionRetrieve, "", nil, opts)
	if err != nil {
		return nil, err
	}
	return decodeThing(resp, "Retrieve")
}

// Modify replaces the whole twin with the given state.
func (h *ThingHandle) Modify(ctx context.Context, thing model.Thing, opts ...protocol.Option) error {
	if !thing.ID.IsZero() && thing.ID != h.id {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "Modify",
			"thing id "+thing.ID.String()+" does not match handle "+h.id.String())
	}
	_, err := h.run(ctx, "Modify", protocol.ActionModify, "", thing, opts)
	return err
}

// Merge applies an RFC 7396 merge patch to the twin. Explicit JSON nulls in
// the patch delete the corresponding parts.
func (h *ThingHandle) Merge(ctx context.Context, patch any, opts ...protocol.Option) error {
	if patch == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "Merge", "patch must not be nil")
	}
	opts = append(opts, protocol.WithContentType(protocol.ContentTypeMergePatch))
	_, err := h.run(ctx, "Merge", protocol.ActionMerge, "", patch, opts)
	return err
}

// Delete removes the thing from the backend.
func (h *ThingHandle) Delete(ctx context.Context, opts ...protocol.Option) error {
	_, err := h.run(ctx, "Delete", protocol.ActionDelete, "", nil, opts)
	return err
}

// PutPolicyID points the thing at a different access policy.
func (h *ThingHandle) PutPolicyID(ctx context.Context, policyID string, opts ...protocol.Option) error {
	if policyID == "" {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "PutPolicyID", "policy id must not be empty")
	}
	_, err := h.run(ctx, "PutPolicyID", protocol.ActionModify, "/policyId", policyID, opts)
	return err
}

// PutAttributes replaces all attributes of the thing.
func (h *ThingHandle) PutAttributes(ctx context.Context, attributes model.Attributes, opts ...protocol.Option) error {
	if attributes == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "PutAttributes", "attributes must not be nil")
	}
	_, err := h.run(ctx, "PutAttributes", protocol.ActionModify, "/attributes", attributes, opts)
	return err
}

// DeleteAttributes removes all attributes of the thing.
func (h *ThingHandle) DeleteAttributes(ctx context.Context, opts ...protocol.Option) error {
	_, err := h.run(ctx, "DeleteAttributes", protocol.ActionDelete, "/attributes", nil, opts)
	return err
}

// PutAttribute sets one attribute. Nested attributes are addressed with a
// slash separated path such as "location/latitude".
func (h *ThingHandle) PutAttribute(ctx context.Context, path string, value any, opts ...protocol.Option) error {
	p, err := subPath("ThingHandle", "PutAttribute", "/attributes", path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "PutAttribute", protocol.ActionModify, p, value, opts)
	return err
}

// RetrieveAttribute fetches one attribute as raw JSON.
func (h *ThingHandle) RetrieveAttribute(ctx context.Context, path string, opts ...protocol.Option) (json.RawMessage, error) {
	p, err := subPath("ThingHandle", "RetrieveAttribute", "/attributes", path)
	if err != nil {
		return nil, err
	}
	resp, err := h.run(ctx, "RetrieveAttribute", protocol.ActionRetrieve, p, nil, opts)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// DeleteAttribute removes one attribute.
func (h *ThingHandle) DeleteAttribute(ctx context.Context, path string, opts ...protocol.Option) error {
	p, err := subPath("ThingHandle", "DeleteAttribute", "/attributes", path)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "DeleteAttribute", protocol.ActionDelete, p, nil, opts)
	return err
}

// PutFeatures replaces all features of the thing.
func (h *ThingHandle) PutFeatures(ctx context.Context, features model.Features, opts ...protocol.Option) error {
	if features == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "ThingHandle", "PutFeatures", "features must not be nil")
	}
	_, err := h.run(ctx, "PutFeatures", protocol.ActionModify, "/features", features, opts)
	return err
}

// DeleteFeatures removes all features of the thing.
func (h *ThingHandle) DeleteFeatures(ctx context.Context, opts ...protocol.Option) error {
	_, err := h.run(ctx, "DeleteFeatures", protocol.ActionDelete, "/features", nil, opts)
	return err
}

// PutFeature sets one feature, replacing it if present.
func (h *ThingHandle) PutFeature(ctx context.Context, featureID string, feature model.Feature, opts ...protocol.Option) error {
	p, err := subPath("ThingHandle", "PutFeature", "/features", featureID)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "PutFeature", protocol.ActionModify, p, feature, opts)
	return err
}

// DeleteFeature removes one feature.
func (h *ThingHandle) DeleteFeature(ctx context.Context, featureID string, opts ...protocol.Option) error {
	p, err := subPath("ThingHandle", "DeleteFeature", "/features", featureID)
	if err != nil {
		return err
	}
	_, err = h.run(ctx, "DeleteFeature", protocol.ActionDelete, p, nil, opts)
	return err
}

func decodeThing(resp *protocol.Envelope, method string) (*model.Thing, error) {
	var thing model.Thing
	if err := resp.DecodeValue(&thing); err != nil {
		return nil, errors.Wrap(err, "ThingHandle", method, "decode response")
	}
	return &thing, nil
}

// subPath joins base and a caller supplied pointer path, rejecting empty
// paths and empty segments so commands never address the parent collection
// by accident.
func subPath(component, method, base, path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, component, method, "path must not be empty")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			return "", errors.WrapInvalid(errors.ErrInvalidArgument, component, method,
				"path "+path+" has an empty segment")
		}
	}
	return base + "/" + trimmed, nil
}
