package twin

import (
	"context"
	"encoding/json"

	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// FeatureHandle addresses one feature of one thing. It shares the parent
// handle's exchange and channel; operations have the same synchronous
// semantics as ThingHandle operations.
type FeatureHandle struct {
	thing     *ThingHandle
	featureID string
}

// FeatureID returns the feature this handle addresses.
func (h *FeatureHandle) FeatureID() string {
	return h.featureID
}

// base validates the feature id and returns the feature root path.
func (h *FeatureHandle) base(method string) (string, error) {
	return subPath("FeatureHandle", method, "/features", h.featureID)
}

// Retrieve fetches the feature.
func (h *FeatureHandle) Retrieve(ctx context.Context, opts ...protocol.Option) (*model.Feature, error) {
	base, err := h.base("Retrieve")
	if err != nil {
		return nil, err
	}
	resp, err := h.thing.run(ctx, "Retrieve", protocol.ActionRetrieve, base, nil, opts)
	if err != nil {
		return nil, err
	}
	var feature model.Feature
	if err := resp.DecodeValue(&feature); err != nil {
		return nil, errors.Wrap(err, "FeatureHandle", "Retrieve", "decode response")
	}
	return &feature, nil
}

// Put sets the feature, replacing it if present.
func (h *FeatureHandle) Put(ctx context.Context, feature model.Feature, opts ...protocol.Option) error {
	base, err := h.base("Put")
	if err != nil {
		return err
	}
	_, err = h.thing.run(ctx, "Put", protocol.ActionModify, base, feature, opts)
	return err
}

// Delete removes the feature.
func (h *FeatureHandle) Delete(ctx context.Context, opts ...protocol.Option) error {
	base, err := h.base("Delete")
	if err != nil {
		return err
	}
	_, err = h.thing.run(ctx, "Delete", protocol.ActionDelete, base, nil, opts)
	return err
}

// PutProperties replaces all properties of the feature.
func (h *FeatureHandle) PutProperties(ctx context.Context, properties map[string]any, opts ...protocol.Option) error {
	base, err := h.base("PutProperties")
	if err != nil {
		return err
	}
	if properties == nil {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "FeatureHandle", "PutProperties", "properties must not be nil")
	}
	_, err = h.thing.run(ctx, "PutProperties", protocol.ActionModify, base+"/properties", properties, opts)
	return err
}

// PutProperty sets one property. Nested properties are addressed with a
// slash separated path such as "status/temperature".
func (h *FeatureHandle) PutProperty(ctx context.Context, path string, value any, opts ...protocol.Option) error {
	p, err := h.propertyPath("PutProperty", path)
	if err != nil {
		return err
	}
	_, err = h.thing.run(ctx, "PutProperty", protocol.ActionModify, p, value, opts)
	return err
}

// RetrieveProperty fetches one property as raw JSON.
func (h *FeatureHandle) RetrieveProperty(ctx context.Context, path string, opts ...protocol.Option) (json.RawMessage, error) {
	p, err := h.propertyPath("RetrieveProperty", path)
	if err != nil {
		return nil, err
	}
	resp, err := h.thing.run(ctx, "RetrieveProperty", protocol.ActionRetrieve, p, nil, opts)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// DeleteProperty removes one property.
func (h *FeatureHandle) DeleteProperty(ctx context.Context, path string, opts ...protocol.Option) error {
	p, err := h.propertyPath("DeleteProperty", path)
	if err != nil {
		return err
	}
	_, err = h.thing.run(ctx, "DeleteProperty", protocol.ActionDelete, p, nil, opts)
	return err
}

// PutDefinition sets the feature definition identifiers.
func (h *FeatureHandle) PutDefinition(ctx context.Context, definition []string, opts ...protocol.Option) error {
	base, err := h.base("PutDefinition")
	if err != nil {
		return err
	}
	if len(definition) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "FeatureHandle", "PutDefinition", "definition must not be empty")
	}
	_, err = h.thing.run(ctx, "PutDefinition", protocol.ActionModify, base+"/definition", definition, opts)
	return err
}

// DeleteDefinition removes the feature definition.
func (h *FeatureHandle) DeleteDefinition(ctx context.Context, opts ...protocol.Option) error {
	base, err := h.base("DeleteDefinition")
	if err != nil {
		return err
	}
	_, err = h.thing.run(ctx, "DeleteDefinition", protocol.ActionDelete, base+"/definition", nil, opts)
	return err
}

func (h *FeatureHandle) propertyPath(method, path string) (string, error) {
	base, err := h.base(method)
	if err != nil {
		return "", err
	}
	return subPath("FeatureHandle", method, base+"/properties", path)
}
