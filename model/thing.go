package model

import "encoding/json"

// Attributes holds the static descriptive properties of a thing, such as
// location or manufacturer data.
type Attributes map[string]any

// Thing is a digital twin: identity, access policy, attributes and features.
// The underscore-prefixed fields are set by the backend and ignored on
// writes.
type Thing struct {
	// ID is the namespaced identifier of the thing. It marshals to the
	// "thingId" field and stays off the wire while zero, since create
	// commands may let the backend assign one.
	ID NamespacedID `json:"-"`

	// PolicyID names the policy controlling access to this thing.
	PolicyID string `json:"policyId,omitempty"`

	// Definition points to the thing model this twin conforms to.
	Definition string `json:"definition,omitempty"`

	// Attributes are the static properties of the thing.
	Attributes Attributes `json:"attributes,omitempty"`

	// Features are the typed functional aspects of the thing.
	Features Features `json:"features,omitempty"`

	// Revision is the backend revision counter.
	Revision int64 `json:"_revision,omitempty"`

	// Created and Modified are backend bookkeeping timestamps.
	Created  string `json:"_created,omitempty"`
	Modified string `json:"_modified,omitempty"`
}

type thingAlias Thing

// MarshalJSON emits "thingId" only when the id is set.
func (t Thing) MarshalJSON() ([]byte, error) {
	out := struct {
		ID *NamespacedID `json:"thingId,omitempty"`
		thingAlias
	}{thingAlias: thingAlias(t)}
	if !t.ID.IsZero() {
		out.ID = &t.ID
	}
	return json.Marshal(out)
}

// UnmarshalJSON tolerates things without an id, as returned for partial
// field selections.
func (t *Thing) UnmarshalJSON(data []byte) error {
	var in struct {
		ID *NamespacedID `json:"thingId"`
		thingAlias
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Thing(in.thingAlias)
	if in.ID != nil {
		t.ID = *in.ID
	}
	return nil
}
