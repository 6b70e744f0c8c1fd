package model

import "encoding/json"

// Policy controls who may read and write an entity. Entries are named
// grants: each combines the subjects it applies to with the resources and
// permissions they receive.
type Policy struct {
	// ID is the namespaced identifier of the policy. Like Thing.ID it stays
	// off the wire while zero.
	ID NamespacedID `json:"-"`

	// Entries maps entry labels to their subject and resource grants.
	Entries map[string]PolicyEntry `json:"entries,omitempty"`

	// Revision is the backend revision counter.
	Revision int64 `json:"_revision,omitempty"`

	Created  string `json:"_created,omitempty"`
	Modified string `json:"_modified,omitempty"`
}

// PolicyEntry is one named grant inside a policy.
type PolicyEntry struct {
	// Subjects maps subject ids (for example "basic:observer" or an issuer
	// prefixed token subject) to their metadata.
	Subjects map[string]Subject `json:"subjects,omitempty"`

	// Resources maps resource paths such as "thing:/" or
	// "thing:/features/engine" to the granted and revoked permissions.
	Resources map[string]Resource `json:"resources,omitempty"`
}

// Subject describes one authenticated party inside a policy entry.
type Subject struct {
	Type string `json:"type,omitempty"`
}

// Resource lists the permissions granted and revoked on one resource path.
type Resource struct {
	Grant  []string `json:"grant"`
	Revoke []string `json:"revoke"`
}

// Permissions used in policy resources.
const (
	PermissionRead  = "READ"
	PermissionWrite = "WRITE"
)

type policyAlias Policy

// MarshalJSON emits "policyId" only when the id is set.
func (p Policy) MarshalJSON() ([]byte, error) {
	out := struct {
		ID *NamespacedID `json:"policyId,omitempty"`
		policyAlias
	}{policyAlias: policyAlias(p)}
	if !p.ID.IsZero() {
		out.ID = &p.ID
	}
	return json.Marshal(out)
}

// UnmarshalJSON tolerates policies without an id.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var in struct {
		ID *NamespacedID `json:"policyId"`
		policyAlias
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Policy(in.policyAlias)
	if in.ID != nil {
		p.ID = *in.ID
	}
	return nil
}
