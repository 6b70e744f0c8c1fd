package model

// Feature is one functional aspect of a thing: a set of live properties,
// optionally a set of desired target values, and the definitions describing
// its contract.
type Feature struct {
	// Definition lists the feature model identifiers this feature conforms
	// to, most specific first.
	Definition []string `json:"definition,omitempty"`

	// Properties is the current state reported for the feature.
	Properties map[string]any `json:"properties,omitempty"`

	// DesiredProperties is the target state requested for the feature.
	DesiredProperties map[string]any `json:"desiredProperties,omitempty"`
}

// Features maps feature ids to their state.
type Features map[string]Feature
