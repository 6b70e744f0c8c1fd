// Package model defines the data types managed by the twin service: things
// with attributes and features, and the policies that guard them.
package model

import (
	"regexp"
	"strings"

	"github.com/c360/twinstreams/errors"
)

// NamespacedID identifies a thing or policy as "namespace:name". The
// namespace groups entities per organization or installation and the name is
// unique within it.
type NamespacedID struct {
	Namespace string
	Name      string
}

var (
	namespacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9\-]*(\.[a-zA-Z][a-zA-Z0-9\-]*)*$`)
	namePattern      = regexp.MustCompile(`^[^/\x00-\x1f\x7f]+$`)
)

// NewNamespacedID validates and builds an id from its two parts.
func NewNamespacedID(namespace, name string) (NamespacedID, error) {
	id := NamespacedID{Namespace: namespace, Name: name}
	if err := id.Validate(); err != nil {
		return NamespacedID{}, err
	}
	return id, nil
}

// ParseNamespacedID parses the "namespace:name" wire form.
func ParseNamespacedID(s string) (NamespacedID, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return NamespacedID{}, errors.WrapInvalid(errors.ErrInvalidArgument, "NamespacedID", "Parse",
			"id "+s+" has no namespace separator")
	}
	return NewNamespacedID(s[:idx], s[idx+1:])
}

// MustParseNamespacedID is ParseNamespacedID that panics on error.
func MustParseNamespacedID(s string) NamespacedID {
	id, err := ParseNamespacedID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks both parts against the allowed character sets. The
// namespace is dot-separated label syntax; the name may be anything
// printable except slashes, which would break topic paths.
func (id NamespacedID) Validate() error {
	if !namespacePattern.MatchString(id.Namespace) {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "NamespacedID", "Validate",
			"namespace "+id.Namespace+" is not valid")
	}
	if !namePattern.MatchString(id.Name) || strings.Contains(id.Name, ":") {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "NamespacedID", "Validate",
			"name "+id.Name+" is not valid")
	}
	return nil
}

// String returns the "namespace:name" wire form.
func (id NamespacedID) String() string {
	return id.Namespace + ":" + id.Name
}

// IsZero reports whether the id is unset.
func (id NamespacedID) IsZero() bool {
	return id.Namespace == "" && id.Name == ""
}

// MarshalJSON encodes the id as its wire string.
func (id NamespacedID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes the id from its wire string.
func (id *NamespacedID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "NamespacedID", "UnmarshalJSON",
			"id is not a JSON string")
	}
	parsed, err := ParseNamespacedID(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
