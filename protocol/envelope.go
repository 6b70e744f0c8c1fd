package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/twinstreams/errors"
)

// Envelope is the single wire unit exchanged with the twin service. Commands,
// responses, events, messages and search frames all share this shape; the
// topic and the presence of a status code tell them apart.
type Envelope struct {
	Topic    Topic           `json:"topic"`
	Headers  Headers         `json:"headers,omitempty"`
	Path     string          `json:"path,omitempty"`
	Fields   string          `json:"fields,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Extra    json.RawMessage `json:"extra,omitempty"`
	Status   int             `json:"status,omitempty"`
	Revision int64           `json:"revision,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// New builds an envelope for the given topic and path, marshals the value
// and applies header options. A nil value produces an envelope without a
// value field.
func New(topic Topic, path string, value any, opts ...Option) (*Envelope, error) {
	env := &Envelope{
		Topic:   topic,
		Path:    normalizePath(path),
		Headers: Headers{HeaderContentType: ContentTypeJSON},
	}
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Envelope", "New", "marshal value")
		}
		env.Value = raw
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

// NewResponse builds the response envelope for a received command or
// message: same topic and path, correlation carried over, status set.
func NewResponse(req *Envelope, status int, value any) (*Envelope, error) {
	resp, err := New(req.Topic, req.Path, value)
	if err != nil {
		return nil, err
	}
	resp.Status = status
	if id := req.Headers.CorrelationID(); id != "" {
		resp.Headers.SetCorrelationID(id)
	}
	resp.Headers.SetResponseRequired(false)
	return resp, nil
}

// Decode parses an envelope from its wire JSON.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Envelope", "Decode", err.Error())
	}
	if env.Topic.IsZero() {
		return nil, errors.WrapInvalid(errors.ErrMalformedEnvelope, "Envelope", "Decode", "missing topic")
	}
	return &env, nil
}

// Encode renders the envelope to wire JSON.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Envelope", "Encode", "marshal envelope")
	}
	return data, nil
}

// IsResponse reports whether the envelope answers an earlier request. Only
// responses and error envelopes carry a status code.
func (e *Envelope) IsResponse() bool {
	return e.Status != 0
}

// IsError reports whether the envelope signals a failure.
func (e *Envelope) IsError() bool {
	return e.Status >= 400 || e.Topic.Criterion == CriterionErrors
}

// CorrelationID is a convenience accessor for the correlation-id header.
func (e *Envelope) CorrelationID() string {
	return e.Headers.CorrelationID()
}

// DecodeValue unmarshals the envelope value into out.
func (e *Envelope) DecodeValue(out any) error {
	if len(e.Value) == 0 {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Envelope", "DecodeValue",
			"envelope has no value")
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		return errors.WrapInvalid(errors.ErrTypeMismatch, "Envelope", "DecodeValue",
			fmt.Sprintf("decode into %T: %v", out, err))
	}
	return nil
}

// Address derives the hierarchical dispatch address of the envelope. Entity
// traffic maps to "/<group>/<namespace>:<name><path>", so an attribute event
// on thing org.acme:sensor-1 yields
// "/things/org.acme:sensor-1/attributes/temperature". Search frames map to
// "/search/things/<subscriptionId>" using the subscription id carried in the
// value.
func (e *Envelope) Address() string {
	if e.Topic.Criterion == CriterionSearch {
		return searchAddress(e.Value)
	}
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(string(e.Topic.Group))
	b.WriteByte('/')
	b.WriteString(e.Topic.EntityID())
	b.WriteString(e.Path)
	return b.String()
}

// SearchAddressPrefix is the address root of all search frames.
const SearchAddressPrefix = "/search/things"

func searchAddress(value json.RawMessage) string {
	var sub struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if len(value) == 0 || json.Unmarshal(value, &sub) != nil || sub.SubscriptionID == "" {
		return SearchAddressPrefix
	}
	return SearchAddressPrefix + "/" + sub.SubscriptionID
}

// normalizePath keeps addresses canonical: the entity root is the empty
// path, everything else starts with a single slash and has no trailing one.
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	p = strings.TrimRight(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
