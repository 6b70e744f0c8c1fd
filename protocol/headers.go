package protocol

import (
	"strconv"
	"strings"
	"time"
)

// Well-known header names. Header names are lowercase on the wire.
const (
	HeaderCorrelationID    = "correlation-id"
	HeaderResponseRequired = "response-required"
	HeaderContentType      = "content-type"
	HeaderTimeout          = "timeout"
	HeaderChannel          = "channel"
	HeaderRequestedAcks    = "requested-acks"
	HeaderCondition        = "condition"
	HeaderIfMatch          = "if-match"
	HeaderIfNoneMatch      = "if-none-match"
	HeaderReplyTo          = "reply-to"
	HeaderOrigin           = "origin"
	HeaderETag             = "etag"
)

// ContentTypeJSON is the default content type for structured payloads.
const ContentTypeJSON = "application/json"

// ContentTypeMergePatch marks merge command payloads, which follow RFC 7396
// merge-patch semantics where null deletes a field.
const ContentTypeMergePatch = "application/merge-patch+json"

// Headers carries the envelope's key-value metadata. Values are kept as
// decoded JSON (string, bool, float64, ...) and read through the typed
// accessors, which tolerate both native and string-encoded values since
// intermediaries are allowed to restringify them.
type Headers map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map, so
// callers can set headers on envelopes that arrived without any.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// CorrelationID returns the correlation-id header or "".
func (h Headers) CorrelationID() string {
	return h.str(HeaderCorrelationID)
}

// SetCorrelationID sets the correlation-id header.
func (h Headers) SetCorrelationID(id string) {
	h[HeaderCorrelationID] = id
}

// ResponseRequired reports whether the sender expects a response.
// Absent means true, matching the protocol default for commands.
func (h Headers) ResponseRequired() bool {
	v, ok := h[HeaderResponseRequired]
	if !ok {
		return true
	}
	return toBool(v, true)
}

// SetResponseRequired sets the response-required header.
func (h Headers) SetResponseRequired(required bool) {
	h[HeaderResponseRequired] = required
}

// ContentType returns the content-type header or "".
func (h Headers) ContentType() string {
	return h.str(HeaderContentType)
}

// Channel returns the channel header or "". The header form is used by
// backends that accept twin commands on channel-less transports.
func (h Headers) Channel() string {
	return h.str(HeaderChannel)
}

// Condition returns the conditional-update expression or "".
func (h Headers) Condition() string {
	return h.str(HeaderCondition)
}

// IfMatch returns the if-match entity tag or "".
func (h Headers) IfMatch() string {
	return h.str(HeaderIfMatch)
}

// IfNoneMatch returns the if-none-match entity tag or "".
func (h Headers) IfNoneMatch() string {
	return h.str(HeaderIfNoneMatch)
}

// ETag returns the entity tag of a response or "".
func (h Headers) ETag() string {
	return h.str(HeaderETag)
}

// ReplyTo returns the reply-to header or "".
func (h Headers) ReplyTo() string {
	return h.str(HeaderReplyTo)
}

// RequestedAcks returns the requested acknowledgement labels. The wire form
// is either a JSON array or a comma-separated string.
func (h Headers) RequestedAcks() []string {
	v, ok := h[HeaderRequestedAcks]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}

// Timeout returns the requested response timeout and whether one was set.
// The wire form is a bare number of seconds or a duration string such as
// "30s" or "500ms".
func (h Headers) Timeout() (time.Duration, bool) {
	v, ok := h[HeaderTimeout]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return time.Duration(val * float64(time.Second)), true
	case int:
		return time.Duration(val) * time.Second, true
	case int64:
		return time.Duration(val) * time.Second, true
	case string:
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second, true
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// SetTimeout sets the timeout header in whole seconds, rounding up so a
// sub-second timeout never becomes zero.
func (h Headers) SetTimeout(d time.Duration) {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	h[HeaderTimeout] = secs
}

func (h Headers) str(key string) string {
	if v, ok := h[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func toBool(v any, fallback bool) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fallback
		}
		return b
	default:
		return fallback
	}
}
