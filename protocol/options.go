package protocol

import "time"

// Option mutates envelope headers during construction. Options are applied
// in order, so later options win on conflicting headers.
type Option func(*Envelope)

// WithCorrelationID sets an explicit correlation id instead of letting the
// exchange generate one.
func WithCorrelationID(id string) Option {
	return func(e *Envelope) {
		e.Headers.SetCorrelationID(id)
	}
}

// WithResponseRequired overrides the response-required header.
func WithResponseRequired(required bool) Option {
	return func(e *Envelope) {
		e.Headers.SetResponseRequired(required)
	}
}

// WithTimeout asks the backend to give up on the command after d and is also
// used as the local wait bound by the exchange.
func WithTimeout(d time.Duration) Option {
	return func(e *Envelope) {
		e.Headers.SetTimeout(d)
	}
}

// WithContentType overrides the default application/json content type.
func WithContentType(ct string) Option {
	return func(e *Envelope) {
		e.Headers[HeaderContentType] = ct
	}
}

// WithCondition attaches a conditional-update expression; the backend only
// applies the command when the condition holds.
func WithCondition(condition string) Option {
	return func(e *Envelope) {
		e.Headers[HeaderCondition] = condition
	}
}

// WithIfMatch attaches an if-match entity tag for optimistic locking.
func WithIfMatch(etag string) Option {
	return func(e *Envelope) {
		e.Headers[HeaderIfMatch] = etag
	}
}

// WithIfNoneMatch attaches an if-none-match entity tag.
func WithIfNoneMatch(etag string) Option {
	return func(e *Envelope) {
		e.Headers[HeaderIfNoneMatch] = etag
	}
}

// WithRequestedAcks names the acknowledgements the command should wait for.
func WithRequestedAcks(labels ...string) Option {
	return func(e *Envelope) {
		e.Headers[HeaderRequestedAcks] = labels
	}
}

// WithFields restricts a retrieve response to the given field selector.
func WithFields(fields string) Option {
	return func(e *Envelope) {
		e.Fields = fields
	}
}

// WithHeader sets an arbitrary header for backend extensions.
func WithHeader(key string, value any) Option {
	return func(e *Envelope) {
		e.Headers[key] = value
	}
}
