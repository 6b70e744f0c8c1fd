// Package errors provides standardized error handling patterns for twinstreams.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// a client SDK talking to a remote twin service: Transient (temporary,
// retryable), Invalid (bad input or API misuse, non-retryable), and Fatal
// (unrecoverable, stop the client).
//
// Classification lets callers make retry and shutdown decisions without
// string matching on error text, and it integrates with Go's standard error
// handling patterns: errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Classification
//
//   - Transient: request timeouts, lost connections, temporary unavailability (retry recommended)
//   - Invalid: malformed selectors or envelopes, bad arguments, duplicate registrations (do not retry)
//   - Fatal: unusable configuration, states the client cannot recover from (stop the client)
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if !c.connected.Load() {
//	    return errors.ErrNotConnected
//	}
//
// Wrap errors with context for debugging:
//
//	if err := conn.WriteMessage(mt, data); err != nil {
//	    return errors.WrapTransient(err, "WebSocketProvider", "Send", "write envelope")
//	}
//
// Check classification for retry logic:
//
//	if err := handle.Retrieve(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // back off and retry
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the SDK.
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For usage errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function adds context without changing the original
// error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
// Pre-defined error variables cover the common SDK conditions, organized by
// category:
//
//   - Client lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyClosed
//   - Connection and exchange: ErrNotConnected, ErrConnectionLost, ErrTimeout
//   - Protocol and data: ErrMalformedEnvelope, ErrMalformedSelector, ErrTypeMismatch, ErrInvalidArgument
//   - Registration: ErrDuplicateRegistration
//   - Search streaming: ErrStreamClosed
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// Use these variables instead of creating custom error messages so callers
// can branch with errors.Is().
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("component: %s, class: %s", ce.Component, ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrTimeout) {
//	    // handle timeout specifically
//	}
//
// Classification is preserved through wrapping chains: wrapping a transient
// error with Wrap() keeps IsTransient(wrapped) true.
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified
// as Transient, so context-based timeouts and request timeouts are handled
// the same way by retry loops.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
//
// # Design Philosophy
//
//   - Classification over string matching: errors are classified by type, not content
//   - Wrapping over replacement: preserve original errors, add context via wrapping
//   - Standards over invention: use Go's error handling idioms (Is/As/Unwrap)
//   - Simplicity over completeness: three classes cover the SDK's needs
package errors
