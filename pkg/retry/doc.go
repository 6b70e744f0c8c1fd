// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff,
// designed for connect attempts and other transient network failures.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//   - Delay: Compute the backoff for one attempt, for callers running their own loop
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (initial connect)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return provider.Connect(ctx)
//	})
//
// Retry with result:
//
//	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*websocket.Conn, error) {
//	    return dial(ctx, endpoint)
//	})
//
// Self-managed loop, as used by transport reconnect loops that only stop on
// shutdown:
//
//	for attempt := 1; ; attempt++ {
//	    if err := p.dial(ctx); err == nil {
//	        return nil
//	    }
//	    select {
//	    case <-time.After(retry.Delay(retry.Persistent(), attempt)):
//	    case <-p.shutdown:
//	        return errors.ErrAlreadyClosed
//	    }
//	}
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (recovery means reconnecting, nothing more)
//   - No metrics collection (use instrumentation at call site)
//   - No complex error classification (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop
// retrying when the context is cancelled, either during operation execution
// or during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use.
package retry
