package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/c360/twinstreams/bus"
	"github.com/c360/twinstreams/correlation"
	"github.com/c360/twinstreams/errors"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/protocol"
)

// Stream iterates one search result set in the scanner idiom:
//
//	stream, err := handle.Stream(ctx, query)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next(ctx) {
//		thing := stream.Thing()
//	}
//	if err := stream.Err(); err != nil { ... }
//
// A stream is single-use. After it terminates, through completion, failure,
// cancellation or Close, Next always returns false. Next, Thing and Err must
// stay on one goroutine; Close may be called from any.
type Stream struct {
	exchange *correlation.Exchange
	logger   *slog.Logger
	sid      string
	demand   int

	pages chan []json.RawMessage
	done  chan struct{}

	// err and drain are written once inside terminal and read only after
	// done is closed.
	err   error
	drain bool

	terminal   sync.Once
	cancelOnce sync.Once
	sub        *bus.Subscription

	current  []json.RawMessage
	idx      int
	thing    model.Thing
	consumed int
}

// Next advances to the next result item, blocking until one is available or
// the stream terminates. It returns false on termination; Err tells clean
// completion from failure. Cancelling ctx terminates the stream.
func (s *Stream) Next(ctx context.Context) bool {
	for {
		select {
		case <-s.done:
			// Buffered pages stay readable after clean completion but
			// are dropped on failure or Close.
			if !s.drain {
				return false
			}
		default:
		}

		if s.idx < len(s.current) {
			return s.yield()
		}

		select {
		case page := <-s.pages:
			s.current, s.idx = page, 0
			s.replenish(ctx)
		case <-s.done:
			if !s.drain {
				return false
			}
			select {
			case page := <-s.pages:
				s.current, s.idx = page, 0
			default:
				return false
			}
		case <-ctx.Done():
			s.terminate(errors.WrapTransient(ctx.Err(), "Stream", "Next", "wait for page"), true)
			return false
		}
	}
}

// Thing returns the item Next advanced to. Valid until the next call to
// Next.
func (s *Stream) Thing() model.Thing {
	return s.thing
}

// Err returns the error that terminated the stream, nil while it is live or
// after clean completion and Close.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close terminates the stream and cancels the backend subscription. Safe to
// call any number of times and after termination.
func (s *Stream) Close() error {
	s.terminate(nil, true)
	return nil
}

func (s *Stream) yield() bool {
	item := s.current[s.idx]
	s.idx++
	var th model.Thing
	if err := json.Unmarshal(item, &th); err != nil {
		s.terminate(errors.WrapInvalid(errors.ErrTypeMismatch, "Stream", "Next",
			"decode result item: "+err.Error()), true)
		return false
	}
	s.thing = th
	return true
}

// replenish grants more demand once enough pages were consumed to free the
// buffer slots for it.
func (s *Stream) replenish(ctx context.Context) {
	s.consumed++
	if s.consumed < s.demand {
		return
	}
	n := s.consumed
	s.consumed = 0

	select {
	case <-s.done:
		return
	default:
	}
	if err := s.request(ctx, n); err != nil {
		s.terminate(err, true)
	}
}

func (s *Stream) request(ctx context.Context, demand int) error {
	env, err := protocol.New(searchTopic(protocol.ActionRequest), "/",
		requestPayload{SubscriptionID: s.sid, Demand: demand})
	if err != nil {
		return err
	}
	return s.exchange.Send(ctx, env)
}

// onFrame handles the subscription's frames on the bus dispatch goroutine,
// so it must never block. Pushing a page cannot block while the backend
// honors granted demand; a push that would block means it did not.
func (s *Stream) onFrame(env *protocol.Envelope, _ bus.Captures) {
	switch env.Topic.Action {
	case protocol.ActionNext:
		var page nextPayload
		if err := env.DecodeValue(&page); err != nil {
			s.terminate(err, true)
			return
		}
		select {
		case s.pages <- page.Items:
		default:
			s.terminate(errors.WrapInvalid(errors.ErrMalformedEnvelope, "Stream", "onFrame",
				"backend sent a page beyond the granted demand"), true)
		}
	case protocol.ActionComplete:
		s.complete()
	case protocol.ActionFailed:
		var f failedPayload
		if derr := env.DecodeValue(&f); derr != nil || f.Error == nil {
			s.fail(errors.WrapTransient(errors.ErrMalformedEnvelope, "Stream", "onFrame",
				"backend failed the subscription without an error payload"))
			return
		}
		s.fail(f.Error)
	default:
		s.logger.Debug("ignoring unknown search frame", "action", string(env.Topic.Action))
	}
}

// complete ends the stream cleanly. The backend subscription is already
// gone, so the cancel slot is burned without sending.
func (s *Stream) complete() {
	s.cancelOnce.Do(func() {})
	s.terminal.Do(func() {
		s.drain = true
		s.release()
	})
}

func (s *Stream) fail(err error) {
	s.cancelOnce.Do(func() {})
	s.terminal.Do(func() {
		s.err = err
		s.release()
	})
}

// terminate ends the stream from the client side. The upstream cancel is
// sent at most once across all paths, including racing Close calls.
func (s *Stream) terminate(err error, cancelUpstream bool) {
	s.cancelOnce.Do(func() {
		if cancelUpstream {
			s.sendCancel()
		}
	})
	s.terminal.Do(func() {
		s.err = err
		s.release()
	})
}

func (s *Stream) release() {
	if s.sub != nil {
		s.sub.Cancel()
	}
	close(s.done)
}

func (s *Stream) sendCancel() {
	env, err := protocol.New(searchTopic(protocol.ActionCancel), "/",
		subscriptionRef{SubscriptionID: s.sid})
	if err == nil {
		err = s.exchange.Send(context.Background(), env)
	}
	if err != nil {
		s.logger.Debug("cancelling search subscription failed", "error", err)
	}
}
