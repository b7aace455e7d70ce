// Package waiter blocks until an envelope matching a predicate is in a
// message log.
//
// A wait resolves to the first matching envelope in log order: the one
// with the lowest sequence number among the entries currently held (and
// after the mark, when After is given). Later arrivals never change the
// answer once a match exists. Waits never remove entries, so any number
// of them may observe the same envelope.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestra-mcp/notify-harness/src/msglog"
	"github.com/orchestra-mcp/notify-harness/src/types"
)

// ErrWaitTimeout is returned when no envelope matched before the deadline.
var ErrWaitTimeout = errors.New("wait timeout")

// ErrUnexpectedEnvelope is returned by ExpectNone when a match exists.
var ErrUnexpectedEnvelope = errors.New("unexpected envelope")

// Source is a log view that can be re-read on every change.
type Source interface {
	View() ([]msglog.Entry, <-chan struct{})
}

type request struct {
	after    uint64
	hasAfter bool
}

// Option adjusts a single wait.
type Option func(*request)

// After limits the wait to entries with Seq >= mark, as returned by
// Log.Mark before the action under test.
func After(mark uint64) Option {
	return func(r *request) {
		r.after = mark
		r.hasAfter = true
	}
}

// ForEntry waits up to timeout for an entry of the given type that
// satisfies pred. The deadline is measured from the call. Entries
// already in the log are considered first, so a match that arrived
// before the call resolves immediately.
func ForEntry(ctx context.Context, src Source, typ types.MessageType, pred Predicate, timeout time.Duration, opts ...Option) (msglog.Entry, error) {
	var req request
	for _, opt := range opts {
		opt(&req)
	}
	if pred == nil {
		pred = Any()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		entries, changed := src.View()
		if e, ok := req.first(entries, typ, pred); ok {
			return e, nil
		}

		select {
		case <-changed:
		case <-timer.C:
			// A final scan covers an append racing the timer.
			entries, _ := src.View()
			if e, ok := req.first(entries, typ, pred); ok {
				return e, nil
			}
			return msglog.Entry{}, fmt.Errorf("%w: no %s within %s", ErrWaitTimeout, typ, timeout)
		case <-ctx.Done():
			return msglog.Entry{}, fmt.Errorf("wait for %s: %w", typ, ctx.Err())
		}
	}
}

// For is ForEntry returning only the envelope.
func For(ctx context.Context, src Source, typ types.MessageType, pred Predicate, timeout time.Duration, opts ...Option) (types.Envelope, error) {
	e, err := ForEntry(ctx, src, typ, pred, timeout, opts...)
	if err != nil {
		return types.Envelope{}, err
	}
	return e.Envelope, nil
}

// ForType waits for any envelope of the given type.
func ForType(ctx context.Context, src Source, typ types.MessageType, timeout time.Duration, opts ...Option) (types.Envelope, error) {
	return For(ctx, src, typ, Any(), timeout, opts...)
}

// ForAction waits for an envelope of the given type whose payload.action
// equals action.
func ForAction(ctx context.Context, src Source, typ types.MessageType, action types.Action, timeout time.Duration, opts ...Option) (types.Envelope, error) {
	return For(ctx, src, typ, HasAction(action), timeout, opts...)
}

// ExpectNone succeeds when no matching envelope shows up within window.
func ExpectNone(ctx context.Context, src Source, typ types.MessageType, pred Predicate, window time.Duration, opts ...Option) error {
	env, err := For(ctx, src, typ, pred, window, opts...)
	switch {
	case errors.Is(err, ErrWaitTimeout):
		return nil
	case err != nil:
		return err
	default:
		return fmt.Errorf("%w: %s %s %s", ErrUnexpectedEnvelope, env.Type, env.Payload.Action, env.ResourceID())
	}
}

func (r request) first(entries []msglog.Entry, typ types.MessageType, pred Predicate) (msglog.Entry, bool) {
	for _, e := range entries {
		if r.hasAfter && e.Seq < r.after {
			continue
		}
		if e.Envelope.Type == typ && pred(e.Envelope) {
			return e, true
		}
	}
	return msglog.Entry{}, false
}
