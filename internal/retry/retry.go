// Package retry implements the bounded retry loop wrapped around upstream calls.
//
// An operation is attempted up to MaxRetries+1 times. Only the two recoverable
// failure kinds (interfaces.KindDomain and interfaces.KindTransport) are retried,
// immediately and without backoff. Any other error ends the loop at once and is
// handed back to the caller untouched.
package retry

import (
	"context"
	"errors"
	"net/http"

	"github.com/router-for-me/CursorProxyAPI/internal/interfaces"
	log "github.com/sirupsen/logrus"
)

// Observer is notified about the outcome of every attempt.
type Observer interface {
	ObserveAttempt(kind interfaces.Kind, final bool)
	ObserveSuccess()
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver attaches an attempt observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// Executor runs operations with a fixed retry budget. It is immutable after
// construction and safe for concurrent use.
type Executor struct {
	maxRetries int
	observer   Observer
}

// New returns an Executor allowing maxRetries retries after the initial attempt.
// Negative values are treated as zero.
func New(maxRetries int, opts ...Option) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	e := &Executor{maxRetries: maxRetries}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxRetries reports the configured retry budget.
func (e *Executor) MaxRetries() int { return e.maxRetries }

// Result is the tagged outcome of Do. Exactly one of Value (Err == nil) or a
// classified Err is meaningful.
type Result[T any] struct {
	Value    T
	Err      error
	Kind     interfaces.Kind
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// ErrorResponse renders a terminal classified failure as an HTTP status and an
// OpenAI error body. ok is false for successes and for unknown failures, which
// the caller owns.
func (r Result[T]) ErrorResponse() (status int, body []byte, ok bool) {
	if r.Err == nil {
		return 0, nil, false
	}
	switch r.Kind {
	case interfaces.KindDomain:
		if statusErr, found := asStatusError(r.Err); found {
			return statusErr.StatusCode(), statusErr.OpenAIError(), true
		}
	case interfaces.KindTransport:
		return http.StatusInternalServerError, interfaces.OpenAIError(r.Err.Error(), "http_error", "http_error"), true
	}
	return 0, nil, false
}

// Do runs op until it succeeds, fails with an unrecognised error, or the retry
// budget is spent. It always returns a definite Result.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) Result[T] {
	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			if e.observer != nil {
				e.observer.ObserveSuccess()
			}
			return Result[T]{Value: value, Attempts: attempt + 1}
		}

		kind := interfaces.Classify(err)
		final := kind == interfaces.KindUnknown || attempt >= e.maxRetries
		if e.observer != nil {
			e.observer.ObserveAttempt(kind, final)
		}
		if kind == interfaces.KindUnknown {
			return Result[T]{Err: err, Kind: kind, Attempts: attempt + 1}
		}
		if final {
			log.WithFields(log.Fields{
				"attempts": attempt + 1,
				"kind":     kind.String(),
			}).Errorf("retry: giving up: %v", err)
			return Result[T]{Err: err, Kind: kind, Attempts: attempt + 1}
		}

		log.WithFields(log.Fields{
			"attempt":     attempt + 1,
			"max_retries": e.maxRetries,
			"kind":        kind.String(),
		}).Warnf("retry: attempt failed: %v", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result[T]{Err: ctxErr, Kind: interfaces.KindUnknown, Attempts: attempt + 1}
		}
	}
}

func asStatusError(err error) (*interfaces.StatusError, bool) {
	var statusErr *interfaces.StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
