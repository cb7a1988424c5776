// Package stream provides the pull-based sequence abstraction used between the
// upstream client, the response translator and the HTTP layer.
//
// A Source is consumed one item at a time by calling Next. Nothing is read ahead:
// an item is produced only when the consumer asks for it, so a consumer that stops
// pulling (for example because the client disconnected) stops upstream consumption.
package stream

import (
	"context"
	"errors"
	"io"
)

// ErrClosed is returned by Next after Close has been called.
var ErrClosed = errors.New("stream: source closed")

// Source is a lazily produced, strictly ordered sequence of items.
// Next returns io.EOF once the sequence is exhausted. Close releases the
// underlying resources; it is safe to call more than once.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// Factory opens a new Source.
type Factory[T any] func(ctx context.Context) (Source[T], error)

type funcSource[T any] struct {
	next    func(context.Context) (T, error)
	closeFn func() error
	closed  bool
	done    bool
}

// FromFunc adapts a next function and an optional close function into a Source.
// The returned Source checks ctx before each pull and remembers exhaustion.
func FromFunc[T any](next func(context.Context) (T, error), closeFn func() error) Source[T] {
	return &funcSource[T]{next: next, closeFn: closeFn}
}

func (s *funcSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if s.closed {
		return zero, ErrClosed
	}
	if s.done {
		return zero, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	item, err := s.next(ctx)
	if errors.Is(err, io.EOF) {
		s.done = true
	}
	return item, err
}

func (s *funcSource[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// FromSlice returns a Source yielding items in order.
func FromSlice[T any](items []T) Source[T] {
	idx := 0
	return FromFunc(func(context.Context) (T, error) {
		var zero T
		if idx >= len(items) {
			return zero, io.EOF
		}
		item := items[idx]
		idx++
		return item, nil
	}, nil)
}

// Drain pulls every item from src until io.EOF and closes it.
func Drain[T any](ctx context.Context, src Source[T]) ([]T, error) {
	defer func() { _ = src.Close() }()
	var items []T
	for {
		item, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}
