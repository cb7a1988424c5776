package stream

import (
	"context"
	"errors"
	"io"
)

// Open creates a Source with factory and pulls its first item before returning.
//
// If opening the source or obtaining the first item fails, the source is closed
// and the error is returned, so the caller can still answer with a regular JSON
// error instead of committing a streaming response. On success the returned
// Source yields the already obtained first item followed by the remainder of
// the original sequence.
func Open[T any](ctx context.Context, factory Factory[T]) (Source[T], error) {
	src, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	first, err := src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return &primedSource[T]{src: src}, nil
	}
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return &primedSource[T]{src: src, first: first, pending: true}, nil
}

type primedSource[T any] struct {
	src     Source[T]
	first   T
	pending bool
	closed  bool
}

func (p *primedSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if p.closed {
		return zero, ErrClosed
	}
	if p.pending {
		p.pending = false
		item := p.first
		p.first = zero
		return item, nil
	}
	return p.src.Next(ctx)
}

func (p *primedSource[T]) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.src.Close()
}
