package gandewa

import (
	"context"
	"errors"
	"iter"
)

// Seq exposes the subscription as a single-pass iterator over data
// events. The sequence ends silently on clean completion and yields the
// terminal error once otherwise. Breaking out of the range early
// unsubscribes, so an abandoned loop never leaks the connection.
func (s *Subscription) Seq(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for {
			value, err := s.Next(ctx)
			if err != nil {
				if errors.Is(err, ErrEndOfStream) {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(value, nil) {
				s.Unsubscribe()
				return
			}
		}
	}
}

// Collect drains the subscription until it terminates, returning every
// data event in arrival order. Intended for short streams and tests; an
// infinite stream never returns unless ctx is cancelled.
func (s *Subscription) Collect(ctx context.Context) ([]any, error) {
	var values []any
	for {
		value, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				return values, nil
			}
			return values, err
		}
		values = append(values, value)
	}
}
