// Package live provides query results that keep emitting as the underlying data changes.
//
// A live stream is a receive channel of Event values. The producer closes the channel when the
// stream terminates; a failure is delivered as a last event with Err set, then the channel is
// closed. Cancelling the context passed to the producer stops it and closes the channel.
package live

import "context"

// Event is one emission of a live stream
type Event[T any] struct {
	Value T
	Err   error
}

// Just returns a stream which emits v once and closes
func Just[T any](v T) <-chan Event[T] {
	ch := make(chan Event[T], 1)
	ch <- Event[T]{Value: v}
	close(ch)
	return ch
}

// First waits for the first event of the stream. It returns the stream error if the first
// event carries one and ErrClosed if the stream closes before emitting.
func First[T any](ctx context.Context, stream <-chan Event[T]) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case ev, ok := <-stream:
		if !ok {
			return zero, ErrClosed
		}
		if ev.Err != nil {
			return zero, ev.Err
		}
		return ev.Value, nil
	}
}

func send[T any](ctx context.Context, out chan<- Event[T], ev Event[T]) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
