package live

import "context"

// Query reads the current value from storage
type Query[T any] func(ctx context.Context) (T, error)

// Watch runs the query and emits its result, then runs it again each time one of the tables
// gets invalidated. A query error is emitted and terminates the stream.
func Watch[T any](ctx context.Context, tracker *Tracker, query Query[T], tables ...string) <-chan Event[T] {
	out := make(chan Event[T])
	// subscribe before the first query, a write in between must not be lost
	changed, cancel := tracker.Subscribe(tables...)

	go func() {
		defer close(out)
		defer cancel()

		for {
			v, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				send(ctx, out, Event[T]{Err: err})
				return
			}
			if !send(ctx, out, Event[T]{Value: v}) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()

	return out
}
