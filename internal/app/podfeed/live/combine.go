package live

import "context"

// Map transforms every value of the stream
func Map[T, R any](ctx context.Context, in <-chan Event[T], fn func(T) R) <-chan Event[R] {
	out := make(chan Event[R])
	go func() {
		defer close(out)
		for {
			var ev Event[T]
			var ok bool
			select {
			case <-ctx.Done():
				return
			case ev, ok = <-in:
			}
			if !ok {
				return
			}
			if ev.Err != nil {
				send(ctx, out, Event[R]{Err: ev.Err})
				return
			}
			if !send(ctx, out, Event[R]{Value: fn(ev.Value)}) {
				return
			}
		}
	}()
	return out
}

// Combine2 emits fn over the latest values of both streams, once each of them emitted at least once.
// An error of either stream terminates the result. The result closes when both inputs are closed.
func Combine2[A, B, R any](ctx context.Context, a <-chan Event[A], b <-chan Event[B], fn func(A, B) R) <-chan Event[R] {
	out := make(chan Event[R])
	go func() {
		defer close(out)

		var (
			lastA        A
			lastB        B
			hasA, hasB   bool
			doneA, doneB bool
		)
		for !doneA || !doneB {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-a:
				if !ok {
					doneA, a = true, nil
					continue
				}
				if ev.Err != nil {
					send(ctx, out, Event[R]{Err: ev.Err})
					return
				}
				lastA, hasA = ev.Value, true
			case ev, ok := <-b:
				if !ok {
					doneB, b = true, nil
					continue
				}
				if ev.Err != nil {
					send(ctx, out, Event[R]{Err: ev.Err})
					return
				}
				lastB, hasB = ev.Value, true
			}

			if hasA && hasB {
				if !send(ctx, out, Event[R]{Value: fn(lastA, lastB)}) {
					return
				}
			}
		}
	}()
	return out
}
