package core

import (
	"context"
	"time"
)

// Await runs fn in its own goroutine and returns when fn finishes or ctx is
// done, whichever comes first. A call that ignores its context can therefore
// not hold the caller past the deadline; its late result is discarded.
func Await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WithTimeout is context.WithTimeout that leaves ctx untouched when d <= 0.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
