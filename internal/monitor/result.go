package monitor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the per-entity outcome of a pass: either an Ok record or a Failed record carrying its error.
type Result[T any] struct {
	Record T
	Err    error
}

// Ok wraps a successful record.
func Ok[T any](record T) Result[T] {
	return Result[T]{Record: record}
}

// Failed wraps a record that was emitted in its error shape.
func Failed[T any](record T, err error) Result[T] {
	return Result[T]{Record: record, Err: err}
}

// IsFailed reports whether the entity could not be read.
func (r Result[T]) IsFailed() bool {
	return r.Err != nil
}

// Records unwraps results, keeping their order.
func Records[T any](results []Result[T]) []T {
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.Record
	}
	return out
}

// CountFailed counts failed results.
func CountFailed[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.IsFailed() {
			n++
		}
	}
	return n
}

// fanOut runs fn for every key with at most limit in flight. Output order follows keys.
// A panicking entity is converted with onPanic so that its siblings still complete.
func fanOut[T any](ctx context.Context, limit int, keys []string,
	fn func(ctx context.Context, key string) Result[T],
	onPanic func(key string, err error) Result[T],
) []Result[T] {
	results := make([]Result[T], len(keys))
	if limit <= 0 {
		limit = len(keys)
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, key := range keys {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					results[i] = onPanic(key, fmt.Errorf("panic: %v", r))
				}
			}()
			results[i] = fn(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
