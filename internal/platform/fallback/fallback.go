// Package fallback selects the first present value from an ordered chain of
// lazily evaluated sources.
package fallback

import (
	"context"
	"errors"
)

// ErrAllAbsent is returned by First when no source yields a present value.
var ErrAllAbsent = errors.New("fallback: all sources absent")

// Source supplies an optional value. The boolean reports presence; a source
// may also fail outright, which counts as absent.
type Source[T any] func(ctx context.Context) (T, bool, error)

// First evaluates sources in order, each at most once, and returns the first
// present value. Evaluation stops at the first hit. When every source is
// absent, the returned error joins ErrAllAbsent with any source errors seen
// along the way.
func First[T any](ctx context.Context, sources ...Source[T]) (T, error) {
	var zero T
	var errs []error

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		val, ok, err := src(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return val, nil
		}
	}

	return zero, errors.Join(append([]error{ErrAllAbsent}, errs...)...)
}

// FirstOr behaves like First but falls back to def when all sources are absent.
func FirstOr[T any](ctx context.Context, def T, sources ...Source[T]) T {
	val, err := First(ctx, sources...)
	if err != nil {
		return def
	}
	return val
}

// Value wraps a constant into an always-present source.
func Value[T any](v T) Source[T] {
	return func(context.Context) (T, bool, error) { return v, true, nil }
}

// Absent is a source that never yields a value. Useful in tests and as an
// explicit placeholder in a chain.
func Absent[T any]() Source[T] {
	return func(context.Context) (T, bool, error) {
		var zero T
		return zero, false, nil
	}
}
