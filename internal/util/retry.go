package util

import (
	"context"
	"errors"
	"time"
)

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1. delay is waited
// between attempts. Returns ctx.Err() if the context is canceled, otherwise
// the last error.
//
// Only used while bootstrapping connections. The request pipeline never
// retries.
func RetryWithContext[T any](
	ctx context.Context,
	maxTries int,
	delay time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
		if i < maxTries-1 {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}

// RetryErrWithContext is RetryWithContext for functions without a result.
func RetryErrWithContext(
	ctx context.Context,
	maxTries int,
	delay time.Duration,
	fn func(context.Context) error,
) error {
	_, err := RetryWithContext(ctx, maxTries, delay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
