package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that bounds handler execution with a deadline.
// A non-positive duration disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
