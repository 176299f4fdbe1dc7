package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError wraps a recovered panic value together with its stack trace.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover returns middleware that converts panics in downstream handlers
// into regular errors.
func Recover() Middleware {
	return func(ctx context.Context, op *Op, next Handler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return next(ctx)
	}
}
