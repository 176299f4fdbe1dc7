package middleware

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, op *Op, next Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := Chain(mw("outer"), mw("inner"))
	err := chain(context.Background(), &Op{Name: "test"}, func(ctx context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainEmpty(t *testing.T) {
	t.Parallel()

	called := false
	chain := Chain()
	err := chain(context.Background(), &Op{Name: "test"}, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestRecover(t *testing.T) {
	t.Parallel()

	mw := Recover()
	err := mw(context.Background(), &Op{Name: "boom"}, func(ctx context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("expected error from panic")
	}

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T, want *PanicError", err)
	}
	if pe.Value != "kaboom" {
		t.Fatalf("panic value = %v, want kaboom", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Fatal("missing stack trace")
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	mw := Timeout(20 * time.Millisecond)
	err := mw(context.Background(), &Op{Name: "slow"}, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestTimeoutDisabled(t *testing.T) {
	t.Parallel()

	mw := Timeout(0)
	err := mw(context.Background(), &Op{Name: "fast"}, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("error = %v", err)
	}
}

func TestLoggingPassesError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")
	mw := Logging(slog.New(slog.DiscardHandler))
	err := mw(context.Background(), &Op{Name: "failing"}, func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
}
