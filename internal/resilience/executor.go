package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAttemptTimeout marks an attempt that did not resolve within its deadline.
var ErrAttemptTimeout = eris.New("attempt timed out")

// Policy bounds a single named external call: every attempt gets Timeout,
// failed attempts are retried Retries times with Delay between them.
type Policy struct {
	Name    string
	Timeout time.Duration
	Retries int
	Delay   time.Duration
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// ExhaustedError is returned by Execute once every attempt has failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) in %s: %v",
		e.Op, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from an attempt.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Execute runs fn under p. Each attempt is abandoned once p.Timeout elapses,
// even if fn ignores its context. Every error is retried; only cancellation
// of ctx stops the loop early. The returned error is an *ExhaustedError
// wrapping the last attempt's error.
func Execute[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	log := zap.L().With(zap.String("operation", p.Name))

	attempts := 0
	val, err := DoVal(ctx, RetryConfig{
		MaxAttempts: p.Attempts(),
		Backoff:     ConstantBackoff(p.Delay),
		ShouldRetry: func(error) bool { return true },
	}, func(ctx context.Context) (T, error) {
		attempts++
		v, err := attempt(ctx, p.Timeout, fn)
		if err != nil {
			log.Warn("attempt failed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", p.Attempts()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return v, err
	})
	if err != nil {
		var zero T
		return zero, &ExhaustedError{
			Op:       p.Name,
			Attempts: attempts,
			Elapsed:  time.Since(start),
			Err:      err,
		}
	}
	return val, nil
}

type outcome[T any] struct {
	val T
	err error
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	// Buffered so an abandoned attempt can still finish without blocking.
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: &PanicError{Value: r}}
			}
		}()
		v, err := fn(attemptCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, eris.Wrapf(ErrAttemptTimeout, "deadline %s exceeded", timeout)
		}
		return o.val, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, eris.Wrapf(ErrAttemptTimeout, "deadline %s exceeded", timeout)
	}
}
