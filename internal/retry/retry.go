package retry

import (
	"context"
	"github.com/pkg/errors"
	"time"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Callable is retried only when it returns an error created with Retryable
type Callable func(ctx context.Context, attempt int) error

type retryableError struct {
	error
	attempt int
}

func (e *retryableError) Unwrap() error {
	return e.error
}

// Retryable marks err as worth another attempt
func Retryable(err error, attempt int) error {
	if err == nil {
		return nil
	}

	return &retryableError{error: err, attempt: attempt}
}

type Backoff interface {
	// Next returns the pause before the given attempt and whether to give up instead
	Next(attempt int) (time.Duration, bool)
}

func Start(ctx context.Context, b Backoff, cb Callable) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := cb(ctx, attempt)
		if err == nil {
			return nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		lastErr = re.error

		pause, stop := b.Next(attempt + 1)
		if stop {
			return errors.Wrapf(ErrTooManyAttempts, "after %d attempts: %v", attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "gave up after %d attempts: %v", attempt, lastErr)
		case <-time.After(pause):
		}
	}
}

// Incremental pauses step, 2*step, 3*step... between at most maxAttempts attempts
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, cb Callable) error {
	return Start(ctx, IncrementalBackoff(step, maxAttempts), cb)
}

type incrementalBackoff struct {
	step        time.Duration
	maxAttempts int
}

func IncrementalBackoff(step time.Duration, maxAttempts int) Backoff {
	return incrementalBackoff{step: step, maxAttempts: maxAttempts}
}

func (b incrementalBackoff) Next(attempt int) (time.Duration, bool) {
	if attempt > b.maxAttempts {
		return 0, true
	}

	return time.Duration(attempt-1) * b.step, false
}
