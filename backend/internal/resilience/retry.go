package resilience

import (
	"context"
	"errors"
	"time"

	apperrors "knowledge-organization/backend/pkg/errors"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff retries 3 times starting at 100ms and doubling.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: 100 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if b.Max > 0 && d > b.Max {
			return b.Max
		}
	}
	return d
}

// Retry calls fn up to b.Attempts times, sleeping with exponential backoff
// between attempts, until it succeeds, returns an error retryable rejects,
// or ctx is done. A nil retryable retries every error except context errors.
func Retry[T any](ctx context.Context, b Backoff, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	var zero T
	var lastErr error
	for i := 0; i < b.Attempts; i++ {
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
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if i == b.Attempts-1 {
			break
		}
		timer := time.NewTimer(b.delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// RetryOnConflict re-runs fn while it fails with a ConflictError, up to
// attempts times. fn is expected to re-read state before writing.
func RetryOnConflict(ctx context.Context, attempts int, fn func(context.Context) error) error {
	_, err := Retry(ctx, Backoff{Attempts: attempts, Initial: 10 * time.Millisecond, Max: 200 * time.Millisecond, Multiplier: 2},
		apperrors.IsConflict,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
	return err
}
