package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "knowledge-organization/backend/pkg/errors"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 5, Timeout: time.Hour, Unavailable: apperrors.ErrOptimizerUnavailable})

	for i := 0; i < 5; i++ {
		err := b.Do(func() error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.False(t, called)
	assert.ErrorIs(t, err, apperrors.ErrOptimizerUnavailable)
	assert.True(t, apperrors.IsCollaborator(err))
}

func TestBreakerIgnoresDomainErrors(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "domain", Threshold: 2, Timeout: time.Hour})

	for i := 0; i < 5; i++ {
		_ = b.Do(func() error { return apperrors.NewConflict("relationship", "r1") })
		_ = b.Do(func() error { return apperrors.NewValidation("x", "bad") })
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "recover", Threshold: 1, Timeout: 20 * time.Millisecond})
	_ = b.Do(func() error { return errBoom })
	assert.Equal(t, "open", b.State())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}

func TestExecuteReturnsValue(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig("exec", apperrors.ErrSimilarityUnavailable))
	v, err := Execute(b, func() (float64, error) { return 0.75, nil })
	require.NoError(t, err)
	assert.Equal(t, 0.75, v)
	assert.Equal(t, "exec", b.Name())
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), Backoff{Attempts: 3, Initial: time.Millisecond, Multiplier: 2}, nil,
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errBoom
			}
			return 42, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Backoff{Attempts: 3, Initial: time.Millisecond}, nil,
		func(context.Context) (int, error) {
			calls++
			return 0, errBoom
		})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Backoff{Attempts: 5, Initial: time.Millisecond}, apperrors.IsRetryable,
		func(context.Context) (int, error) {
			calls++
			return 0, apperrors.NewValidation("v", "bad")
		})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, Backoff{Attempts: 5, Initial: time.Second}, nil,
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errBoom
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewConflict("relationship", "r1")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryOnConflict(context.Background(), 3, func(context.Context) error {
		calls++
		return apperrors.NewConflict("relationship", "r1")
	})
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryOnConflict(context.Background(), 3, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.delay(0))
	assert.Equal(t, 200*time.Millisecond, b.delay(1))
	assert.Equal(t, 300*time.Millisecond, b.delay(2))
}
