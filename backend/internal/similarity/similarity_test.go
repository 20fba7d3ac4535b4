package similarity

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-organization/backend/internal/resilience"
	apperrors "knowledge-organization/backend/pkg/errors"
)

func TestCalculatorMetrics(t *testing.T) {
	ctx := context.Background()
	a := []float64{1, 0}
	b := []float64{1, 1}

	cos, err := NewCalculator(Cosine, 0).Similarity(ctx, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, cos, 1e-9)

	dp, err := NewCalculator(DotProduct, 0).Similarity(ctx, a, b)
	require.NoError(t, err)
	assert.InDelta(t, cos, dp, 1e-12)

	eu, err := NewCalculator(Euclidean, 0).Similarity(ctx, a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, eu, 1e-12)

	mh, err := NewCalculator(Manhattan, 0).Similarity(ctx, []float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, mh, 1e-12)

	opposite, err := NewCalculator(Cosine, 0).Similarity(ctx, []float64{1, 0}, []float64{-1, 0})
	require.NoError(t, err)
	assert.Zero(t, opposite)
}

func TestCalculatorRejectsBadVectors(t *testing.T) {
	ctx := context.Background()
	c := NewCalculator(Cosine, 3)

	tests := []struct {
		name string
		a, b []float64
	}{
		{"mismatch", []float64{1, 2}, []float64{1}},
		{"empty", nil, nil},
		{"too long", []float64{1, 1, 1, 1}, []float64{1, 1, 1, 1}},
		{"zero", []float64{0, 0}, []float64{1, 0}},
		{"nan", []float64{math.NaN(), 1}, []float64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Similarity(ctx, tt.a, tt.b)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric(" Euclidean ")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, m)

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, Cosine, m)

	_, err = ParseMetric("jaccard")
	assert.Error(t, err)
}

type flakyService struct {
	failures int32
	calls    int32
	err      error
}

func (f *flakyService) Similarity(_ context.Context, _, _ []float64) (float64, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return 0, f.err
	}
	return 0.8, nil
}

func fastBackoff() resilience.Backoff {
	return resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Multiplier: 2}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	svc := &flakyService{failures: 2, err: errors.New("timeout")}
	c := NewClient(svc, WithBackoff(fastBackoff()))

	score, err := c.Similarity(context.Background(), []float64{1}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
	assert.Equal(t, int32(3), atomic.LoadInt32(&svc.calls))
}

func TestClientDoesNotRetryValidation(t *testing.T) {
	svc := &flakyService{failures: 10, err: apperrors.NewValidation("vector", "bad")}
	c := NewClient(svc, WithBackoff(fastBackoff()))

	_, err := c.Similarity(context.Background(), []float64{1}, []float64{1})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.calls))
}

func TestClientWrapsExhaustedRetries(t *testing.T) {
	svc := &flakyService{failures: 10, err: errors.New("connection refused")}
	c := NewClient(svc, WithBackoff(fastBackoff()))

	_, err := c.Similarity(context.Background(), []float64{1}, []float64{1})
	require.Error(t, err)
	assert.True(t, apperrors.IsCollaborator(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClientFailsFastWhenBreakerOpen(t *testing.T) {
	svc := &flakyService{failures: 100, err: errors.New("down")}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "similarity-test",
		Threshold:   3,
		Timeout:     time.Hour,
		Unavailable: apperrors.ErrSimilarityUnavailable,
	})
	c := NewClient(svc, WithBackoff(fastBackoff()), WithBreaker(breaker))

	_, _ = c.Similarity(context.Background(), []float64{1}, []float64{1})
	assert.Equal(t, "open", c.BreakerState())

	before := atomic.LoadInt32(&svc.calls)
	_, err := c.Similarity(context.Background(), []float64{1}, []float64{1})
	assert.ErrorIs(t, err, apperrors.ErrSimilarityUnavailable)
	assert.Equal(t, before, atomic.LoadInt32(&svc.calls))
}

func TestClientCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(NewCalculator(Cosine, 0), WithBackoff(fastBackoff()))
	_, err := c.Similarity(ctx, []float64{1}, []float64{1})
	assert.Error(t, err)
}
