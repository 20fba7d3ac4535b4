package similarity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/resilience"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Client decorates a Service with retries and a circuit breaker. Transient
// failures are retried with exponential backoff; once the breaker opens,
// calls fail fast with ErrSimilarityUnavailable.
type Client struct {
	inner   Service
	breaker *resilience.Breaker
	backoff resilience.Backoff
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBreaker replaces the default breaker.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithBackoff replaces the default retry schedule.
func WithBackoff(b resilience.Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// NewClient wraps inner.
func NewClient(inner Service, opts ...ClientOption) *Client {
	c := &Client{
		inner:   inner,
		backoff: resilience.DefaultBackoff(),
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.DefaultBreakerConfig("similarity", apperrors.ErrSimilarityUnavailable))
	}
	return c
}

// Similarity implements Service.
func (c *Client) Similarity(ctx context.Context, a, b []float64) (float64, error) {
	score, err := resilience.Retry(ctx, c.backoff, retryable, func(ctx context.Context) (float64, error) {
		return resilience.Execute(c.breaker, func() (float64, error) {
			return c.inner.Similarity(ctx, a, b)
		})
	})
	if err != nil {
		if apperrors.IsValidation(err) || apperrors.IsCollaborator(err) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, apperrors.NewContextCancelled("similarity", err)
		}
		c.logger.Debug("Similarity lookup failed", zap.Error(err))
		return 0, apperrors.NewCollaborator("similarity", true, err)
	}
	if score < 0 || score > 1 {
		return 0, apperrors.NewCollaborator("similarity", false, fmt.Errorf("score %v outside [0,1]", score))
	}
	return score, nil
}

// BreakerState reports the underlying breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

func retryable(err error) bool {
	if apperrors.IsValidation(err) {
		return false
	}
	if apperrors.IsCollaborator(err) {
		return apperrors.IsRetryable(err)
	}
	return true
}
