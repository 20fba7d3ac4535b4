// Package resilience wraps collaborator calls with circuit breaking and
// retry with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/constants"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name string
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Unavailable is returned, wrapped, when the breaker rejects a call.
	Unavailable error
}

// DefaultBreakerConfig opens after 5 consecutive failures and retries after 60s.
func DefaultBreakerConfig(name string, unavailable error) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		Threshold:   constants.BreakerThreshold,
		Timeout:     constants.BreakerTimeout,
		MaxRequests: 1,
		Unavailable: unavailable,
	}
}

// Breaker guards one class of collaborator calls.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker
	unavailable error
}

// NewBreaker creates a circuit breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.Threshold == 0 {
		config.Threshold = constants.BreakerThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.BreakerTimeout
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Unavailable == nil {
		config.Unavailable = apperrors.ErrStoreUnavailable
	}
	log := logger.Get()
	threshold := config.Threshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})
	return &Breaker{cb: cb, unavailable: config.Unavailable}
}

// countsAsFailure reports whether err says something about collaborator
// health. Bad input, version conflicts and caller cancellation do not.
func countsAsFailure(err error) bool {
	switch {
	case apperrors.IsValidation(err), apperrors.IsConflict(err), apperrors.IsNotFound(err), apperrors.IsComplexity(err):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return b.translate(err)
}

// Execute runs fn through the breaker and returns its result.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, b.translate(err)
	}
	return res.(T), nil
}

func (b *Breaker) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", b.unavailable, err.Error())
	}
	return err
}

// State returns the breaker state name: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}
