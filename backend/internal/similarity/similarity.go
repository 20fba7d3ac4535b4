// Package similarity scores the semantic closeness of two content vectors.
package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"

	apperrors "knowledge-organization/backend/pkg/errors"
)

// Service returns a similarity score in [0,1] for two vectors. Implementations
// must be idempotent and side-effect free.
type Service interface {
	Similarity(ctx context.Context, a, b []float64) (float64, error)
}

// Metric selects the distance function.
type Metric string

const (
	Cosine     Metric = "cosine"
	Euclidean  Metric = "euclidean"
	Manhattan  Metric = "manhattan"
	DotProduct Metric = "dot_product"
)

// DefaultMaxDimension caps accepted vector length.
const DefaultMaxDimension = 4096

// ParseMetric maps a config string to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Cosine, Euclidean, Manhattan, DotProduct:
		return m, nil
	case "":
		return Cosine, nil
	}
	return "", apperrors.NewValidation("metric", fmt.Sprintf("unsupported similarity metric %q", s))
}

// Calculator computes similarity locally. Both vectors are L2-normalized
// before comparison; the score is clamped to [0,1].
type Calculator struct {
	metric Metric
	maxDim int
}

// NewCalculator returns a calculator for metric. maxDim <= 0 uses
// DefaultMaxDimension.
func NewCalculator(metric Metric, maxDim int) *Calculator {
	if metric == "" {
		metric = Cosine
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Calculator{metric: metric, maxDim: maxDim}
}

// Metric returns the configured metric.
func (c *Calculator) Metric() Metric { return c.metric }

// Similarity implements Service.
func (c *Calculator) Similarity(ctx context.Context, a, b []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(a) != len(b) {
		return 0, apperrors.NewValidation("vector", fmt.Sprintf("dimension mismatch: %d vs %d", len(a), len(b)))
	}
	if len(a) == 0 || len(a) > c.maxDim {
		return 0, apperrors.NewValidation("vector", fmt.Sprintf("dimension %d outside [1,%d]", len(a), c.maxDim))
	}
	na, err := normalize(a)
	if err != nil {
		return 0, err
	}
	nb, err := normalize(b)
	if err != nil {
		return 0, err
	}

	var score float64
	switch c.metric {
	case Cosine, DotProduct:
		// identical on unit vectors
		score = dot(na, nb)
	case Euclidean:
		sum := 0.0
		for i := range na {
			d := na[i] - nb[i]
			sum += d * d
		}
		score = 1 / (1 + math.Sqrt(sum))
	case Manhattan:
		sum := 0.0
		for i := range na {
			sum += math.Abs(na[i] - nb[i])
		}
		score = 1 / (1 + sum)
	default:
		return 0, apperrors.NewValidation("metric", fmt.Sprintf("unsupported similarity metric %q", c.metric))
	}
	return clamp01(score), nil
}

func normalize(v []float64) ([]float64, error) {
	norm := 0.0
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, apperrors.NewValidation("vector", "contains non-finite values")
		}
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, apperrors.NewValidation("vector", "zero vector has no direction")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
