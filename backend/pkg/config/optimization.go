package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"knowledge-organization/backend/internal/constants"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// OptimizationSettings tunes the optimizer passes. It can be supplied per
// request, through env vars, or from a YAML file.
type OptimizationSettings struct {
	BatchSize         int           `yaml:"batch_size" json:"batch_size"`
	MinWeight         float64       `yaml:"min_weight" json:"min_weight"`
	MaxWeight         float64       `yaml:"max_weight" json:"max_weight"`
	MinClustering     float64       `yaml:"min_clustering" json:"min_clustering"`
	MaxPathLength     int           `yaml:"max_path_length" json:"max_path_length"`
	PathBudget        int           `yaml:"path_budget" json:"path_budget"`
	PageRankDamping   float64       `yaml:"pagerank_damping" json:"pagerank_damping"`
	PageRankIters     int           `yaml:"pagerank_iterations" json:"pagerank_iterations"`
	BreakerThreshold  uint32        `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout" json:"breaker_timeout"`
	MetricsCacheTTL   time.Duration `yaml:"metrics_cache_ttl" json:"metrics_cache_ttl"`
	ConflictRetries   int           `yaml:"conflict_retries" json:"conflict_retries"`
	PathSampleSources int           `yaml:"path_sample_sources" json:"path_sample_sources"`
}

// DefaultOptimization returns the stock optimizer tuning.
func DefaultOptimization() OptimizationSettings {
	return OptimizationSettings{
		BatchSize:         constants.OptimizationBatchSize,
		MinWeight:         constants.MinRelationshipWeight,
		MaxWeight:         constants.MaxRelationshipWeight,
		MinClustering:     constants.DefaultMinClustering,
		MaxPathLength:     6,
		PathBudget:        20000,
		PageRankDamping:   0.85,
		PageRankIters:     100,
		BreakerThreshold:  constants.BreakerThreshold,
		BreakerTimeout:    constants.BreakerTimeout,
		MetricsCacheTTL:   constants.MetricsCacheTTL,
		ConflictRetries:   constants.ConflictRetries,
		PathSampleSources: 2000,
	}
}

func (o *OptimizationSettings) applyEnv() {
	o.BatchSize = getEnvInt("OPTIMIZATION_BATCH_SIZE", o.BatchSize)
	o.MinClustering = getEnvFloat("MIN_CLUSTERING", o.MinClustering)
	o.MaxPathLength = getEnvInt("MAX_PATH_LENGTH", o.MaxPathLength)
	o.BreakerThreshold = uint32(getEnvInt("BREAKER_THRESHOLD", int(o.BreakerThreshold)))
	o.BreakerTimeout = getEnvDuration("BREAKER_TIMEOUT", o.BreakerTimeout)
	o.MetricsCacheTTL = getEnvDuration("METRICS_CACHE_TTL", o.MetricsCacheTTL)
}

// Merge overlays the non-zero fields of override on o.
func (o OptimizationSettings) Merge(override OptimizationSettings) OptimizationSettings {
	if override.BatchSize > 0 {
		o.BatchSize = override.BatchSize
	}
	if override.MinWeight > 0 {
		o.MinWeight = override.MinWeight
	}
	if override.MaxWeight > 0 {
		o.MaxWeight = override.MaxWeight
	}
	if override.MinClustering > 0 {
		o.MinClustering = override.MinClustering
	}
	if override.MaxPathLength > 0 {
		o.MaxPathLength = override.MaxPathLength
	}
	if override.PathBudget > 0 {
		o.PathBudget = override.PathBudget
	}
	if override.PageRankDamping > 0 {
		o.PageRankDamping = override.PageRankDamping
	}
	if override.PageRankIters > 0 {
		o.PageRankIters = override.PageRankIters
	}
	if override.BreakerThreshold > 0 {
		o.BreakerThreshold = override.BreakerThreshold
	}
	if override.BreakerTimeout > 0 {
		o.BreakerTimeout = override.BreakerTimeout
	}
	if override.MetricsCacheTTL > 0 {
		o.MetricsCacheTTL = override.MetricsCacheTTL
	}
	if override.ConflictRetries > 0 {
		o.ConflictRetries = override.ConflictRetries
	}
	if override.PathSampleSources > 0 {
		o.PathSampleSources = override.PathSampleSources
	}
	return o
}

// Validate rejects settings the optimizer cannot run with.
func (o OptimizationSettings) Validate() error {
	if o.BatchSize < 1 {
		return apperrors.NewConfigValidationFailed("batch_size", "must be positive")
	}
	if o.MinWeight < 0 || o.MaxWeight > 1 || o.MinWeight > o.MaxWeight {
		return apperrors.NewConfigValidationFailed("min_weight/max_weight", "must satisfy 0 <= min <= max <= 1")
	}
	if o.MinClustering < 0 || o.MinClustering > 1 {
		return apperrors.NewConfigValidationFailed("min_clustering", "must be within [0,1]")
	}
	if o.MaxPathLength < 2 {
		return apperrors.NewConfigValidationFailed("max_path_length", "must be at least 2")
	}
	if o.PageRankDamping <= 0 || o.PageRankDamping >= 1 {
		return apperrors.NewConfigValidationFailed("pagerank_damping", "must be within (0,1)")
	}
	return nil
}

// LoadOptimizationFile reads YAML optimizer settings from path and overlays
// them on base.
func LoadOptimizationFile(path string, base OptimizationSettings) (OptimizationSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read optimization config: %w", err)
	}
	var file struct {
		Optimization OptimizationSettings `yaml:"optimization"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("failed to parse optimization config: %w", err)
	}
	merged := base.Merge(file.Optimization)
	if err := merged.Validate(); err != nil {
		return base, err
	}
	return merged, nil
}
