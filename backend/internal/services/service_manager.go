// Package services wires the graph components from configuration and owns
// their lifecycle.
package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/adapter"
	"knowledge-organization/backend/internal/builder"
	"knowledge-organization/backend/internal/cache"
	"knowledge-organization/backend/internal/constants"
	"knowledge-organization/backend/internal/extractor"
	"knowledge-organization/backend/internal/graph"
	"knowledge-organization/backend/internal/metrics"
	"knowledge-organization/backend/internal/optimizer"
	"knowledge-organization/backend/internal/resilience"
	"knowledge-organization/backend/internal/similarity"
	"knowledge-organization/backend/pkg/config"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// metricsCache is what the optimizer needs plus a way to release it.
type metricsCache interface {
	optimizer.MetricsCache
	io.Closer
}

// ServiceManager builds the store, caches, similarity client, extractor,
// optimizer and service for one process and tears them down on StopAll.
type ServiceManager struct {
	logger *zap.Logger
	mu     sync.Mutex

	Store      graph.Store
	Repository *graph.Repository // nil unless the neo4j backend is used
	Collector  *metrics.Collector
	Optimizer  *optimizer.Optimizer
	Service    *builder.Service

	similarity *similarity.Client
	extractor  *extractor.Extractor
	cache      metricsCache
	backend    string
	stopped    bool
}

// NewServiceManager connects to the configured backends and wires the
// components. On error anything already opened is closed.
func NewServiceManager(ctx context.Context, log *zap.Logger, cfg *config.Config) (*ServiceManager, error) {
	sm := &ServiceManager{
		logger:    log,
		Collector: metrics.NewCollector(constants.MetricNamespace),
		backend:   cfg.StoreBackend,
	}

	switch cfg.StoreBackend {
	case "memory":
		sm.Store = graph.NewMemoryStore()
	default:
		driver, err := graph.NewDriver(ctx, graph.DriverConfig{
			URI:         cfg.Neo4jURI,
			User:        cfg.Neo4jUser,
			Password:    cfg.Neo4jPassword,
			MaxPoolSize: cfg.Neo4jMaxPoolSize,
			Timeout:     cfg.Neo4jTimeout,
		})
		if err != nil {
			return nil, err
		}
		sm.Repository = graph.NewRepository(driver, cfg.Neo4jDatabase)
		sm.Store = sm.Repository
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisMetrics(cache.RedisOptions{URL: cfg.RedisURL, TTL: cfg.Optimization.MetricsCacheTTL})
		if err != nil {
			sm.StopAll()
			return nil, err
		}
		sm.cache = rc
	} else {
		sm.cache = cache.NewMemoryMetrics(cfg.Optimization.MetricsCacheTTL)
	}

	metric, err := similarity.ParseMetric(cfg.SimilarityMetric)
	if err != nil {
		sm.StopAll()
		return nil, err
	}
	breaker := resilience.DefaultBreakerConfig("similarity", apperrors.ErrSimilarityUnavailable)
	breaker.Threshold = cfg.Optimization.BreakerThreshold
	breaker.Timeout = cfg.Optimization.BreakerTimeout
	sm.similarity = similarity.NewClient(
		similarity.NewCalculator(metric, cfg.SimilarityDim),
		similarity.WithBreaker(resilience.NewBreaker(breaker)),
	)

	sm.extractor = extractor.New(sm.similarity, extractor.Config{
		BatchSize:     cfg.ExtractionBatchSize,
		CacheTTL:      cfg.RelationshipTTL,
		CacheCapacity: cfg.RelationshipCap,
	}, sm.Collector)
	sm.Optimizer = optimizer.New(sm.Store, sm.cache, cfg.Optimization, sm.Collector)

	opts := []builder.ServiceOption{builder.WithCollector(sm.Collector)}
	if cfg.EmbeddingURL != "" {
		opts = append(opts, builder.WithEmbedder(adapter.NewEmbedder(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)))
	}
	sm.Service = builder.NewService(sm.Store, sm.extractor, sm.Optimizer, builder.Config{
		MinConnectionsPerNode: cfg.MinConnectionsPerNode,
		MaxParallelBatches:    cfg.MaxParallelBatches,
		ExtractionBatchSize:   cfg.ExtractionBatchSize,
		ConflictRetries:       cfg.Optimization.ConflictRetries,
	}, opts...)

	log.Info("Services initialized",
		zap.String("store", cfg.StoreBackend),
		zap.Bool("redis_metrics", cfg.RedisURL != ""),
		zap.String("similarity_metric", string(metric)),
		zap.Bool("embeddings", cfg.EmbeddingURL != ""))
	return sm, nil
}

// Status reports the backend and breaker states for health checks.
func (sm *ServiceManager) Status() map[string]string {
	status := map[string]string{"store": sm.backend}
	if sm.similarity != nil {
		status["similarity_breaker"] = sm.similarity.BreakerState()
	}
	if sm.Optimizer != nil {
		status["optimizer_breaker"] = sm.Optimizer.BreakerState()
	}
	return status
}

// Ping checks that the store answers.
func (sm *ServiceManager) Ping(ctx context.Context) error {
	if sm.Repository == nil {
		return nil
	}
	if err := sm.Repository.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// StopAll releases caches and connections. It is safe to call twice.
func (sm *ServiceManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return
	}
	sm.stopped = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		if sm.extractor != nil {
			sm.extractor.Close()
		}
		if sm.cache != nil {
			if err := sm.cache.Close(); err != nil {
				sm.logger.Warn("Failed to close metrics cache", zap.Error(err))
			}
		}
		if sm.Store != nil {
			if err := sm.Store.Close(); err != nil {
				sm.logger.Warn("Failed to close graph store", zap.Error(err))
			}
		}
	}()

	select {
	case <-done:
		sm.logger.Info("All services stopped")
	case <-time.After(5 * time.Second):
		sm.logger.Warn("Services did not stop within 5s")
	}
}
