// Package metrics exposes Prometheus instrumentation for graph builds,
// extraction and optimization. All Collector methods are safe on a nil
// receiver so components can run uninstrumented.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"knowledge-organization/backend/internal/model"
)

// Collector holds all Prometheus metrics for the service
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Build metrics
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Deletions     prometheus.Counter

	// Extraction metrics
	Extractions        prometheus.Counter
	ExtractedEdges     prometheus.Counter
	SimilarityFailures prometheus.Counter

	// Optimization metrics
	OptimizationOps      *prometheus.CounterVec
	OptimizationDuration prometheus.Histogram
	GraphMetric          *prometheus.GaugeVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	builds := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_builds_total",
			Help:      "Total number of graph builds by outcome",
		},
		[]string{"status"},
	)

	buildDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Graph build duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	deletions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_deletions_total",
			Help:      "Total number of graphs deleted by operators",
		},
	)

	extractions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationship_extractions_total",
			Help:      "Total number of relationship extraction runs",
		},
	)

	extractedEdges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationships_extracted_total",
			Help:      "Total number of relationships kept after extraction",
		},
	)

	similarityFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_failures_total",
			Help:      "Total number of node pairs skipped because similarity failed",
		},
	)

	optimizationOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimization_operations_total",
			Help:      "Relationships removed, reweighted or added by the optimizer",
		},
		[]string{"operation"},
	)

	optimizationDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimization_duration_seconds",
			Help:      "Optimization run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	graphMetric := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_metric",
			Help:      "Structural metrics of the most recently measured graph",
		},
		[]string{"metric"},
	)

	cacheRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	registry.MustRegister(
		builds,
		buildDuration,
		deletions,
		extractions,
		extractedEdges,
		similarityFailures,
		optimizationOps,
		optimizationDuration,
		graphMetric,
		cacheRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:             registry,
		Builds:               builds,
		BuildDuration:        buildDuration,
		Deletions:            deletions,
		Extractions:          extractions,
		ExtractedEdges:       extractedEdges,
		SimilarityFailures:   similarityFailures,
		OptimizationOps:      optimizationOps,
		OptimizationDuration: optimizationDuration,
		GraphMetric:          graphMetric,
		CacheRequests:        cacheRequests,
	}
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveBuild records a finished build.
func (c *Collector) ObserveBuild(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Builds.WithLabelValues(status).Inc()
	c.BuildDuration.Observe(elapsed.Seconds())
}

// GraphDeleted counts an operator deletion.
func (c *Collector) GraphDeleted() {
	if c == nil {
		return
	}
	c.Deletions.Inc()
}

// ObserveExtraction records one extraction run and the edges it kept.
func (c *Collector) ObserveExtraction(kept int) {
	if c == nil {
		return
	}
	c.Extractions.Inc()
	c.ExtractedEdges.Add(float64(kept))
}

// SimilarityFailed counts a skipped pair.
func (c *Collector) SimilarityFailed() {
	if c == nil {
		return
	}
	c.SimilarityFailures.Inc()
}

// ObserveOptimization records the outcome of an optimization run.
func (c *Collector) ObserveOptimization(removed, reweighted, added int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.OptimizationOps.WithLabelValues("removed").Add(float64(removed))
	c.OptimizationOps.WithLabelValues("reweighted").Add(float64(reweighted))
	c.OptimizationOps.WithLabelValues("added").Add(float64(added))
	c.OptimizationDuration.Observe(elapsed.Seconds())
}

// SetGraphMetrics publishes structural metrics as gauges.
func (c *Collector) SetGraphMetrics(m model.GraphMetrics) {
	if c == nil {
		return
	}
	c.GraphMetric.WithLabelValues("node_count").Set(float64(m.NodeCount))
	c.GraphMetric.WithLabelValues("edge_count").Set(float64(m.EdgeCount))
	c.GraphMetric.WithLabelValues("density").Set(m.Density)
	c.GraphMetric.WithLabelValues("average_degree").Set(m.AverageDegree)
	c.GraphMetric.WithLabelValues("average_clustering").Set(m.AverageClustering)
	c.GraphMetric.WithLabelValues("average_shortest_path").Set(m.AverageShortestPath)
	c.GraphMetric.WithLabelValues("diameter").Set(float64(m.Diameter))
	c.GraphMetric.WithLabelValues("strongly_connected_components").Set(float64(m.StronglyConnectedComponents))
}

// CacheLookup records a hit or miss for the named cache.
func (c *Collector) CacheLookup(cache string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheRequests.WithLabelValues(cache, result).Inc()
}
