package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-organization/backend/internal/model"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")

	c.ObserveBuild("success", 2*time.Second)
	c.ObserveBuild("complexity_error", time.Second)
	c.ObserveExtraction(7)
	c.GraphDeleted()
	c.SimilarityFailed()
	c.ObserveOptimization(2, 5, 1, time.Millisecond)
	c.CacheLookup("metrics", true)
	c.CacheLookup("metrics", false)
	c.CacheLookup("metrics", false)
	c.SetGraphMetrics(model.GraphMetrics{NodeCount: 12, Density: 0.25})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Builds.WithLabelValues("success")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.ExtractedEdges))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Deletions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SimilarityFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.OptimizationOps.WithLabelValues("removed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheRequests.WithLabelValues("metrics", "miss")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.GraphMetric.WithLabelValues("node_count")))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.GraphMetric.WithLabelValues("density")))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBuild("success", time.Second)
		c.ObserveExtraction(1)
		c.GraphDeleted()
		c.SimilarityFailed()
		c.ObserveOptimization(1, 1, 1, time.Second)
		c.SetGraphMetrics(model.GraphMetrics{})
		c.CacheLookup("x", true)
	})
	assert.Nil(t, c.Registry())
}
