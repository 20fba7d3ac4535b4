package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/services"
	"knowledge-organization/backend/pkg/config"
	apperrors "knowledge-organization/backend/pkg/errors"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:                   "development",
		StoreBackend:          "memory",
		SimilarityMetric:      "cosine",
		SimilarityDim:         4096,
		ExtractionBatchSize:   100,
		RelationshipTTL:       time.Minute,
		RelationshipCap:       1000,
		MinConnectionsPerNode: 10,
		MaxParallelBatches:    5,
		Optimization:          config.DefaultOptimization(),
	}
	sm, err := services.NewServiceManager(context.Background(), zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(sm.StopAll)
	return newRouter(sm.Service, sm, sm.Collector.Registry(), zap.NewNop())
}

// nodesJSON returns n records whose vectors are all within cosine 0.87 of
// each other. The last record's scope contains the first, which closes a
// cycle through the related edges.
func nodesJSON(n int) []model.ContentNode {
	nodes := make([]model.ContentNode, n)
	for i := range nodes {
		nodes[i] = model.ContentNode{
			ID:      fmt.Sprintf("concept-%02d", i),
			Content: fmt.Sprintf("<p>Concept %d</p>", i),
			Vector:  []float64{1, 0.05 * float64(i)},
		}
	}
	nodes[0].Metadata.Scope = "algebra.vectors"
	nodes[n-1].Metadata.Scope = "algebra"
	return nodes
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
	components := response["components"].(map[string]interface{})
	assert.Equal(t, "memory", components["store"])
	assert.Equal(t, "closed", components["optimizer_breaker"])
}

func TestGraphLifecycle(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, "POST", "/api/graphs", map[string]any{
		"name":     "Linear algebra",
		"nodes":    nodesJSON(12),
		"metadata": map[string]any{"domain": "math"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var built struct {
		GraphID           string             `json:"graph_id"`
		NodeCount         int                `json:"node_count"`
		RelationshipCount int                `json:"relationship_count"`
		Metrics           model.GraphMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &built))
	assert.Equal(t, 12, built.NodeCount)
	assert.Equal(t, 66, built.RelationshipCount)
	assert.Equal(t, 1, built.Metrics.StronglyConnectedComponents)

	w = do(t, router, "GET", "/api/graphs/"+built.GraphID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Concept 3")
	assert.NotContains(t, w.Body.String(), "<p>")

	w = do(t, router, "POST", "/api/graphs/"+built.GraphID+"/optimize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, "POST", "/api/graphs/"+built.GraphID+"/optimize", map[string]any{"min_weight": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "DELETE", "/api/graphs/"+built.GraphID+"/nodes/concept-00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var removed struct {
		Removed []string `json:"removed_relationships"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	assert.Len(t, removed.Removed, 11)

	w = do(t, router, "GET", "/api/graphs/"+built.GraphID+"/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var metrics struct {
		Metrics model.GraphMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, 11, metrics.Metrics.NodeCount)

	w = do(t, router, "DELETE", "/api/graphs/"+built.GraphID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var deleted struct {
		Status        string `json:"status"`
		Nodes         int    `json:"nodes_deleted"`
		Relationships int    `json:"relationships_deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deleted))
	assert.Equal(t, "deleted", deleted.Status)
	assert.Equal(t, 12, deleted.Nodes)
	assert.Equal(t, 55, deleted.Relationships)

	assert.Equal(t, http.StatusNotFound, do(t, router, "GET", "/api/graphs/"+built.GraphID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, "DELETE", "/api/graphs/"+built.GraphID, nil).Code)

	w = do(t, router, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `graph_builds_total{status="success"} 1`))
	assert.True(t, strings.Contains(w.Body.String(), `graph_deletions_total 1`))
}

func TestBuildGraph_Errors(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, "POST", "/api/graphs", map[string]any{"name": "one", "nodes": nodesJSON(1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"validation"`)

	w = do(t, router, "POST", "/api/graphs", map[string]any{"name": "sparse", "nodes": nodesJSON(5)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"complexity"`)

	req, _ := http.NewRequest("POST", "/api/graphs", bytes.NewBufferString(`{"nodes": 3}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownGraph(t *testing.T) {
	router := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, router, "GET", "/api/graphs/nope/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, "POST", "/api/graphs/nope/optimize", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, "DELETE", "/api/graphs/nope/nodes/x", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, "DELETE", "/api/graphs/nope", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewValidation("nodes", "bad"), http.StatusBadRequest},
		{apperrors.NewComplexity("a", "sparse"), http.StatusUnprocessableEntity},
		{apperrors.NewConflict("relationship", "r1"), http.StatusConflict},
		{apperrors.NewNotFound("graph", "g"), http.StatusNotFound},
		{fmt.Errorf("failed to optimize: %w", apperrors.ErrOptimizerUnavailable), http.StatusServiceUnavailable},
		{apperrors.NewContextCancelled("build", context.Canceled), http.StatusRequestTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
