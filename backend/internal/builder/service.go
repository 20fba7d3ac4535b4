package builder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/metrics"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/optimizer"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Embedder produces vectors for texts, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// MetricsOptimizer is an Optimizer whose metrics cache can be dropped
// after an outside mutation.
type MetricsOptimizer interface {
	Optimizer
	InvalidateMetrics(graphID string)
}

// BuildResult summarizes a finished build.
type BuildResult struct {
	GraphID           string             `json:"graph_id"`
	NodeCount         int                `json:"node_count"`
	RelationshipCount int                `json:"relationship_count"`
	Metrics           model.GraphMetrics `json:"metrics"`
}

// Service is the entry point for building and maintaining graphs.
type Service struct {
	builder   *GraphBuilder
	store     Store
	optimizer MetricsOptimizer
	embedder  Embedder
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEmbedder enables filling missing vectors on request.
func WithEmbedder(e Embedder) ServiceOption {
	return func(s *Service) { s.embedder = e }
}

// WithCollector records build outcomes.
func WithCollector(c *metrics.Collector) ServiceOption {
	return func(s *Service) { s.metrics = c }
}

// NewService wires a builder over store, extractor and optimizer.
func NewService(store Store, extractor Extractor, opt MetricsOptimizer, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		builder:   NewGraphBuilder(store, extractor, opt, cfg),
		store:     store,
		optimizer: opt,
		logger:    logger.Get(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BuildGraph builds and persists a graph from req.
func (s *Service) BuildGraph(ctx context.Context, req BuildRequest) (result *BuildResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveBuild(buildStatus(err), time.Since(start))
	}()

	if req.EmbedMissing {
		nodes, err := s.embedMissing(ctx, req.Nodes)
		if err != nil {
			return nil, err
		}
		req.Nodes = nodes
	}

	g, err := s.builder.BuildWith(ctx, req)
	if err != nil {
		return nil, err
	}
	result = &BuildResult{
		GraphID:           g.ID,
		NodeCount:         g.NodeCount(),
		RelationshipCount: g.RelationshipCount(),
	}
	if g.Metadata.BuildInfo != nil {
		result.Metrics = g.Metadata.BuildInfo.FinalMetrics
	}
	return result, nil
}

func buildStatus(err error) string {
	if err == nil {
		return "success"
	}
	if t := apperrors.TypeOf(err); t != "" {
		return string(t)
	}
	return "error"
}

// OptimizeGraph re-optimizes a stored graph with the default settings.
func (s *Service) OptimizeGraph(ctx context.Context, graphID string) (*model.GraphMetrics, error) {
	return s.OptimizeGraphWith(ctx, graphID, optimizer.Config{})
}

// OptimizeGraphWith re-optimizes a stored graph with override applied.
func (s *Service) OptimizeGraphWith(ctx context.Context, graphID string, override optimizer.Config) (*model.GraphMetrics, error) {
	g, err := s.store.LoadGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	if _, err := s.optimizer.OptimizeWith(ctx, g, override); err != nil {
		return nil, err
	}
	hist := g.Metadata.OptimizationHistory
	if len(hist) == 0 {
		return s.metricsFor(ctx, g)
	}
	m := hist[len(hist)-1].After
	return &m, nil
}

// GraphMetrics returns the structural metrics of a stored graph.
func (s *Service) GraphMetrics(ctx context.Context, graphID string) (*model.GraphMetrics, error) {
	g, err := s.store.LoadGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return s.metricsFor(ctx, g)
}

func (s *Service) metricsFor(ctx context.Context, g *model.Graph) (*model.GraphMetrics, error) {
	m, err := s.optimizer.CalculateMetrics(ctx, g)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Graph loads a stored graph.
func (s *Service) Graph(ctx context.Context, graphID string) (*model.Graph, error) {
	return s.store.LoadGraph(ctx, graphID)
}

// DeactivateNode logically deletes a node and its relationships, returning
// the removed relationship ids.
func (s *Service) DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error) {
	removed, err := s.store.DeactivateNode(ctx, graphID, nodeID)
	if err != nil {
		return nil, err
	}
	s.optimizer.InvalidateMetrics(graphID)
	s.logger.Info("Node deactivated",
		zap.String("graph_id", graphID),
		zap.String("node_id", nodeID),
		zap.Int("relationships_removed", len(removed)))
	return removed, nil
}

// DeleteGraph removes a graph with all its nodes and relationships and
// reports how many of each were stored. Unknown ids yield a NotFoundError.
func (s *Service) DeleteGraph(ctx context.Context, graphID string) (nodes, relationships int, err error) {
	nodes, relationships, err = s.store.Count(ctx, graphID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.store.PurgeGraph(ctx, graphID); err != nil {
		return 0, 0, fmt.Errorf("failed to delete graph: %w", err)
	}
	s.optimizer.InvalidateMetrics(graphID)
	s.metrics.GraphDeleted()
	s.logger.Info("Graph deleted",
		zap.String("graph_id", graphID),
		zap.Int("nodes", nodes),
		zap.Int("relationships", relationships))
	return nodes, relationships, nil
}

// embedMissing fills the vectors of records that have content but no
// vector. The input slice is not modified.
func (s *Service) embedMissing(ctx context.Context, nodes []model.ContentNode) ([]model.ContentNode, error) {
	var idx []int
	var texts []string
	for i, n := range nodes {
		if len(n.Vector) == 0 && strings.TrimSpace(n.Content) != "" {
			idx = append(idx, i)
			texts = append(texts, n.Content)
		}
	}
	if len(idx) == 0 {
		return nodes, nil
	}
	if s.embedder == nil {
		return nil, apperrors.NewValidation("embed_missing", "no embedding service configured")
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed nodes: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, apperrors.NewCollaborator("embedding", false,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	out := make([]model.ContentNode, len(nodes))
	copy(out, nodes)
	for k, i := range idx {
		out[i].Vector = vectors[k]
	}
	s.logger.Debug("Embedded nodes without vectors", zap.Int("count", len(idx)))
	return out, nil
}
