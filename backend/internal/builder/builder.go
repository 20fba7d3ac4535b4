// Package builder assembles a knowledge graph from ingestion records and
// exposes the build and maintenance operations of the service.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"knowledge-organization/backend/internal/constants"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/optimizer"
	"knowledge-organization/backend/internal/resilience"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Store is the persistence the builder writes a new graph through.
type Store interface {
	CreateGraph(ctx context.Context, g *model.Graph) error
	SaveGraph(ctx context.Context, g *model.Graph) error
	LoadGraph(ctx context.Context, graphID string) (*model.Graph, error)
	PurgeGraph(ctx context.Context, graphID string) error
	UpsertNodes(ctx context.Context, graphID string, nodes []*model.Node) error
	UpsertRelationships(ctx context.Context, graphID string, rels []*model.Relationship) error
	DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error)
	Count(ctx context.Context, graphID string) (nodes int, relationships int, err error)
}

// Extractor derives relationships from ingestion records.
type Extractor interface {
	Extract(ctx context.Context, nodes []model.ContentNode, batchSize int) ([]*model.Relationship, error)
}

// Optimizer improves a persisted graph and measures it.
type Optimizer interface {
	OptimizeWith(ctx context.Context, g *model.Graph, override optimizer.Config) (*model.Graph, error)
	CalculateMetrics(ctx context.Context, g *model.Graph) (model.GraphMetrics, error)
}

// Config bounds a build. Zero fields take the defaults.
type Config struct {
	MinNodes              int
	MaxNodes              int
	MinConnectionsPerNode int
	MaxParallelBatches    int
	InsertBatchSize       int
	ExtractionBatchSize   int
	ConflictRetries       int
}

// DefaultConfig returns the standard build bounds.
func DefaultConfig() Config {
	return Config{
		MinNodes:              constants.MinNodes,
		MaxNodes:              constants.MaxNodes,
		MinConnectionsPerNode: constants.MinConnectionsPerNode,
		MaxParallelBatches:    constants.MaxParallelBatches,
		InsertBatchSize:       constants.InsertBatchSize,
		ExtractionBatchSize:   constants.ExtractionBatchSize,
		ConflictRetries:       constants.ConflictRetries,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinNodes <= 0 {
		c.MinNodes = def.MinNodes
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = def.MaxNodes
	}
	if c.MinConnectionsPerNode <= 0 {
		c.MinConnectionsPerNode = def.MinConnectionsPerNode
	}
	if c.MaxParallelBatches <= 0 {
		c.MaxParallelBatches = def.MaxParallelBatches
	}
	if c.InsertBatchSize <= 0 {
		c.InsertBatchSize = def.InsertBatchSize
	}
	if c.ExtractionBatchSize <= 1 {
		c.ExtractionBatchSize = def.ExtractionBatchSize
	}
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = def.ConflictRetries
	}
	return c
}

// BuildRequest describes one graph build.
type BuildRequest struct {
	Name         string              `json:"name"`
	Type         model.GraphType     `json:"type,omitempty"`
	Nodes        []model.ContentNode `json:"nodes"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	Optimization optimizer.Config    `json:"optimization"`
	// EmbedMissing asks the service to embed records that carry no vector.
	EmbedMissing bool `json:"embed_missing,omitempty"`
}

// GraphBuilder validates ingestion records, persists them as a graph,
// links them, optimizes the result and checks its final shape.
type GraphBuilder struct {
	store     Store
	extractor Extractor
	optimizer Optimizer
	cfg       Config
	logger    *zap.Logger
}

// NewGraphBuilder creates a builder.
func NewGraphBuilder(store Store, extractor Extractor, opt Optimizer, cfg Config) *GraphBuilder {
	return &GraphBuilder{
		store:     store,
		extractor: extractor,
		optimizer: opt,
		cfg:       cfg.withDefaults(),
		logger:    logger.Get(),
	}
}

// Build creates a knowledge graph named name from nodes.
func (b *GraphBuilder) Build(ctx context.Context, nodes []model.ContentNode, name string, metadata map[string]any) (*model.Graph, error) {
	return b.BuildWith(ctx, BuildRequest{Name: name, Nodes: nodes, Metadata: metadata})
}

// BuildWith runs a full build. Input problems fail before anything is
// written. Once the graph shell exists, any later failure, including a
// final graph that is too sparse or not strongly connected, purges it.
func (b *GraphBuilder) BuildWith(ctx context.Context, req BuildRequest) (*model.Graph, error) {
	start := time.Now()
	if err := ValidateNodes(req.Nodes, b.cfg.MinNodes, b.cfg.MaxNodes); err != nil {
		return nil, err
	}

	g, err := model.NewGraph(req.Name, req.Type, req.Metadata)
	if err != nil {
		return nil, err
	}
	nodes := make([]*model.Node, 0, len(req.Nodes))
	for _, rec := range req.Nodes {
		n, err := rec.ToNode(g.ID)
		if err != nil {
			return nil, err
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	b.logger.Info("Starting graph build",
		zap.String("graph_id", g.ID),
		zap.String("name", g.Name),
		zap.Int("nodes", len(nodes)))

	if err := b.store.CreateGraph(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	if err := b.assemble(ctx, g, nodes, req, start); err != nil {
		b.rollback(ctx, g.ID, err)
		return nil, err
	}

	b.logger.Info("Graph build completed",
		zap.String("graph_id", g.ID),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("relationships", g.RelationshipCount()),
		zap.Duration("duration", time.Since(start)))
	return g, nil
}

func (b *GraphBuilder) assemble(ctx context.Context, g *model.Graph, nodes []*model.Node, req BuildRequest, start time.Time) error {
	err := b.inBatches(ctx, "insert nodes", len(nodes), func(ctx context.Context, lo, hi int) error {
		return b.store.UpsertNodes(ctx, g.ID, nodes[lo:hi])
	})
	if err != nil {
		return fmt.Errorf("failed to insert nodes: %w", err)
	}

	rels, err := b.extractor.Extract(ctx, req.Nodes, b.cfg.ExtractionBatchSize)
	if err != nil {
		return fmt.Errorf("failed to extract relationships: %w", err)
	}
	for _, r := range rels {
		if err := g.AddRelationship(r); err != nil {
			return err
		}
	}
	if err := g.Validate(); err != nil {
		return err
	}

	err = b.inBatches(ctx, "insert relationships", len(rels), func(ctx context.Context, lo, hi int) error {
		return b.store.UpsertRelationships(ctx, g.ID, rels[lo:hi])
	})
	if err != nil {
		return fmt.Errorf("failed to insert relationships: %w", err)
	}

	if _, err := b.optimizer.OptimizeWith(ctx, g, req.Optimization); err != nil {
		return fmt.Errorf("failed to optimize graph: %w", err)
	}
	if err := CheckComplexity(g, b.cfg.MinConnectionsPerNode); err != nil {
		return err
	}

	info := &model.BuildInfo{
		StartedAt:         start.UTC(),
		CompletedAt:       time.Now().UTC(),
		DurationSeconds:   time.Since(start).Seconds(),
		RelationshipCount: len(rels),
	}
	if hist := g.Metadata.OptimizationHistory; len(hist) > 0 {
		last := hist[len(hist)-1]
		info.InitialMetrics = last.Before
		info.FinalMetrics = last.After
	} else {
		m, err := b.optimizer.CalculateMetrics(ctx, g)
		if err != nil {
			return err
		}
		info.InitialMetrics, info.FinalMetrics = m, m
	}
	g.Metadata.BuildInfo = info
	return b.saveGraph(context.WithoutCancel(ctx), g)
}

// inBatches runs fn over [0,total) in InsertBatchSize chunks with at most
// MaxParallelBatches in flight. Cancelling ctx stops new chunks; chunks
// already started run to completion and their failure is joined to the
// cancellation error.
func (b *GraphBuilder) inBatches(ctx context.Context, op string, total int, fn func(ctx context.Context, lo, hi int) error) error {
	eg, egCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	eg.SetLimit(b.cfg.MaxParallelBatches)
	for lo := 0; lo < total; lo += b.cfg.InsertBatchSize {
		if err := ctx.Err(); err != nil {
			cancelled := apperrors.NewContextCancelled(op, err)
			if batchErr := eg.Wait(); batchErr != nil {
				b.logger.Warn("Batch failed while build was cancelled",
					zap.String("operation", op),
					zap.Error(batchErr))
				return errors.Join(cancelled, batchErr)
			}
			return cancelled
		}
		if egCtx.Err() != nil {
			break
		}
		hi := min(lo+b.cfg.InsertBatchSize, total)
		eg.Go(func() error {
			return fn(egCtx, lo, hi)
		})
	}
	return eg.Wait()
}

// CheckComplexity requires every active node to have at least minDegree
// relationships and every node to reach every other along stored edge
// directions.
func CheckComplexity(g *model.Graph, minDegree int) error {
	directed := g.Digraph()
	for _, id := range g.ActiveNodeIDs() {
		if d := directed.Degree(id); d < minDegree {
			return apperrors.NewComplexity(id, fmt.Sprintf("degree %d below minimum %d", d, minDegree))
		}
	}
	if !directed.IsStronglyConnected() {
		return apperrors.NewComplexity("", fmt.Sprintf("graph is not strongly connected (%d components)", len(directed.StronglyConnectedComponents())))
	}
	return nil
}

func (b *GraphBuilder) saveGraph(ctx context.Context, g *model.Graph) error {
	return resilience.RetryOnConflict(ctx, b.cfg.ConflictRetries, func(ctx context.Context) error {
		err := b.store.SaveGraph(ctx, g)
		if !apperrors.IsConflict(err) {
			return err
		}
		fresh, loadErr := b.store.LoadGraph(ctx, g.ID)
		if loadErr != nil {
			return loadErr
		}
		g.Version = fresh.Version
		return err
	})
}

func (b *GraphBuilder) rollback(ctx context.Context, graphID string, cause error) {
	b.logger.Warn("Graph build failed, purging partial graph",
		zap.String("graph_id", graphID),
		zap.Error(cause))
	if err := b.store.PurgeGraph(context.WithoutCancel(ctx), graphID); err != nil {
		b.logger.Error("Failed to purge partial graph",
			zap.String("graph_id", graphID),
			zap.Error(err))
	}
}
