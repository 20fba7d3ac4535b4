// Package optimizer improves a persisted knowledge graph: it drops direct
// edges implied by stronger paths, re-weights edges by node importance,
// shortcuts poorly clustered hubs, and reports structural metrics.
package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/analysis"
	"knowledge-organization/backend/internal/metrics"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/resilience"
	"knowledge-organization/backend/pkg/config"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Config tunes the optimizer passes.
type Config = config.OptimizationSettings

// Store is the slice of graph persistence the optimizer writes through.
type Store interface {
	LoadGraph(ctx context.Context, graphID string) (*model.Graph, error)
	SaveGraph(ctx context.Context, g *model.Graph) error
	UpsertRelationships(ctx context.Context, graphID string, rels []*model.Relationship) error
	DeleteRelationships(ctx context.Context, graphID string, ids []string) (int, error)
	UpdateRelationshipWeights(ctx context.Context, graphID string, updates []model.WeightUpdate) error
	RelationshipsByID(ctx context.Context, graphID string, ids []string) ([]*model.Relationship, error)
}

// MetricsCache holds recently computed metrics per graph id.
type MetricsCache interface {
	Get(ctx context.Context, graphID string) (model.GraphMetrics, bool, error)
	Set(ctx context.Context, graphID string, m model.GraphMetrics) error
	Invalidate(ctx context.Context, graphID string) error
}

// Optimizer runs the optimization passes against a store guarded by a
// circuit breaker.
type Optimizer struct {
	store   Store
	cache   MetricsCache
	cfg     Config
	breaker *resilience.Breaker
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates an optimizer. cache and collector may be nil.
func New(store Store, cache MetricsCache, cfg Config, collector *metrics.Collector) *Optimizer {
	cfg = config.DefaultOptimization().Merge(cfg)
	return &Optimizer{
		store: store,
		cache: cache,
		cfg:   cfg,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:        "graph-optimizer",
			Threshold:   cfg.BreakerThreshold,
			Timeout:     cfg.BreakerTimeout,
			MaxRequests: 1,
			Unavailable: apperrors.ErrOptimizerUnavailable,
		}),
		metrics: collector,
		logger:  logger.Get(),
	}
}

// Config returns the optimizer's base settings.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// BreakerState reports the store breaker state.
func (o *Optimizer) BreakerState() string {
	return o.breaker.State()
}

// Optimize runs every pass with the base settings.
func (o *Optimizer) Optimize(ctx context.Context, g *model.Graph) (*model.Graph, error) {
	return o.OptimizeWith(ctx, g, Config{})
}

// OptimizeWith runs the passes with override's non-zero fields applied on
// top of the base settings. g is mutated in place and returned.
//
// Cancelling ctx stops new batches from starting; the running batch
// finishes. Batches already committed stay committed when a later pass
// fails.
func (o *Optimizer) OptimizeWith(ctx context.Context, g *model.Graph, override Config) (_ *model.Graph, err error) {
	cfg := o.cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewValidation("optimization", err.Error())
	}
	start := time.Now()
	o.logger.Info("Starting graph optimization",
		zap.String("graph_id", g.ID),
		zap.Int("relationships", g.RelationshipCount()))

	before, err := o.CalculateMetrics(ctx, g)
	if err != nil {
		return nil, err
	}

	run := &pass{o: o, g: g, cfg: cfg, view: g.Digraph()}
	defer func() {
		if err != nil {
			o.invalidate(g.ID)
		}
	}()

	ids := relationshipIDs(g)
	for begin := 0; begin < len(ids); begin += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("graph optimization", err)
		}
		end := begin + cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batchCtx := context.WithoutCancel(ctx)
		kept, err := run.removeRedundant(batchCtx, ids[begin:end])
		if err != nil {
			return nil, o.passFailed(g, "remove_redundant", err)
		}
		if err := run.reweight(batchCtx, kept); err != nil {
			return nil, o.passFailed(g, "optimize_weights", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("graph optimization", err)
	}
	if err := run.rebalance(context.WithoutCancel(ctx)); err != nil {
		return nil, o.passFailed(g, "rebalance_structure", err)
	}

	o.invalidate(g.ID)
	after, err := o.CalculateMetrics(ctx, g)
	if err != nil {
		return nil, err
	}

	g.Metadata.AppendOptimization(model.OptimizationRecord{
		StartedAt:   start.UTC(),
		CompletedAt: time.Now().UTC(),
		Removed:     run.removed,
		Reweighted:  run.reweighted,
		Added:       run.added,
		Before:      before,
		After:       after,
	})
	if err := o.saveGraph(context.WithoutCancel(ctx), g, cfg.ConflictRetries); err != nil {
		return nil, o.passFailed(g, "save_metadata", err)
	}

	elapsed := time.Since(start)
	o.metrics.ObserveOptimization(run.removed, run.reweighted, run.added, elapsed)
	o.logger.Info("Graph optimization completed successfully",
		zap.String("graph_id", g.ID),
		zap.Int("removed", run.removed),
		zap.Int("reweighted", run.reweighted),
		zap.Int("added", run.added),
		zap.Duration("duration", elapsed))
	return g, nil
}

// CalculateMetrics returns g's structural metrics, from cache when fresh.
func (o *Optimizer) CalculateMetrics(ctx context.Context, g *model.Graph) (model.GraphMetrics, error) {
	if o.cache != nil {
		m, ok, err := o.cache.Get(ctx, g.ID)
		if err != nil {
			o.logger.Warn("Metrics cache read failed", zap.String("graph_id", g.ID), zap.Error(err))
		}
		o.metrics.CacheLookup("metrics", ok)
		if ok {
			return m, nil
		}
	}

	m := Measure(g, o.cfg.PathSampleSources)
	if o.cache != nil {
		if err := o.cache.Set(ctx, g.ID, m); err != nil {
			o.logger.Warn("Metrics cache write failed", zap.String("graph_id", g.ID), zap.Error(err))
		}
	}
	o.metrics.SetGraphMetrics(m)
	return m, nil
}

// Measure computes metrics over stored edge directions without touching
// any cache.
func Measure(g *model.Graph, pathSources int) model.GraphMetrics {
	directed := g.Digraph()
	// Fixed seed so sampled path statistics are repeatable.
	stats := directed.ShortestPathStats(pathSources, rand.New(rand.NewSource(1)))
	return model.GraphMetrics{
		NodeCount:                   directed.Len(),
		EdgeCount:                   directed.EdgeCount(),
		Density:                     directed.Density(),
		AverageDegree:               directed.AverageDegree(),
		AverageClustering:           directed.AverageClustering(),
		AverageShortestPath:         stats.AverageLength,
		Diameter:                    stats.Diameter,
		StronglyConnectedComponents: len(directed.StronglyConnectedComponents()),
		CalculatedAt:                time.Now().UTC(),
	}
}

// InvalidateMetrics drops any cached metrics for graphID. Callers that
// mutate a graph outside the optimizer use it.
func (o *Optimizer) InvalidateMetrics(graphID string) {
	o.invalidate(graphID)
}

func (o *Optimizer) invalidate(graphID string) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Invalidate(context.Background(), graphID); err != nil {
		o.logger.Warn("Metrics cache invalidation failed", zap.String("graph_id", graphID), zap.Error(err))
	}
}

func (o *Optimizer) passFailed(g *model.Graph, pass string, err error) error {
	o.logger.Error("Graph optimization failed",
		zap.String("graph_id", g.ID),
		zap.String("pass", pass),
		zap.Error(err))
	return fmt.Errorf("failed to %s: %w", pass, err)
}

// saveGraph persists g's header, refreshing the version on conflict.
func (o *Optimizer) saveGraph(ctx context.Context, g *model.Graph, attempts int) error {
	return resilience.RetryOnConflict(ctx, attempts, func(ctx context.Context) error {
		err := o.breaker.Do(func() error { return o.store.SaveGraph(ctx, g) })
		if !apperrors.IsConflict(err) {
			return err
		}
		fresh, loadErr := resilience.Execute(o.breaker, func() (*model.Graph, error) {
			return o.store.LoadGraph(ctx, g.ID)
		})
		if loadErr != nil {
			return loadErr
		}
		g.Version = fresh.Version
		return err
	})
}

func relationshipIDs(g *model.Graph) []string {
	rels := g.Relationships()
	ids := make([]string, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	return ids
}

// pass carries the working view through one optimization run.
type pass struct {
	o    *Optimizer
	g    *model.Graph
	cfg  Config
	view *analysis.Digraph

	removed    int
	reweighted int
	added      int
}

// removeRedundant drops each direct edge in the batch for which a
// different simple path has a larger weight product, and returns the
// relationships that survive. Edges are judged one at a time against the
// current view, so two edges cannot justify each other's removal.
func (p *pass) removeRedundant(ctx context.Context, ids []string) ([]*model.Relationship, error) {
	limits := analysis.PathSearch{MaxHops: p.cfg.MaxPathLength, Budget: p.cfg.PathBudget}
	var redundant []string
	var kept []*model.Relationship
	for _, id := range ids {
		r, ok := p.g.Relationship(id)
		if !ok {
			continue
		}
		if _, ok := p.view.Weight(r.SourceID, r.TargetID); !ok {
			kept = append(kept, r)
			continue
		}
		if path, found := p.view.StrongestAlternatePath(r.SourceID, r.TargetID, r.Weight, limits); found {
			p.o.logger.Debug("Redundant relationship",
				zap.String("relationship_id", r.ID),
				zap.Float64("weight", r.Weight),
				zap.Strings("path", path.Nodes),
				zap.Float64("path_product", path.Product))
			p.view.RemoveEdge(r.SourceID, r.TargetID)
			redundant = append(redundant, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	if len(redundant) == 0 {
		return kept, nil
	}

	if _, err := resilience.Execute(p.o.breaker, func() (int, error) {
		return p.o.store.DeleteRelationships(ctx, p.g.ID, redundant)
	}); err != nil {
		return nil, err
	}
	for _, id := range redundant {
		p.g.RemoveRelationship(id)
	}
	p.removed += len(redundant)
	return kept, nil
}

// reweight scales each relationship by the mean PageRank of its endpoints
// within the batch subgraph, clamped to [MinWeight, MaxWeight], and writes
// the whole batch in one versioned update.
func (p *pass) reweight(ctx context.Context, rels []*model.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	ids := make([]string, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}

	var applied []*model.Relationship
	var updates []model.WeightUpdate
	err := resilience.RetryOnConflict(ctx, p.cfg.ConflictRetries, func(ctx context.Context) error {
		current := rels
		if updates != nil {
			// Re-read after a version conflict.
			fresh, err := resilience.Execute(p.o.breaker, func() ([]*model.Relationship, error) {
				return p.o.store.RelationshipsByID(ctx, p.g.ID, ids)
			})
			if err != nil {
				return err
			}
			current = fresh
		}
		applied = current
		updates = p.weightUpdates(current)
		return p.o.breaker.Do(func() error {
			return p.o.store.UpdateRelationshipWeights(ctx, p.g.ID, updates)
		})
	})
	if err != nil {
		return err
	}

	for i, u := range updates {
		r, ok := p.g.Relationship(u.ID)
		if !ok {
			continue
		}
		r.Weight = u.Weight
		r.Version = u.Version + 1
		r.UpdatedAt = time.Now().UTC()
		p.view.SetWeight(applied[i].SourceID, applied[i].TargetID, u.Weight)
	}
	p.reweighted += len(updates)
	return nil
}

func (p *pass) weightUpdates(rels []*model.Relationship) []model.WeightUpdate {
	ids := make([]string, 0, 2*len(rels))
	for _, r := range rels {
		ids = append(ids, r.SourceID, r.TargetID)
	}
	sub := analysis.New(ids)
	for _, r := range rels {
		sub.AddEdge(r.SourceID, r.TargetID, r.Weight)
	}
	rank := sub.PageRank(analysis.PageRankOptions{
		Damping:    p.cfg.PageRankDamping,
		Iterations: p.cfg.PageRankIters,
	})

	updates := make([]model.WeightUpdate, len(rels))
	for i, r := range rels {
		importance := (rank[r.SourceID] + rank[r.TargetID]) / 2
		updates[i] = model.WeightUpdate{
			ID:      r.ID,
			Weight:  model.ClampWeight(importance*r.Weight, p.cfg.MinWeight, p.cfg.MaxWeight),
			Version: r.Version,
		}
	}
	return updates
}

// rebalance adds pred→succ IS_RELATED shortcuts around every node whose
// clustering coefficient is below MinClustering, when both hops are
// heavier than MinWeight.
func (p *pass) rebalance(ctx context.Context) error {
	clustering := p.view.ClusteringAll()
	var created []*model.Relationship
	for _, node := range p.g.ActiveNodeIDs() {
		if clustering[node] >= p.cfg.MinClustering {
			continue
		}
		for _, pred := range p.view.Predecessors(node) {
			in, _ := p.view.Weight(pred, node)
			for _, succ := range p.view.Successors(node) {
				if pred == succ || p.view.HasEdge(pred, succ) {
					continue
				}
				out, _ := p.view.Weight(node, succ)
				w := in
				if out < w {
					w = out
				}
				if w <= p.cfg.MinWeight {
					continue
				}
				rel, err := model.NewRelationship(model.RelRelated, pred, succ, w, model.RelationshipMetadata{
					SimilarityScore: w,
					Origin:          model.OriginRebalance,
				})
				if err != nil {
					return err
				}
				p.view.AddEdge(pred, succ, w)
				created = append(created, rel)
			}
		}
	}

	for begin := 0; begin < len(created); begin += p.cfg.BatchSize {
		end := begin + p.cfg.BatchSize
		if end > len(created) {
			end = len(created)
		}
		batch := created[begin:end]
		if err := p.o.breaker.Do(func() error {
			return p.o.store.UpsertRelationships(ctx, p.g.ID, batch)
		}); err != nil {
			return err
		}
		for _, rel := range batch {
			if err := p.g.AddRelationship(rel); err != nil {
				return err
			}
		}
		p.added += len(batch)
	}
	return nil
}
