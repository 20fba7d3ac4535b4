// Package extractor turns content vectors into typed, weighted relationships.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"knowledge-organization/backend/internal/cache"
	"knowledge-organization/backend/internal/constants"
	"knowledge-organization/backend/internal/metrics"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/similarity"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// Config tunes extraction.
type Config struct {
	SimilarityThreshold     float64
	MaxRelationshipsPerNode int
	BatchSize               int
	CacheTTL                time.Duration
	CacheCapacity           int
}

// DefaultConfig returns the standard extraction settings.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:     constants.SimilarityThreshold,
		MaxRelationshipsPerNode: constants.MaxRelationshipsPerNode,
		BatchSize:               constants.ExtractionBatchSize,
		CacheTTL:                constants.RelationshipCacheTTL,
		CacheCapacity:           constants.RelationshipCacheCapacity,
	}
}

type pairKey struct {
	a, b string
}

func keyFor(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Extractor scores node pairs with a similarity service and classifies the
// similar ones into relationships. It owns a similarity cache keyed by node
// pair that lives until Close.
type Extractor struct {
	sim     similarity.Service
	cfg     Config
	scores  *cache.TTL[pairKey, float64]
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates an extractor. collector may be nil.
func New(sim similarity.Service, cfg Config, collector *metrics.Collector) *Extractor {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.MaxRelationshipsPerNode <= 0 {
		cfg.MaxRelationshipsPerNode = def.MaxRelationshipsPerNode
	}
	if cfg.BatchSize <= 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = def.CacheCapacity
	}
	return &Extractor{
		sim:     sim,
		cfg:     cfg,
		scores:  cache.NewTTL[pairKey, float64](cfg.CacheTTL, cfg.CacheCapacity, cfg.CacheTTL/4),
		metrics: collector,
		logger:  logger.Get(),
	}
}

// Close releases the similarity cache.
func (e *Extractor) Close() {
	e.scores.Close()
}

// Extract compares every pair of nodes within each batch of at most
// batchSize nodes and returns the kept relationships, strongest first.
// Cancelling ctx stops new batches from starting; the batch already running
// completes and the cancellation error is returned.
func (e *Extractor) Extract(ctx context.Context, nodes []model.ContentNode, batchSize int) ([]*model.Relationship, error) {
	if batchSize <= 1 {
		batchSize = e.cfg.BatchSize
	}

	var candidates []*model.Relationship
	for start := 0; start < len(nodes); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("relationship extraction", err)
		}
		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		found, err := e.extractBatch(context.WithoutCancel(ctx), nodes[start:end])
		if err != nil {
			e.logger.Error("Relationship extraction failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Error(err))
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	kept := e.Filter(candidates)
	e.metrics.ObserveExtraction(len(kept))
	e.logger.Info("Relationship extraction completed",
		zap.Int("total_nodes", len(nodes)),
		zap.Int("candidates", len(candidates)),
		zap.Int("relationships_found", len(kept)))
	return kept, nil
}

func (e *Extractor) extractBatch(ctx context.Context, batch []model.ContentNode) ([]*model.Relationship, error) {
	n := len(batch)
	if n < 2 {
		return nil, nil
	}
	type pair struct{ i, j int }
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	results := make([]*model.Relationship, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for k, p := range pairs {
		g.Go(func() error {
			a, b := batch[p.i], batch[p.j]
			score, err := e.score(gctx, a, b)
			if err != nil {
				if errors.Is(err, apperrors.ErrSimilarityUnavailable) {
					return err
				}
				if gctx.Err() != nil {
					return nil
				}
				e.metrics.SimilarityFailed()
				e.logger.Warn("Skipping node pair after similarity failure",
					zap.String("source_id", a.ID),
					zap.String("target_id", b.ID),
					zap.Error(err))
				return nil
			}
			rel, err := e.relate(a, b, score)
			if err != nil {
				e.logger.Warn("Discarding invalid relationship",
					zap.String("source_id", a.ID),
					zap.String("target_id", b.ID),
					zap.Error(err))
				return nil
			}
			results[k] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to extract batch: %w", err)
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Extractor) score(ctx context.Context, a, b model.ContentNode) (float64, error) {
	key := keyFor(a.ID, b.ID)
	if s, ok := e.scores.Get(key); ok {
		e.metrics.CacheLookup("similarity", true)
		return s, nil
	}
	e.metrics.CacheLookup("similarity", false)
	s, err := e.sim.Similarity(ctx, a.Vector, b.Vector)
	if err != nil {
		return 0, err
	}
	e.scores.Set(key, s)
	return s, nil
}

// relate classifies the pair and builds the relationship, or returns nil
// when the pair is not similar enough.
func (e *Extractor) relate(a, b model.ContentNode, score float64) (*model.Relationship, error) {
	if score < e.cfg.SimilarityThreshold {
		return nil, nil
	}
	relType, src, dst, ok := Classify(a, b, score, e.cfg.SimilarityThreshold)
	if !ok {
		return nil, nil
	}
	weight := Weight(relType, score, src.Quality(), dst.Quality())
	return model.NewRelationship(relType, src.ID, dst.ID, weight, model.RelationshipMetadata{
		SimilarityScore: score,
		ExtractedAt:     time.Now().UTC(),
		SourceType:      src.Metadata.ContentType,
		TargetType:      dst.Metadata.ContentType,
		Origin:          model.OriginExtractor,
	})
}

// Classify picks the relationship type for a similar pair, first match
// wins. Directional types are oriented from the lower level or broader
// scope node; the rest keep a→b.
func Classify(a, b model.ContentNode, score, threshold float64) (model.RelationshipType, model.ContentNode, model.ContentNode, bool) {
	if score > constants.PrerequisiteSimilarity {
		switch {
		case a.Metadata.Level < b.Metadata.Level:
			return model.RelPrerequisite, a, b, true
		case b.Metadata.Level < a.Metadata.Level:
			return model.RelPrerequisite, b, a, true
		}
	}
	if score > constants.ContainsSimilarity {
		switch {
		case scopeContains(a.Metadata.Scope, b.Metadata.Scope):
			return model.RelContains, a, b, true
		case scopeContains(b.Metadata.Scope, a.Metadata.Scope):
			return model.RelContains, b, a, true
		}
	}
	if score > constants.ExtendsSimilarity {
		ta, tb := strings.TrimSpace(a.Metadata.ContentType), strings.TrimSpace(b.Metadata.ContentType)
		if ta != "" && ta == tb {
			return model.RelExtends, a, b, true
		}
	}
	if a.SharesReference(b) {
		return model.RelReferences, a, b, true
	}
	if score >= threshold {
		return model.RelRelated, a, b, true
	}
	return "", a, b, false
}

// scopeContains reports whether outer is a non-empty prefix of inner.
func scopeContains(outer, inner string) bool {
	return outer != "" && strings.HasPrefix(inner, outer)
}

// Weight is base_weight(type) × similarity × mean quality, clamped to [0,1].
func Weight(relType model.RelationshipType, score, sourceQuality, targetQuality float64) float64 {
	w := relType.BaseWeight() * score * (sourceQuality + targetQuality) / 2
	return model.ClampWeight(w, 0, 1)
}

// Filter sorts by weight descending and keeps an edge only while neither
// endpoint has reached the per-node cap. Ties keep their input order.
func (e *Extractor) Filter(rels []*model.Relationship) []*model.Relationship {
	sorted := make([]*model.Relationship, 0, len(rels))
	for _, r := range rels {
		if r.Metadata.SimilarityScore >= e.cfg.SimilarityThreshold {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	degree := make(map[string]int)
	kept := make([]*model.Relationship, 0, len(sorted))
	for _, r := range sorted {
		if degree[r.SourceID] >= e.cfg.MaxRelationshipsPerNode || degree[r.TargetID] >= e.cfg.MaxRelationshipsPerNode {
			continue
		}
		degree[r.SourceID]++
		degree[r.TargetID]++
		kept = append(kept, r)
	}
	return kept
}
