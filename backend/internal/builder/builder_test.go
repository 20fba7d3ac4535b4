package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-organization/backend/internal/cache"
	"knowledge-organization/backend/internal/extractor"
	"knowledge-organization/backend/internal/graph"
	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/optimizer"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// pairScores scores two vectors by their first components.
type pairScores struct {
	scores map[[2]float64]float64
	def    float64
}

func (p pairScores) Similarity(_ context.Context, a, b []float64) (float64, error) {
	x, y := a[0], b[0]
	if x > y {
		x, y = y, x
	}
	if s, ok := p.scores[[2]float64{x, y}]; ok {
		return s, nil
	}
	return p.def, nil
}

// recordingStore remembers which graphs were created and purged.
type recordingStore struct {
	*graph.MemoryStore
	mu      sync.Mutex
	created []string
	purged  []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: graph.NewMemoryStore()}
}

func (s *recordingStore) CreateGraph(ctx context.Context, g *model.Graph) error {
	s.mu.Lock()
	s.created = append(s.created, g.ID)
	s.mu.Unlock()
	return s.MemoryStore.CreateGraph(ctx, g)
}

func (s *recordingStore) PurgeGraph(ctx context.Context, graphID string) error {
	s.mu.Lock()
	s.purged = append(s.purged, graphID)
	s.mu.Unlock()
	return s.MemoryStore.PurgeGraph(ctx, graphID)
}

func record(i int) model.ContentNode {
	return model.ContentNode{
		ID:      fmt.Sprintf("n%02d", i),
		Content: fmt.Sprintf("content %d", i),
		Vector:  []float64{float64(i), 1},
	}
}

type fixture struct {
	store     *recordingStore
	optimizer *optimizer.Optimizer
	builder   *GraphBuilder
}

func newFixture(t *testing.T, sim pairScores, cfg Config) *fixture {
	t.Helper()
	store := newRecordingStore()
	ext := extractor.New(sim, extractor.Config{}, nil)
	t.Cleanup(ext.Close)
	metricsCache := cache.NewMemoryMetrics(time.Minute)
	t.Cleanup(func() { _ = metricsCache.Close() })
	opt := optimizer.New(store, metricsCache, optimizer.Config{}, nil)
	return &fixture{
		store:     store,
		optimizer: opt,
		builder:   NewGraphBuilder(store, ext, opt, cfg),
	}
}

func TestBuild_DenseGraph(t *testing.T) {
	f := newFixture(t, pairScores{def: 0.95}, Config{InsertBatchSize: 4})
	ctx := context.Background()

	g, err := f.builder.Build(ctx, connectedRecords(12), "dense", map[string]any{"domain": "algebra"})
	require.NoError(t, err)
	assert.Equal(t, 12, g.NodeCount())
	assert.Equal(t, 66, g.RelationshipCount())

	types := map[model.RelationshipType]int{}
	for _, r := range g.Relationships() {
		types[r.Type]++
		assert.GreaterOrEqual(t, r.Weight, 0.1)
		assert.LessOrEqual(t, r.Weight, 1.0)
	}
	assert.Equal(t, map[model.RelationshipType]int{model.RelRelated: 65, model.RelContains: 1}, types)
	assert.True(t, g.Digraph().HasEdge("n11", "n00"))

	require.NotNil(t, g.Metadata.BuildInfo)
	info := g.Metadata.BuildInfo
	assert.Equal(t, 66, info.RelationshipCount)
	assert.Equal(t, 12, info.FinalMetrics.NodeCount)
	assert.Equal(t, 1, info.FinalMetrics.StronglyConnectedComponents)
	assert.False(t, info.CompletedAt.Before(info.StartedAt))

	stored, err := f.store.LoadGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.NodeCount())
	assert.Equal(t, 66, stored.RelationshipCount())
	assert.Equal(t, g.Version, stored.Version)
	require.NotNil(t, stored.Metadata.BuildInfo)
	require.Len(t, stored.Metadata.OptimizationHistory, 1)
	domain, _ := stored.Metadata.Attributes.String("domain")
	assert.Equal(t, "algebra", domain)
	assert.Empty(t, f.store.purged)
}

func TestBuild_AcyclicGraphFailsComplexity(t *testing.T) {
	// Every pair is related from the earlier record to the later one, so
	// degrees are fine but nothing leads back to n00.
	f := newFixture(t, pairScores{def: 0.95}, Config{})
	ctx := context.Background()

	_, err := f.builder.Build(ctx, validRecords(12), "one way", nil)
	var cerr *apperrors.ErrComplexity
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, cerr.NodeID)
	assert.Contains(t, cerr.Error(), "12 components")

	require.Len(t, f.store.created, 1)
	assert.Equal(t, f.store.created, f.store.purged)
}

func TestBuild_RejectsInvalidInputBeforePersisting(t *testing.T) {
	f := newFixture(t, pairScores{def: 0.95}, Config{})

	_, err := f.builder.Build(context.Background(), validRecords(1), "lonely", nil)
	assert.True(t, apperrors.IsValidation(err))

	dup := validRecords(3)
	dup[2].ID = dup[0].ID
	_, err = f.builder.Build(context.Background(), dup, "dupes", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.builder.Build(context.Background(), validRecords(3), "  ", nil)
	assert.True(t, apperrors.IsValidation(err))

	assert.Empty(t, f.store.created)
}

func TestBuild_SparseGraphFailsComplexityAndRollsBack(t *testing.T) {
	f := newFixture(t, pairScores{def: 0.95}, Config{})
	ctx := context.Background()

	_, err := f.builder.Build(ctx, validRecords(5), "sparse", nil)
	var cerr *apperrors.ErrComplexity
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.NodeID)

	require.Len(t, f.store.created, 1)
	assert.Equal(t, f.store.created, f.store.purged)
	_, err = f.store.LoadGraph(ctx, f.store.created[0])
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBuild_DisconnectedGraphFailsComplexity(t *testing.T) {
	// Two cliques of four with nothing similar across them.
	scores := map[[2]float64]float64{}
	for i := 0; i < 8; i++ {
		for j := i + 1; j < 8; j++ {
			if (i < 4) != (j < 4) {
				scores[[2]float64{float64(i), float64(j)}] = 0.1
			}
		}
	}
	f := newFixture(t, pairScores{scores: scores, def: 0.95}, Config{MinConnectionsPerNode: 1})

	_, err := f.builder.Build(context.Background(), validRecords(8), "islands", nil)
	var cerr *apperrors.ErrComplexity
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, cerr.NodeID)
	assert.Equal(t, f.store.created, f.store.purged)
}

func TestBuild_PrerequisiteCycleIsValidationError(t *testing.T) {
	// a contains-edge b→a, a related-edge a→c and a prerequisite c→b.
	sim := pairScores{scores: map[[2]float64]float64{
		{0, 1}: 0.9,
		{0, 2}: 0.75,
		{1, 2}: 0.82,
	}}
	f := newFixture(t, sim, Config{MinConnectionsPerNode: 1})

	nodes := validRecords(3)
	nodes[0].Metadata = model.ContentMetadata{Scope: "x.y", Level: 1}
	nodes[1].Metadata = model.ContentMetadata{Scope: "x", Level: 1}
	nodes[2].Metadata = model.ContentMetadata{Level: 0}

	_, err := f.builder.BuildWith(context.Background(), BuildRequest{
		Name:  "cyclic",
		Type:  model.GraphPrerequisite,
		Nodes: nodes,
	})
	assert.True(t, apperrors.IsValidation(err), "got %v", err)
	require.Len(t, f.store.created, 1)
	assert.Equal(t, f.store.created, f.store.purged)
}

func TestBuild_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, pairScores{def: 0.95}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.builder.Build(ctx, connectedRecords(12), "cancelled", nil)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeContext), "got %v", err)
}

// cancellingStore cancels the build and fails the first node batch.
type cancellingStore struct {
	*recordingStore
	cancel context.CancelFunc
	err    error
	once   sync.Once
}

func (s *cancellingStore) UpsertNodes(ctx context.Context, graphID string, nodes []*model.Node) error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.err
	})
	if err != nil {
		return err
	}
	return s.recordingStore.UpsertNodes(ctx, graphID, nodes)
}

func TestBuild_CancelledKeepsInFlightBatchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	diskFull := errors.New("disk full")
	store := &cancellingStore{recordingStore: newRecordingStore(), cancel: cancel, err: diskFull}

	ext := extractor.New(pairScores{def: 0.95}, extractor.Config{}, nil)
	t.Cleanup(ext.Close)
	opt := optimizer.New(store, nil, optimizer.Config{}, nil)
	b := NewGraphBuilder(store, ext, opt, Config{InsertBatchSize: 1, MaxParallelBatches: 1})

	_, err := b.Build(ctx, connectedRecords(12), "interrupted", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeContext), "got %v", err)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, store.created, store.purged)
}

func TestCheckComplexity(t *testing.T) {
	g, err := model.NewGraph("ring", model.GraphKnowledge, nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		n, err := model.NewNode(id, model.LabelConcept, id, 0.5, nil)
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}} {
		r, err := model.NewRelationship(model.RelPrerequisite, e[0], e[1], 0.5, model.RelationshipMetadata{SimilarityScore: 0.9})
		require.NoError(t, err)
		require.NoError(t, g.AddRelationship(r))
	}

	assert.True(t, apperrors.IsComplexity(CheckComplexity(g, 1)), "a→b→c has no way back")

	r, err := model.NewRelationship(model.RelPrerequisite, "c", "a", 0.5, model.RelationshipMetadata{SimilarityScore: 0.9})
	require.NoError(t, err)
	require.NoError(t, g.AddRelationship(r))
	assert.NoError(t, CheckComplexity(g, 2))

	err = CheckComplexity(g, 3)
	var cerr *apperrors.ErrComplexity
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.NodeID)
}
