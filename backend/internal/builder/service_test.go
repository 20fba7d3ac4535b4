package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-organization/backend/internal/metrics"
	apperrors "knowledge-organization/backend/pkg/errors"
)

type stubEmbedder struct {
	texts []string
	err   error
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, texts...)
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(100 + i), 1}
	}
	return out, nil
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *fixture) {
	t.Helper()
	f := newFixture(t, pairScores{def: 0.95}, Config{})
	ext := f.builder.extractor
	return NewService(f.store, ext, f.optimizer, Config{}, opts...), f
}

func TestService_BuildAndMaintain(t *testing.T) {
	collector := metrics.NewCollector("test")
	svc, _ := newTestService(t, WithCollector(collector))
	ctx := context.Background()

	res, err := svc.BuildGraph(ctx, BuildRequest{Name: "service", Nodes: connectedRecords(12)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.GraphID)
	assert.Equal(t, 12, res.NodeCount)
	assert.Equal(t, 66, res.RelationshipCount)
	assert.Equal(t, 66, res.Metrics.EdgeCount)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.Builds.WithLabelValues("success")))

	m, err := svc.OptimizeGraph(ctx, res.GraphID)
	require.NoError(t, err)
	assert.Equal(t, 12, m.NodeCount)

	g, err := svc.Graph(ctx, res.GraphID)
	require.NoError(t, err)
	assert.Len(t, g.Metadata.OptimizationHistory, 2)

	removed, err := svc.DeactivateNode(ctx, res.GraphID, "n00")
	require.NoError(t, err)
	assert.Len(t, removed, 11)

	m, err = svc.GraphMetrics(ctx, res.GraphID)
	require.NoError(t, err)
	assert.Equal(t, 11, m.NodeCount, "cached metrics are dropped after deactivation")
	assert.Equal(t, 55, m.EdgeCount)

	_, err = svc.GraphMetrics(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_BuildFailureIsCounted(t *testing.T) {
	collector := metrics.NewCollector("test")
	svc, _ := newTestService(t, WithCollector(collector))

	_, err := svc.BuildGraph(context.Background(), BuildRequest{Name: "tiny", Nodes: validRecords(1)})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.Builds.WithLabelValues("validation")))
}

func TestService_EmbedMissing(t *testing.T) {
	emb := &stubEmbedder{}
	svc, _ := newTestService(t, WithEmbedder(emb))

	nodes := connectedRecords(12)
	nodes[3].Vector = nil
	nodes[7].Vector = nil

	res, err := svc.BuildGraph(context.Background(), BuildRequest{Name: "embedded", Nodes: nodes, EmbedMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 12, res.NodeCount)
	assert.Equal(t, []string{"content 3", "content 7"}, emb.texts)
	assert.Nil(t, nodes[3].Vector, "caller's records are left alone")
}

func TestService_EmbedMissingFailures(t *testing.T) {
	nodes := validRecords(12)
	nodes[0].Vector = nil

	svc, _ := newTestService(t)
	_, err := svc.BuildGraph(context.Background(), BuildRequest{Name: "no embedder", Nodes: nodes, EmbedMissing: true})
	assert.True(t, apperrors.IsValidation(err))

	boom := errors.New("embedding endpoint down")
	svc, _ = newTestService(t, WithEmbedder(&stubEmbedder{err: boom}))
	_, err = svc.BuildGraph(context.Background(), BuildRequest{Name: "broken", Nodes: nodes, EmbedMissing: true})
	assert.ErrorIs(t, err, boom)

	// Without the flag the missing vector is a validation failure.
	_, err = svc.BuildGraph(context.Background(), BuildRequest{Name: "strict", Nodes: nodes})
	assert.True(t, apperrors.IsValidation(err))
}

func TestService_DeleteGraph(t *testing.T) {
	collector := metrics.NewCollector("test")
	svc, f := newTestService(t, WithCollector(collector))
	ctx := context.Background()

	res, err := svc.BuildGraph(ctx, BuildRequest{Name: "doomed", Nodes: connectedRecords(12)})
	require.NoError(t, err)
	_, err = svc.GraphMetrics(ctx, res.GraphID)
	require.NoError(t, err)

	nodes, rels, err := svc.DeleteGraph(ctx, res.GraphID)
	require.NoError(t, err)
	assert.Equal(t, 12, nodes)
	assert.Equal(t, 66, rels)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.Deletions))

	_, err = svc.Graph(ctx, res.GraphID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.GraphMetrics(ctx, res.GraphID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, f.store.purged, res.GraphID)

	_, _, err = svc.DeleteGraph(ctx, res.GraphID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.Deletions))
}

func TestService_DeactivateUnknownNode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.BuildGraph(ctx, BuildRequest{Name: "service", Nodes: connectedRecords(12)})
	require.NoError(t, err)

	_, err = svc.DeactivateNode(ctx, res.GraphID, "ghost")
	assert.True(t, apperrors.IsNotFound(err))
}
