package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/model"
	"knowledge-organization/backend/internal/optimizer"
	apperrors "knowledge-organization/backend/pkg/errors"
)

type fakeOptimizer struct {
	calls     []string
	overrides []optimizer.Config
	fail      map[string]error
}

func (f *fakeOptimizer) OptimizeGraphWith(_ context.Context, graphID string, override optimizer.Config) (*model.GraphMetrics, error) {
	f.calls = append(f.calls, graphID)
	f.overrides = append(f.overrides, override)
	if err := f.fail[graphID]; err != nil {
		return nil, err
	}
	return &model.GraphMetrics{NodeCount: 3}, nil
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseIDs(" a,b,,a ", []string{"c", "b"}))
	assert.Empty(t, parseIDs("", nil))
}

func TestOptimizeAll_ContinuesPastFailures(t *testing.T) {
	missing := apperrors.NewNotFound("graph", "b")
	f := &fakeOptimizer{fail: map[string]error{"b": missing}}
	override := optimizer.Config{BatchSize: 50}

	err := optimizeAll(context.Background(), f, []string{"a", "b", "c"}, override, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, missing))
	assert.Equal(t, []string{"a", "b", "c"}, f.calls)
	assert.Equal(t, 50, f.overrides[2].BatchSize)
}

func TestOptimizeAll_StopsWhenCancelled(t *testing.T) {
	f := &fakeOptimizer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := optimizeAll(ctx, f, []string{"a", "b"}, optimizer.Config{}, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}
