package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"knowledge-organization/backend/internal/model"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// These tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("NEO4J_URI") == "" {
		t.Skip("NEO4J_URI not set")
	}

	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	repo := NewRepository(driver, os.Getenv("NEO4J_DATABASE"))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_GraphRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	g := seedGraph(t, repo, "a", "b", "c")
	defer repo.PurgeGraph(ctx, g.ID)

	ab := link(t, "a", "b", 0.8)
	bc := link(t, "b", "c", 0.6)
	if err := repo.UpsertRelationships(ctx, g.ID, []*model.Relationship{ab, bc}); err != nil {
		t.Fatalf("UpsertRelationships failed: %v", err)
	}

	loaded, err := repo.LoadGraph(ctx, g.ID)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if loaded.NodeCount() != 3 {
		t.Errorf("Expected 3 nodes, got %d", loaded.NodeCount())
	}
	if !loaded.Linked("a", "b") || !loaded.Linked("b", "c") {
		t.Error("Expected a→b and b→c to be linked")
	}
	r, ok := loaded.Relationship(ab.ID)
	if !ok || r.Metadata.SimilarityScore != 0.8 {
		t.Errorf("Relationship metadata not round-tripped: %+v", r)
	}

	if err := repo.SaveGraph(ctx, loaded); err != nil {
		t.Fatalf("SaveGraph failed: %v", err)
	}
	if loaded.Metadata.RelationshipCount != 2 {
		t.Errorf("Expected relationship count 2, got %d", loaded.Metadata.RelationshipCount)
	}
}

func TestRepository_UpdateRelationshipWeightsConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	g := seedGraph(t, repo, "a", "b")
	defer repo.PurgeGraph(ctx, g.ID)

	ab := link(t, "a", "b", 0.5)
	if err := repo.UpsertRelationships(ctx, g.ID, []*model.Relationship{ab}); err != nil {
		t.Fatalf("UpsertRelationships failed: %v", err)
	}
	if err := repo.UpdateRelationshipWeights(ctx, g.ID, []model.WeightUpdate{{ID: ab.ID, Weight: 0.9, Version: 1}}); err != nil {
		t.Fatalf("UpdateRelationshipWeights failed: %v", err)
	}
	err := repo.UpdateRelationshipWeights(ctx, g.ID, []model.WeightUpdate{{ID: ab.ID, Weight: 0.3, Version: 1}})
	if !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict, got %v", err)
	}
}

func TestRepository_DeactivateNode(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	g := seedGraph(t, repo, "a", "b")
	defer repo.PurgeGraph(ctx, g.ID)

	ab := link(t, "a", "b", 0.5)
	if err := repo.UpsertRelationships(ctx, g.ID, []*model.Relationship{ab}); err != nil {
		t.Fatalf("UpsertRelationships failed: %v", err)
	}
	removed, err := repo.DeactivateNode(ctx, g.ID, "a")
	if err != nil {
		t.Fatalf("DeactivateNode failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != ab.ID {
		t.Errorf("Expected [%s] removed, got %v", ab.ID, removed)
	}

	_, err = repo.DeactivateNode(ctx, g.ID, "missing")
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRepository_LoadGraph_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.LoadGraph(context.Background(), "non-existent-graph-"+time.Now().Format("20060102150405"))
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found error, got %T: %v", err, err)
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	return NewDriver(context.Background(), DriverConfig{
		URI:      os.Getenv("NEO4J_URI"),
		User:     envOr("NEO4J_USER", "neo4j"),
		Password: envOr("NEO4J_PASSWORD", "password"),
		Timeout:  10 * time.Second,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
