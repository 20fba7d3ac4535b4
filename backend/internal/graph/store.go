// Package graph persists knowledge graphs. Repository talks to Neo4j;
// MemoryStore keeps everything in process with the same versioning rules.
package graph

import (
	"context"

	"knowledge-organization/backend/internal/model"
)

// Store is the persistence contract shared by Repository and MemoryStore.
//
// Versioned writes (SaveGraph, UpdateNode, UpdateRelationshipWeights) only
// apply when the caller's version matches the stored one, and bump it on
// success. A mismatch yields a ConflictError and changes nothing.
type Store interface {
	CreateGraph(ctx context.Context, g *model.Graph) error
	SaveGraph(ctx context.Context, g *model.Graph) error
	LoadGraph(ctx context.Context, graphID string) (*model.Graph, error)
	PurgeGraph(ctx context.Context, graphID string) error

	UpsertNodes(ctx context.Context, graphID string, nodes []*model.Node) error
	UpdateNode(ctx context.Context, graphID string, n *model.Node) error
	DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error)

	UpsertRelationships(ctx context.Context, graphID string, rels []*model.Relationship) error
	DeleteRelationships(ctx context.Context, graphID string, ids []string) (int, error)
	UpdateRelationshipWeights(ctx context.Context, graphID string, updates []model.WeightUpdate) error
	RelationshipsByID(ctx context.Context, graphID string, ids []string) ([]*model.Relationship, error)
	RelationshipsForNodes(ctx context.Context, graphID string, nodeIDs []string) ([]*model.Relationship, error)

	Count(ctx context.Context, graphID string) (nodes int, relationships int, err error)
	Close() error
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
