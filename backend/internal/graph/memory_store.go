package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/model"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

type memGraph struct {
	shell  *model.Graph
	nodes  map[string]*model.Node
	rels   map[string]*model.Relationship
	byPair map[[2]string]string
}

// MemoryStore is an in-process Store used by the memory backend and tests.
// Everything handed in or out is copied.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*memGraph
	logger *zap.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string]*memGraph),
		logger: logger.Get(),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) graph(graphID string) (*memGraph, error) {
	mg, ok := s.graphs[graphID]
	if !ok {
		return nil, apperrors.NewNotFound("graph", graphID)
	}
	return mg, nil
}

func (s *MemoryStore) CreateGraph(ctx context.Context, g *model.Graph) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("create graph", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[g.ID]; exists {
		return apperrors.NewConflict("graph", g.ID)
	}
	s.graphs[g.ID] = &memGraph{
		shell:  shellOf(g),
		nodes:  make(map[string]*model.Node),
		rels:   make(map[string]*model.Relationship),
		byPair: make(map[[2]string]string),
	}
	s.logger.Debug("Graph created", zap.String("graph_id", g.ID), zap.String("name", g.Name))
	return nil
}

func (s *MemoryStore) SaveGraph(ctx context.Context, g *model.Graph) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("save graph", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(g.ID)
	if err != nil {
		return err
	}
	if mg.shell.Version != g.Version {
		return apperrors.NewConflict("graph", g.ID)
	}
	g.Version++
	g.UpdatedAt = time.Now().UTC()
	g.Metadata.NodeCount = len(mg.nodes)
	g.Metadata.RelationshipCount = len(mg.rels)
	mg.shell = shellOf(g)
	return nil
}

func (s *MemoryStore) LoadGraph(ctx context.Context, graphID string) (*model.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("load graph", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return nil, err
	}
	nodes := make([]*model.Node, 0, len(mg.nodes))
	for _, n := range mg.nodes {
		nodes = append(nodes, n.Clone())
	}
	rels := make([]*model.Relationship, 0, len(mg.rels))
	for _, r := range mg.rels {
		rels = append(rels, r.Clone())
	}
	g := shellOf(mg.shell)
	g.Restore(nodes, rels)
	return g, nil
}

func (s *MemoryStore) PurgeGraph(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, graphID)
	return nil
}

func (s *MemoryStore) UpsertNodes(ctx context.Context, graphID string, nodes []*model.Node) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("upsert nodes", err)
	}
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		c := n.Clone()
		c.GraphID = graphID
		mg.nodes[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) UpdateNode(ctx context.Context, graphID string, n *model.Node) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("update node", err)
	}
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return err
	}
	stored, ok := mg.nodes[n.ID]
	if !ok {
		return apperrors.NewNotFound("node", n.ID)
	}
	if stored.Version != n.Version {
		return apperrors.NewConflict("node", n.ID)
	}
	n.Version++
	n.UpdatedAt = time.Now().UTC()
	c := n.Clone()
	c.GraphID = graphID
	mg.nodes[n.ID] = c
	return nil
}

func (s *MemoryStore) DeactivateNode(ctx context.Context, graphID, nodeID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("deactivate node", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return nil, err
	}
	n, ok := mg.nodes[nodeID]
	if !ok {
		return nil, apperrors.NewNotFound("node", nodeID)
	}
	var removed []string
	for id, r := range mg.rels {
		if r.Touches(nodeID) {
			removed = append(removed, id)
			delete(mg.rels, id)
			delete(mg.byPair, [2]string{r.SourceID, r.TargetID})
		}
	}
	sort.Strings(removed)
	n.Deactivate()
	n.Version++
	return removed, nil
}

func (s *MemoryStore) UpsertRelationships(ctx context.Context, graphID string, rels []*model.Relationship) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("upsert relationships", err)
	}
	for _, r := range rels {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return err
	}
	for _, r := range rels {
		if _, ok := mg.nodes[r.SourceID]; !ok {
			return apperrors.NewValidation("relationship.source_id", "unknown node "+r.SourceID)
		}
		if _, ok := mg.nodes[r.TargetID]; !ok {
			return apperrors.NewValidation("relationship.target_id", "unknown node "+r.TargetID)
		}
		if existing, ok := mg.byPair[[2]string{r.SourceID, r.TargetID}]; ok && existing != r.ID {
			return apperrors.NewValidation("relationship", fmt.Sprintf("%s→%s already linked by %s", r.SourceID, r.TargetID, existing))
		}
	}
	for _, r := range rels {
		c := r.Clone()
		c.GraphID = graphID
		mg.rels[c.ID] = c
		mg.byPair[[2]string{c.SourceID, c.TargetID}] = c.ID
	}
	return nil
}

func (s *MemoryStore) DeleteRelationships(ctx context.Context, graphID string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewContextCancelled("delete relationships", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		r, ok := mg.rels[id]
		if !ok {
			continue
		}
		delete(mg.rels, id)
		delete(mg.byPair, [2]string{r.SourceID, r.TargetID})
		deleted++
	}
	return deleted, nil
}

func (s *MemoryStore) UpdateRelationshipWeights(ctx context.Context, graphID string, updates []model.WeightUpdate) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("update relationship weights", err)
	}
	if err := validateWeights(updates); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return err
	}
	var stale []string
	for _, u := range updates {
		r, ok := mg.rels[u.ID]
		if !ok || r.Version != u.Version {
			stale = append(stale, u.ID)
		}
	}
	if len(stale) > 0 {
		return apperrors.NewConflict("relationship", stale...)
	}
	now := time.Now().UTC()
	for _, u := range updates {
		r := mg.rels[u.ID]
		r.Weight = u.Weight
		r.Version++
		r.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) RelationshipsByID(ctx context.Context, graphID string, ids []string) ([]*model.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("load relationships", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Relationship, 0, len(ids))
	for _, id := range ids {
		if r, ok := mg.rels[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) RelationshipsForNodes(ctx context.Context, graphID string, nodeIDs []string) ([]*model.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("load relationships", err)
	}
	want := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return nil, err
	}
	var out []*model.Relationship
	for _, r := range mg.rels {
		_, src := want[r.SourceID]
		_, dst := want[r.TargetID]
		if src || dst {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, graphID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mg, err := s.graph(graphID)
	if err != nil {
		return 0, 0, err
	}
	return len(mg.nodes), len(mg.rels), nil
}

// shellOf copies the graph header without its nodes or relationships.
func shellOf(g *model.Graph) *model.Graph {
	c := &model.Graph{
		ID:        g.ID,
		Name:      g.Name,
		Type:      g.Type,
		Metadata:  g.Metadata,
		Version:   g.Version,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	c.Metadata.Attributes = g.Metadata.Attributes.Clone()
	c.Metadata.OptimizationHistory = append([]model.OptimizationRecord(nil), g.Metadata.OptimizationHistory...)
	if g.Metadata.BuildInfo != nil {
		bi := *g.Metadata.BuildInfo
		c.Metadata.BuildInfo = &bi
	}
	c.Restore(nil, nil)
	return c
}

func validateWeights(updates []model.WeightUpdate) error {
	for _, u := range updates {
		if u.Weight < 0 || u.Weight > 1 || u.Weight != u.Weight {
			return apperrors.NewValidation("relationship.weight", fmt.Sprintf("%s: must be within [0,1], got %v", u.ID, u.Weight))
		}
	}
	return nil
}
