package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"knowledge-organization/backend/internal/analysis"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// Graph is an arena of nodes and relationships keyed by id. Relationships
// reference nodes by id; traversal goes through a Digraph view built on
// demand.
type Graph struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      GraphType     `json:"type"`
	Metadata  GraphMetadata `json:"metadata"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	mu     sync.RWMutex
	nodes  map[string]*Node
	rels   map[string]*Relationship
	byPair map[[2]string]string
}

// NewGraph creates an empty graph shell.
func NewGraph(name string, graphType GraphType, attrs map[string]any) (*Graph, error) {
	name = SanitizeText(name)
	if name == "" {
		return nil, apperrors.NewValidation("name", "must not be empty")
	}
	if graphType == "" {
		graphType = GraphKnowledge
	}
	if !graphType.Valid() {
		return nil, apperrors.NewValidation("type", fmt.Sprintf("unknown graph type %q", graphType))
	}
	attributes, err := NewAttributes(attrs)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	g := &Graph{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      graphType,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: GraphMetadata{
			LastModified: now,
			Attributes:   attributes,
		},
	}
	g.init()
	return g, nil
}

func (g *Graph) init() {
	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	if g.rels == nil {
		g.rels = make(map[string]*Relationship)
	}
	if g.byPair == nil {
		g.byPair = make(map[[2]string]string)
	}
}

// AddNode inserts n. Duplicate ids are rejected.
func (g *Graph) AddNode(n *Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.init()
	if _, exists := g.nodes[n.ID]; exists {
		return apperrors.NewValidation("node.id", "duplicate node id "+n.ID)
	}
	n.GraphID = g.ID
	g.nodes[n.ID] = n
	g.touch()
	return nil
}

// AddRelationship inserts r. Both endpoints must be present and no other
// relationship may already connect source to target.
func (g *Graph) AddRelationship(r *Relationship) error {
	if err := r.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.init()
	if _, ok := g.nodes[r.SourceID]; !ok {
		return apperrors.NewValidation("relationship.source_id", "unknown node "+r.SourceID)
	}
	if _, ok := g.nodes[r.TargetID]; !ok {
		return apperrors.NewValidation("relationship.target_id", "unknown node "+r.TargetID)
	}
	if _, exists := g.rels[r.ID]; exists {
		return apperrors.NewValidation("relationship.id", "duplicate relationship id "+r.ID)
	}
	key := [2]string{r.SourceID, r.TargetID}
	if existing, ok := g.byPair[key]; ok {
		return apperrors.NewValidation("relationship", fmt.Sprintf("%s→%s already linked by %s", r.SourceID, r.TargetID, existing))
	}
	r.GraphID = g.ID
	g.rels[r.ID] = r
	g.byPair[key] = r.ID
	g.touch()
	return nil
}

// RemoveRelationship deletes the relationship with id, reporting whether it existed.
func (g *Graph) RemoveRelationship(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rels[id]
	if !ok {
		return false
	}
	delete(g.rels, id)
	delete(g.byPair, [2]string{r.SourceID, r.TargetID})
	g.touch()
	return true
}

// DeactivateNode marks the node inactive and removes every incident
// relationship, returning the removed relationship ids.
func (g *Graph) DeactivateNode(id string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, apperrors.NewNotFound("node", id)
	}
	var removed []string
	for rid, r := range g.rels {
		if r.Touches(id) {
			removed = append(removed, rid)
			delete(g.rels, rid)
			delete(g.byPair, [2]string{r.SourceID, r.TargetID})
		}
	}
	sort.Strings(removed)
	n.Deactivate()
	g.touch()
	return removed, nil
}

// Node returns the node with id.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Relationship returns the relationship with id.
func (g *Graph) Relationship(id string) (*Relationship, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rels[id]
	return r, ok
}

// Linked reports whether a relationship source→target exists.
func (g *Graph) Linked(source, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byPair[[2]string{source, target}]
	return ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveNodeIDs returns the ids of active nodes, sorted.
func (g *Graph) ActiveNodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id, n := range g.nodes {
		if n.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Relationships returns all relationships ordered by id.
func (g *Graph) Relationships() []*Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Relationship, 0, len(g.rels))
	for _, r := range g.rels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeCount returns the number of nodes, active or not.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// RelationshipCount returns the number of relationships.
func (g *Graph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rels)
}

// Digraph builds an adjacency view over active nodes, one edge per stored
// relationship in its stored direction.
func (g *Graph) Digraph() *analysis.Digraph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id, n := range g.nodes {
		if n.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	d := analysis.New(ids)
	rels := make([]*Relationship, 0, len(g.rels))
	for _, r := range g.rels {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
	for _, r := range rels {
		d.AddEdge(r.SourceID, r.TargetID, r.Weight)
	}
	return d
}

// Validate checks referential integrity and, for prerequisite graphs,
// acyclicity.
func (g *Graph) Validate() error {
	if !g.Type.Valid() {
		return apperrors.NewValidation("type", fmt.Sprintf("unknown graph type %q", g.Type))
	}
	g.mu.RLock()
	for _, r := range g.rels {
		if _, ok := g.nodes[r.SourceID]; !ok {
			g.mu.RUnlock()
			return apperrors.NewValidation("relationship.source_id", fmt.Sprintf("%s references missing node %s", r.ID, r.SourceID))
		}
		if _, ok := g.nodes[r.TargetID]; !ok {
			g.mu.RUnlock()
			return apperrors.NewValidation("relationship.target_id", fmt.Sprintf("%s references missing node %s", r.ID, r.TargetID))
		}
	}
	g.mu.RUnlock()

	if g.Type == GraphPrerequisite {
		if cycle := g.Digraph().FindCycle(); cycle != nil {
			return apperrors.NewValidation("relationships", "prerequisite cycle "+strings.Join(cycle, " -> "))
		}
	}
	return nil
}

// SyncCounts refreshes the node and relationship counts in metadata.
func (g *Graph) SyncCounts() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Metadata.NodeCount = len(g.nodes)
	g.Metadata.RelationshipCount = len(g.rels)
}

// Restore rebuilds the arena from persisted entities, skipping relationship
// validation against the pair index so stored data loads as-is.
func (g *Graph) Restore(nodes []*Node, rels []*Relationship) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Node, len(nodes))
	g.rels = make(map[string]*Relationship, len(rels))
	g.byPair = make(map[[2]string]string, len(rels))
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	for _, r := range rels {
		g.rels[r.ID] = r
		g.byPair[[2]string{r.SourceID, r.TargetID}] = r.ID
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := &Graph{
		ID:        g.ID,
		Name:      g.Name,
		Type:      g.Type,
		Metadata:  g.Metadata,
		Version:   g.Version,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	c.Metadata.Attributes = g.Metadata.Attributes.Clone()
	c.Metadata.OptimizationHistory = append([]OptimizationRecord(nil), g.Metadata.OptimizationHistory...)
	if g.Metadata.BuildInfo != nil {
		bi := *g.Metadata.BuildInfo
		c.Metadata.BuildInfo = &bi
	}
	c.init()
	for id, n := range g.nodes {
		c.nodes[id] = n.Clone()
	}
	for id, r := range g.rels {
		c.rels[id] = r.Clone()
	}
	for k, v := range g.byPair {
		c.byPair[k] = v
	}
	return c
}

func (g *Graph) touch() {
	now := time.Now().UTC()
	g.UpdatedAt = now
	g.Metadata.LastModified = now
}
