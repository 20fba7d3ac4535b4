package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"knowledge-organization/backend/internal/constants"
	apperrors "knowledge-organization/backend/pkg/errors"
)

// DefaultSource stamps node and relationship metadata created by this service.
const DefaultSource = constants.ServiceName

// NodeMetadata carries provenance for a node.
type NodeMetadata struct {
	SchemaVersion int        `json:"version"`
	Source        string     `json:"source"`
	LastVerified  time.Time  `json:"last_verified"`
	Extra         Attributes `json:"extra,omitempty"`
}

// Node is a knowledge unit in a graph.
type Node struct {
	ID              string       `json:"id"`
	GraphID         string       `json:"graph_id"`
	Label           NodeLabel    `json:"label"`
	Name            string       `json:"name"`
	Content         string       `json:"content"`
	Vector          []float64    `json:"vector,omitempty"`
	Properties      Attributes   `json:"properties,omitempty"`
	ImportanceScore float64      `json:"importance_score"`
	Metadata        NodeMetadata `json:"metadata"`
	IsActive        bool         `json:"is_active"`
	Version         int64        `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// NewNode builds an active node with sanitized fields and default metadata.
func NewNode(id string, label NodeLabel, name string, importance float64, properties map[string]any) (*Node, error) {
	props, err := NewAttributes(properties)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	n := &Node{
		ID:              strings.TrimSpace(id),
		Label:           label,
		Name:            SanitizeText(name),
		Properties:      props,
		ImportanceScore: importance,
		Metadata: NodeMetadata{
			SchemaVersion: 1,
			Source:        DefaultSource,
			LastVerified:  now,
		},
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the node invariants.
func (n *Node) Validate() error {
	if n.ID == "" {
		return apperrors.NewValidation("node.id", "must not be empty")
	}
	if !n.Label.Valid() {
		return apperrors.NewValidation("node.label", fmt.Sprintf("unknown label %q", n.Label))
	}
	if math.IsNaN(n.ImportanceScore) || n.ImportanceScore < 0 || n.ImportanceScore > 1 {
		return apperrors.NewValidation("node.importance_score", fmt.Sprintf("must be within [0,1], got %v", n.ImportanceScore))
	}
	if len(n.Properties) > MaxAttributes {
		return apperrors.NewValidation("node.properties", "too many properties")
	}
	return nil
}

// SetProperty sanitizes and stores a property value, bumping UpdatedAt.
func (n *Node) SetProperty(key string, value any) error {
	attrs, err := NewAttributes(map[string]any{key: value})
	if err != nil {
		return err
	}
	if n.Properties == nil {
		n.Properties = make(Attributes)
	}
	for k, v := range attrs {
		n.Properties[k] = v
	}
	if len(n.Properties) > MaxAttributes {
		delete(n.Properties, key)
		return apperrors.NewValidation("node.properties", "too many properties")
	}
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate marks the node logically deleted.
func (n *Node) Deactivate() {
	n.IsActive = false
	n.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	c.Vector = append([]float64(nil), n.Vector...)
	c.Properties = n.Properties.Clone()
	c.Metadata.Extra = n.Metadata.Extra.Clone()
	return &c
}
