package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	apperrors "knowledge-organization/backend/pkg/errors"
)

const (
	// OriginExtractor marks edges produced by similarity extraction.
	OriginExtractor = "extractor"
	// OriginRebalance marks edges inserted by structure rebalancing.
	OriginRebalance = "rebalance"
)

// RelationshipMetadata records how an edge was derived.
type RelationshipMetadata struct {
	SimilarityScore float64    `json:"similarity_score"`
	ExtractedAt     time.Time  `json:"extraction_timestamp"`
	SourceType      string     `json:"source_type,omitempty"`
	TargetType      string     `json:"target_type,omitempty"`
	Origin          string     `json:"origin,omitempty"`
	Extra           Attributes `json:"extra,omitempty"`
}

// Relationship is a typed, weighted directed edge between two nodes. Edges
// reference nodes by id only.
type Relationship struct {
	ID        string               `json:"id"`
	GraphID   string               `json:"graph_id"`
	Type      RelationshipType     `json:"type"`
	SourceID  string               `json:"source_id"`
	TargetID  string               `json:"target_id"`
	Weight    float64              `json:"weight"`
	Metadata  RelationshipMetadata `json:"metadata"`
	Version   int64                `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewRelationship builds a version-1 relationship with a fresh id.
func NewRelationship(relType RelationshipType, sourceID, targetID string, weight float64, meta RelationshipMetadata) (*Relationship, error) {
	now := time.Now().UTC()
	if meta.ExtractedAt.IsZero() {
		meta.ExtractedAt = now
	}
	meta.SourceType = SanitizeText(meta.SourceType)
	meta.TargetType = SanitizeText(meta.TargetType)
	r := &Relationship{
		ID:        uuid.New().String(),
		Type:      relType,
		SourceID:  sourceID,
		TargetID:  targetID,
		Weight:    weight,
		Metadata:  meta,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the relationship invariants.
func (r *Relationship) Validate() error {
	if !r.Type.Valid() {
		return apperrors.NewValidation("relationship.type", fmt.Sprintf("unknown type %q", r.Type))
	}
	if r.SourceID == "" || r.TargetID == "" {
		return apperrors.NewValidation("relationship.endpoints", "source and target are required")
	}
	if r.SourceID == r.TargetID {
		return apperrors.NewValidation("relationship.endpoints", fmt.Sprintf("self-loop on %s", r.SourceID))
	}
	if math.IsNaN(r.Weight) || r.Weight < 0 || r.Weight > 1 {
		return apperrors.NewValidation("relationship.weight", fmt.Sprintf("must be within [0,1], got %v", r.Weight))
	}
	s := r.Metadata.SimilarityScore
	if math.IsNaN(s) || s < 0 || s > 1 {
		return apperrors.NewValidation("relationship.metadata.similarity_score", fmt.Sprintf("must be within [0,1], got %v", s))
	}
	if r.Metadata.ExtractedAt.IsZero() {
		return apperrors.NewValidation("relationship.metadata.extraction_timestamp", "is required")
	}
	return nil
}

// Endpoints returns the source and target ids.
func (r *Relationship) Endpoints() (string, string) {
	return r.SourceID, r.TargetID
}

// Touches reports whether the relationship is incident to nodeID.
func (r *Relationship) Touches(nodeID string) bool {
	return r.SourceID == nodeID || r.TargetID == nodeID
}

// Clone returns a deep copy of r.
func (r *Relationship) Clone() *Relationship {
	c := *r
	c.Metadata.Extra = r.Metadata.Extra.Clone()
	return &c
}

// WeightUpdate is a versioned weight change. Version is the version the
// caller read; the store applies the update only if it still matches.
type WeightUpdate struct {
	ID      string  `json:"id"`
	Weight  float64 `json:"weight"`
	Version int64   `json:"version"`
}
