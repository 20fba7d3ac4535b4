package model

import (
	"strings"

	apperrors "knowledge-organization/backend/pkg/errors"
)

// DefaultQualityScore is used when an ingestion record carries none.
const DefaultQualityScore = 0.5

// ContentMetadata is the structured part of an ingestion record that the
// extractor classifies on.
type ContentMetadata struct {
	Label        NodeLabel      `json:"label,omitempty"`
	Name         string         `json:"name,omitempty"`
	Level        int            `json:"level"`
	Scope        string         `json:"scope,omitempty"`
	ContentType  string         `json:"content_type,omitempty"`
	References   []string       `json:"references,omitempty"`
	QualityScore *float64       `json:"quality_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// ContentNode is an ingestion record: the input unit of a graph build.
type ContentNode struct {
	ID       string          `json:"id" validate:"required"`
	Content  string          `json:"content" validate:"required"`
	Vector   []float64       `json:"vector" validate:"required,min=1"`
	Metadata ContentMetadata `json:"metadata"`
}

// Quality returns the record's quality score or the default.
func (c ContentNode) Quality() float64 {
	if c.Metadata.QualityScore == nil {
		return DefaultQualityScore
	}
	return *c.Metadata.QualityScore
}

// SharesReference reports whether c and other cite a common reference.
func (c ContentNode) SharesReference(other ContentNode) bool {
	if len(c.Metadata.References) == 0 || len(other.Metadata.References) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(c.Metadata.References))
	for _, ref := range c.Metadata.References {
		if ref = strings.TrimSpace(ref); ref != "" {
			seen[ref] = struct{}{}
		}
	}
	for _, ref := range other.Metadata.References {
		if _, ok := seen[strings.TrimSpace(ref)]; ok {
			return true
		}
	}
	return false
}

// ToNode converts the record into a graph node owned by graphID.
func (c ContentNode) ToNode(graphID string) (*Node, error) {
	label := c.Metadata.Label
	if label == "" {
		label = LabelConcept
	}
	name := c.Metadata.Name
	if name == "" {
		name = c.ID
	}
	props := map[string]any{
		"level": c.Metadata.Level,
	}
	if c.Metadata.Scope != "" {
		props["scope"] = c.Metadata.Scope
	}
	if c.Metadata.ContentType != "" {
		props["content_type"] = c.Metadata.ContentType
	}
	if len(c.Metadata.References) > 0 {
		props["references"] = strings.Join(c.Metadata.References, ",")
	}
	n, err := NewNode(c.ID, label, name, c.Quality(), props)
	if err != nil {
		return nil, err
	}
	extra, err := NewAttributes(c.Metadata.Extra)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		n.Metadata.Extra = extra
	}
	n.GraphID = graphID
	n.Content = SanitizeText(c.Content)
	n.Vector = append([]float64(nil), c.Vector...)
	return n, nil
}

// Validate checks the record beyond struct tags: a usable label if given.
func (c ContentNode) Validate() error {
	if c.Metadata.Label != "" && !c.Metadata.Label.Valid() {
		return apperrors.NewValidation("metadata.label", "unknown label "+string(c.Metadata.Label))
	}
	return nil
}
