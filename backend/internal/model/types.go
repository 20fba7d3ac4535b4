// Package model defines the knowledge graph entities: nodes, typed weighted
// relationships, and the graph arena that owns them.
package model

// NodeLabel classifies a knowledge node.
type NodeLabel string

const (
	LabelConcept      NodeLabel = "CONCEPT"
	LabelTopic        NodeLabel = "TOPIC"
	LabelSubtopic     NodeLabel = "SUBTOPIC"
	LabelPrerequisite NodeLabel = "PREREQUISITE"
	LabelReference    NodeLabel = "REFERENCE"
)

// Valid reports whether l is one of the known labels.
func (l NodeLabel) Valid() bool {
	switch l {
	case LabelConcept, LabelTopic, LabelSubtopic, LabelPrerequisite, LabelReference:
		return true
	}
	return false
}

// RelationshipType classifies an edge.
type RelationshipType string

const (
	RelPrerequisite RelationshipType = "IS_PREREQUISITE"
	RelRelated      RelationshipType = "IS_RELATED"
	RelContains     RelationshipType = "CONTAINS"
	RelReferences   RelationshipType = "REFERENCES"
	RelExtends      RelationshipType = "EXTENDS"
)

// RelationshipTypes lists every relationship type.
var RelationshipTypes = []RelationshipType{RelPrerequisite, RelRelated, RelContains, RelReferences, RelExtends}

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelPrerequisite, RelRelated, RelContains, RelReferences, RelExtends:
		return true
	}
	return false
}

// BaseWeight is the per-type multiplier applied during extraction.
func (t RelationshipType) BaseWeight() float64 {
	switch t {
	case RelPrerequisite:
		return 1.0
	case RelContains:
		return 0.9
	case RelExtends:
		return 0.8
	case RelRelated:
		return 0.7
	case RelReferences:
		return 0.6
	}
	return 0
}

// GraphType classifies a graph.
type GraphType string

const (
	GraphKnowledge    GraphType = "KNOWLEDGE_GRAPH"
	GraphTopic        GraphType = "TOPIC_GRAPH"
	GraphPrerequisite GraphType = "PREREQUISITE_GRAPH"
	GraphSemantic     GraphType = "SEMANTIC_GRAPH"
)

// Valid reports whether t is one of the known graph types.
func (t GraphType) Valid() bool {
	switch t {
	case GraphKnowledge, GraphTopic, GraphPrerequisite, GraphSemantic:
		return true
	}
	return false
}

// ClampWeight bounds w to [lo, hi].
func ClampWeight(w, lo, hi float64) float64 {
	if w < lo {
		return lo
	}
	if w > hi {
		return hi
	}
	return w
}
