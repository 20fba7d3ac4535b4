package constants

import "time"

// Extraction constants
const (
	// SimilarityThreshold is the minimum similarity for any relationship
	SimilarityThreshold = 0.7
	// PrerequisiteSimilarity must be exceeded for IS_PREREQUISITE
	PrerequisiteSimilarity = 0.8
	// ContainsSimilarity must be exceeded for CONTAINS
	ContainsSimilarity = 0.85
	// ExtendsSimilarity must be exceeded for EXTENDS
	ExtendsSimilarity = 0.9
	// MaxRelationshipsPerNode caps fan-out after extraction
	MaxRelationshipsPerNode = 20
	// ExtractionBatchSize is the default number of nodes compared pairwise at once
	ExtractionBatchSize = 100
	// RelationshipCacheTTL bounds how long a pair's similarity is reused
	RelationshipCacheTTL = time.Hour
	// RelationshipCacheCapacity bounds the number of cached pairs
	RelationshipCacheCapacity = 100000
)

// Build constants
const (
	MinNodes              = 2
	MaxNodes              = 10000
	MinConnectionsPerNode = 10
	// MaxParallelBatches caps in-flight insert sub-batches
	MaxParallelBatches = 5
	// InsertBatchSize is the number of entities per insert sub-batch
	InsertBatchSize = 100
)

// Optimization constants
const (
	OptimizationBatchSize = 100
	MinRelationshipWeight = 0.1
	MaxRelationshipWeight = 1.0
	DefaultMinClustering = 0.3
	BreakerThreshold     = 5
	BreakerTimeout       = 60 * time.Second
	MetricsCacheTTL      = 300 * time.Second
	// ConflictRetries is how often a versioned write is re-read and retried
	ConflictRetries = 3
)

// Service identity
const (
	ServiceName     = "knowledge-organization-service"
	MetricNamespace = "knowledge_organization"
)
