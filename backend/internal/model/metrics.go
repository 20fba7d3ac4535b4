package model

import (
	"math"
	"time"
)

// GraphMetrics summarizes graph structure.
type GraphMetrics struct {
	NodeCount                   int       `json:"node_count"`
	EdgeCount                   int       `json:"edge_count"`
	Density                     float64   `json:"density"`
	AverageDegree               float64   `json:"average_degree"`
	AverageClustering           float64   `json:"average_clustering"`
	AverageShortestPath         float64   `json:"average_shortest_path"`
	Diameter                    int       `json:"diameter"`
	StronglyConnectedComponents int       `json:"strongly_connected_components"`
	CalculatedAt                time.Time `json:"calculated_at"`
}

// Delta returns the largest absolute difference between the numeric fields
// of m and other.
func (m GraphMetrics) Delta(other GraphMetrics) float64 {
	pairs := [][2]float64{
		{float64(m.NodeCount), float64(other.NodeCount)},
		{float64(m.EdgeCount), float64(other.EdgeCount)},
		{m.Density, other.Density},
		{m.AverageDegree, other.AverageDegree},
		{m.AverageClustering, other.AverageClustering},
		{m.AverageShortestPath, other.AverageShortestPath},
		{float64(m.Diameter), float64(other.Diameter)},
		{float64(m.StronglyConnectedComponents), float64(other.StronglyConnectedComponents)},
	}
	max := 0.0
	for _, p := range pairs {
		if d := math.Abs(p[0] - p[1]); d > max {
			max = d
		}
	}
	return max
}

// BuildInfo is written into graph metadata once a build completes.
type BuildInfo struct {
	StartedAt         time.Time    `json:"started_at"`
	CompletedAt       time.Time    `json:"completed_at"`
	DurationSeconds   float64      `json:"duration_seconds"`
	RelationshipCount int          `json:"relationship_count"`
	InitialMetrics    GraphMetrics `json:"initial_metrics"`
	FinalMetrics      GraphMetrics `json:"final_metrics"`
}

// OptimizationRecord is one entry of a graph's optimization history.
type OptimizationRecord struct {
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	Removed     int          `json:"removed"`
	Reweighted  int          `json:"reweighted"`
	Added       int          `json:"added"`
	Before      GraphMetrics `json:"before"`
	After       GraphMetrics `json:"after"`
}

// MaxOptimizationHistory caps the retained optimization records per graph.
const MaxOptimizationHistory = 20

// GraphMetadata is the graph-level bookkeeping.
type GraphMetadata struct {
	NodeCount           int                  `json:"node_count"`
	RelationshipCount   int                  `json:"relationship_count"`
	LastModified        time.Time            `json:"last_modified"`
	Attributes          Attributes           `json:"attributes,omitempty"`
	BuildInfo           *BuildInfo           `json:"build_info,omitempty"`
	OptimizationHistory []OptimizationRecord `json:"optimization_history,omitempty"`
}

// AppendOptimization records a run, dropping the oldest beyond the cap.
func (m *GraphMetadata) AppendOptimization(rec OptimizationRecord) {
	m.OptimizationHistory = append(m.OptimizationHistory, rec)
	if over := len(m.OptimizationHistory) - MaxOptimizationHistory; over > 0 {
		m.OptimizationHistory = append([]OptimizationRecord(nil), m.OptimizationHistory[over:]...)
	}
}
