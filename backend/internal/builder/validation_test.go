package builder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"knowledge-organization/backend/internal/model"
	apperrors "knowledge-organization/backend/pkg/errors"
)

func validRecords(n int) []model.ContentNode {
	out := make([]model.ContentNode, n)
	for i := range out {
		out[i] = record(i)
	}
	return out
}

// connectedRecords returns n records whose extracted edges form a cycle
// through every node: the last record's broader scope contains the first,
// and every other pair is related from the earlier record to the later.
func connectedRecords(n int) []model.ContentNode {
	out := validRecords(n)
	out[0].Metadata.Scope = "x.y"
	out[n-1].Metadata.Scope = "x"
	return out
}

func TestValidateNodes(t *testing.T) {
	bad := -0.5

	tests := []struct {
		name  string
		nodes func() []model.ContentNode
		field string
	}{
		{
			name:  "too few",
			nodes: func() []model.ContentNode { return validRecords(1) },
			field: "nodes",
		},
		{
			name:  "too many",
			nodes: func() []model.ContentNode { return validRecords(6) },
			field: "nodes",
		},
		{
			name: "missing id",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[1].ID = ""
				return n
			},
			field: "nodes[1].id",
		},
		{
			name: "missing content",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[0].Content = ""
				return n
			},
			field: "nodes[0].content",
		},
		{
			name: "missing vector",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[1].Vector = nil
				return n
			},
			field: "nodes[1].vector",
		},
		{
			name: "quality out of range",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[0].Metadata.QualityScore = &bad
				return n
			},
			field: "nodes[0].metadata.quality_score",
		},
		{
			name: "duplicate id",
			nodes: func() []model.ContentNode {
				n := validRecords(3)
				n[2].ID = n[0].ID
				return n
			},
			field: "nodes[2].id",
		},
		{
			name: "dimension mismatch",
			nodes: func() []model.ContentNode {
				n := validRecords(3)
				n[1].Vector = []float64{1, 2, 3}
				return n
			},
			field: "nodes[1].vector",
		},
		{
			name: "non-finite value",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[1].Vector = []float64{math.NaN(), 1}
				return n
			},
			field: "nodes[1].vector",
		},
		{
			name: "unknown label",
			nodes: func() []model.ContentNode {
				n := validRecords(2)
				n[0].Metadata.Label = "WIDGET"
				return n
			},
			field: "metadata.label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodes(tt.nodes(), 2, 5)
			var verr *apperrors.ErrValidation
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}

	assert.NoError(t, ValidateNodes(validRecords(5), 2, 5))
}
