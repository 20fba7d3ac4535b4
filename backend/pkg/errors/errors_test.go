package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to build graph: %w", NewValidation("nodes", "insufficient nodes"))

	assert.True(t, IsValidation(err))
	assert.False(t, IsComplexity(err))
	assert.Equal(t, ErrorTypeValidation, TypeOf(err))
	assert.Contains(t, err.Error(), "insufficient nodes")

	var verr *ErrValidation
	assert.True(t, stderrors.As(err, &verr))
	assert.Equal(t, "nodes", verr.Field)
}

func TestSentinelsMatchWithErrorsIs(t *testing.T) {
	err := fmt.Errorf("optimize: %w", ErrOptimizerUnavailable)

	assert.True(t, stderrors.Is(err, ErrOptimizerUnavailable))
	assert.True(t, IsCollaborator(err))
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", NewValidation("vector", "not finite"), false},
		{"complexity", NewComplexity("n1", "degree below minimum"), false},
		{"conflict", NewConflict("relationship", "r1"), true},
		{"transient collaborator", NewCollaborator("similarity", true, stderrors.New("timeout")), true},
		{"terminal collaborator", NewCollaborator("similarity", false, stderrors.New("bad vector")), false},
		{"context", NewContextCancelled("build", context.Canceled), false},
		{"plain canceled", fmt.Errorf("x: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestConflictMessageListsIDs(t *testing.T) {
	err := NewConflict("relationship", "r1", "r2")
	assert.Equal(t, "[conflict] version mismatch on relationship [r1, r2]", err.Error())
	assert.Equal(t, []string{"r1", "r2"}, err.IDs)
}
