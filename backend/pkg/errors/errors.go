package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed input that is never retried
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeComplexity represents a built graph that fails degree or connectivity checks
	ErrorTypeComplexity ErrorType = "complexity"
	// ErrorTypeConflict represents an optimistic-lock version mismatch
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeCollaborator represents similarity or persistence service failures
	ErrorTypeCollaborator ErrorType = "collaborator"
	// ErrorTypeNotFound represents a missing graph, node or relationship
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// base lets errors.As find the embedded BaseError of any typed error.
func (e *BaseError) base() *BaseError {
	return e
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned for bad input shape, duplicate ids or out-of-range counts
type ErrValidation struct {
	*BaseError
	Field string
}

func NewValidation(field, reason string) *ErrValidation {
	msg := reason
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, reason)
	}
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, msg, nil),
		Field:     field,
	}
}

// Complexity Errors

// ErrComplexity is returned when a built graph fails the minimum-degree or
// strong-connectivity checks
type ErrComplexity struct {
	*BaseError
	NodeID string
	Reason string
}

func NewComplexity(nodeID, reason string) *ErrComplexity {
	msg := reason
	if nodeID != "" {
		msg = fmt.Sprintf("node %s: %s", nodeID, reason)
	}
	return &ErrComplexity{
		BaseError: NewBaseError(ErrorTypeComplexity, msg, nil),
		NodeID:    nodeID,
		Reason:    reason,
	}
}

// Conflict Errors

// ErrConflict is returned when a versioned update finds a different stored version
type ErrConflict struct {
	*BaseError
	Entity string
	IDs    []string
}

func NewConflict(entity string, ids ...string) *ErrConflict {
	return &ErrConflict{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("version mismatch on %s [%s]", entity, strings.Join(ids, ", ")), nil),
		Entity:    entity,
		IDs:       ids,
	}
}

// Collaborator Errors

// ErrCollaborator is returned when the similarity or persistence service fails
type ErrCollaborator struct {
	*BaseError
	Collaborator string
	Retryable    bool
}

func NewCollaborator(collaborator string, retryable bool, err error) *ErrCollaborator {
	return &ErrCollaborator{
		BaseError:    NewBaseError(ErrorTypeCollaborator, fmt.Sprintf("%s call failed", collaborator), err),
		Collaborator: collaborator,
		Retryable:    retryable,
	}
}

// ErrSimilarityUnavailable is returned when the similarity circuit breaker is open
var ErrSimilarityUnavailable = NewBaseError(ErrorTypeCollaborator, "similarity unavailable", nil)

// ErrOptimizerUnavailable is returned when the optimizer's store breaker is open
var ErrOptimizerUnavailable = NewBaseError(ErrorTypeCollaborator, "optimizer unavailable", nil)

// ErrStoreUnavailable is returned when the graph store cannot be reached
var ErrStoreUnavailable = NewBaseError(ErrorTypeCollaborator, "graph store unavailable", nil)

// Not Found Errors

// ErrNotFound is returned when a graph, node or relationship does not exist
type ErrNotFound struct {
	*BaseError
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, id), nil),
		Entity:    entity,
		ID:        id,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type typed interface {
	base() *BaseError
}

// TypeOf returns the ErrorType of the first BaseError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var t typed
	if errors.As(err, &t) {
		return t.base().Type
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

func IsValidation(err error) bool   { return IsErrorType(err, ErrorTypeValidation) }
func IsComplexity(err error) bool   { return IsErrorType(err, ErrorTypeComplexity) }
func IsConflict(err error) bool     { return IsErrorType(err, ErrorTypeConflict) }
func IsCollaborator(err error) bool { return IsErrorType(err, ErrorTypeCollaborator) }
func IsNotFound(err error) bool     { return IsErrorType(err, ErrorTypeNotFound) }

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// An open breaker means fail fast
	if errors.Is(err, ErrSimilarityUnavailable) || errors.Is(err, ErrOptimizerUnavailable) || errors.Is(err, ErrStoreUnavailable) {
		return false
	}
	var collab *ErrCollaborator
	if errors.As(err, &collab) {
		return collab.Retryable
	}
	return IsConflict(err)
}
