package builder

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"knowledge-organization/backend/internal/model"
	apperrors "knowledge-organization/backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so messages match the request shape.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateNodes checks an ingestion set before anything is persisted:
// count bounds, per-record struct tags, a shared finite vector dimension
// and unique ids.
func ValidateNodes(nodes []model.ContentNode, minNodes, maxNodes int) error {
	if len(nodes) < minNodes {
		return apperrors.NewValidation("nodes", fmt.Sprintf("insufficient nodes: got %d, need at least %d", len(nodes), minNodes))
	}
	if len(nodes) > maxNodes {
		return apperrors.NewValidation("nodes", fmt.Sprintf("too many nodes: got %d, limit %d", len(nodes), maxNodes))
	}

	seen := make(map[string]int, len(nodes))
	dim := 0
	for i, n := range nodes {
		if err := validate.Struct(n); err != nil {
			return formatValidationError(i, err)
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if prev, dup := seen[n.ID]; dup {
			return apperrors.NewValidation(fmt.Sprintf("nodes[%d].id", i), fmt.Sprintf("duplicate id %s (first at index %d)", n.ID, prev))
		}
		seen[n.ID] = i

		if dim == 0 {
			dim = len(n.Vector)
		} else if len(n.Vector) != dim {
			return apperrors.NewValidation(fmt.Sprintf("nodes[%d].vector", i), fmt.Sprintf("dimension %d does not match %d", len(n.Vector), dim))
		}
		for _, x := range n.Vector {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return apperrors.NewValidation(fmt.Sprintf("nodes[%d].vector", i), "contains non-finite values")
			}
		}
	}
	return nil
}

// formatValidationError maps the first failing field to a ValidationError.
func formatValidationError(index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.NewValidation(fmt.Sprintf("nodes[%d]", index), err.Error())
	}
	e := fieldErrs[0]
	field := fmt.Sprintf("nodes[%d].%s", index, fieldPath(e))
	return apperrors.NewValidation(field, formatFieldError(e))
}

// fieldPath drops the struct name from the namespace: ContentNode.metadata.x -> metadata.x.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s elements", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	default:
		return "is invalid"
	}
}
