package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "knowledge-organization/backend/pkg/errors"
)

const (
	// MaxAttributes caps the number of extra entries carried by an entity.
	MaxAttributes = 64
	// MaxAttributeKeyLength caps attribute key length.
	MaxAttributeKeyLength = 128
)

// Attributes is a bounded bag of extra values. Leaves are restricted to
// string, float64 and bool; strings are stripped of markup.
type Attributes map[string]any

// NewAttributes validates and normalizes raw. Integer values become float64
// and nil values are dropped. Nested maps and slices are rejected.
func NewAttributes(raw map[string]any) (Attributes, error) {
	if len(raw) > MaxAttributes {
		return nil, apperrors.NewValidation("metadata", fmt.Sprintf("at most %d attributes allowed, got %d", MaxAttributes, len(raw)))
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" || len(key) > MaxAttributeKeyLength {
			return nil, apperrors.NewValidation("metadata", fmt.Sprintf("invalid attribute key %q", k))
		}
		if v == nil {
			continue
		}
		leaf, err := normalizeLeaf(v)
		if err != nil {
			return nil, apperrors.NewValidation("metadata."+key, err.Error())
		}
		out[key] = leaf
	}
	return out, nil
}

func normalizeLeaf(v any) (any, error) {
	var f float64
	switch x := v.(type) {
	case string:
		return SanitizeText(x), nil
	case bool:
		return x, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number must be finite")
	}
	return f, nil
}

// Clone returns a shallow copy; leaves are immutable.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the attribute keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string value for key.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// Float returns the numeric value for key.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key].(float64)
	return v, ok
}

// SanitizeText strips markup from s. Script-like elements are dropped along
// with their content; other tags are removed and their text kept.
func SanitizeText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style, iframe, object, embed, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}
