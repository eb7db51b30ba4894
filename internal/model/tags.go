package model

import "fmt"

// Tags is metadata attached to a sample for filtering.
// Values are limited to scalars (string, bool, or number) so that
// equality-based filtering stays well-defined.
type Tags map[string]any

// Validate rejects non-scalar tag values.
func (t Tags) Validate() error {
	for key, value := range t {
		if key == "" {
			return &ValidationError{Field: "tags", Reason: "tag keys must be non-empty"}
		}
		switch value.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return &ValidationError{
				Field:  "tags",
				Reason: fmt.Sprintf("tag %q has unsupported value type %T", key, value),
			}
		}
	}
	return nil
}

// Matches reports whether every key in filter is present in t with an
// equal value. Multiple filter keys AND together. Numeric values compare
// by magnitude so an int tag matches a float filter of the same value.
func (t Tags) Matches(filter Tags) bool {
	for key, want := range filter {
		got, ok := t[key]
		if !ok {
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
