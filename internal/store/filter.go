package store

import (
	"fmt"
	"reflect"
	"strings"
)

// Comparison operators accepted in search filters.
const (
	OpEqual    = "=="
	OpNotEqual = "!="
	OpGreater  = ">"
	OpLess     = "<"
	OpContains = "~" // case-insensitive substring
)

// Filter is one clause of an order search. Clauses are ANDed together.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// MatchesAll reports whether the order satisfies every filter clause.
// An empty filter list matches everything.
func MatchesAll(o Order, filters []Filter) bool {
	for _, f := range filters {
		if !f.matches(o) {
			return false
		}
	}
	return true
}

// matches evaluates a single clause. A missing field never matches, and a
// type mismatch under > or < excludes the record rather than erroring.
func (f Filter) matches(o Order) bool {
	v, ok := o[f.Field]
	if !ok {
		return false
	}

	switch f.Op {
	case OpEqual:
		return looseEqual(v, f.Value)
	case OpNotEqual:
		return !looseEqual(v, f.Value)
	case OpGreater:
		cmp, comparable := compare(v, f.Value)
		return comparable && cmp > 0
	case OpLess:
		cmp, comparable := compare(v, f.Value)
		return comparable && cmp < 0
	case OpContains:
		if v == nil {
			return false
		}
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", v)),
			strings.ToLower(fmt.Sprintf("%v", f.Value)),
		)
	default:
		return false
	}
}

// looseEqual compares two JSON-shaped values, treating all numeric types as
// equal when their values match (JSON decoding yields float64, Go callers may
// pass int).
func looseEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values when they are mutually comparable: both numeric
// or both strings. ok is false otherwise (including nil values).
func compare(a, b any) (cmp int, ok bool) {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af > bf:
			return 1, true
		case af < bf:
			return -1, true
		default:
			return 0, true
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
