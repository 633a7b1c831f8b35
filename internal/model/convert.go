package model

import (
	"encoding/json"
	"math"
	"strings"
)

// toInt converts a stored numeric value to int. Non-numeric values,
// fractional floats, and nil report false.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// countOrSentinel returns v as a count, or -1 when it is null or not a
// number.
func countOrSentinel(v any) int {
	n, ok := toInt(v)
	if !ok {
		return -1
	}
	return n
}

// toString returns v when it is a non-blank string.
func toString(v any) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// toBool reads a stored flag; null is false.
func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
