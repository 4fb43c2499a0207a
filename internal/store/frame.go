package store

import "github.com/driftline/activitybus/internal/activity"

// Structural frame matching shared by both store implementations.
//
// A pattern matches a document when every field the pattern mentions is
// satisfied by the document:
//   - nested mappings recurse per key
//   - {"@exists": true} asserts presence of the key (false asserts absence)
//   - a pattern array matches a document array if every pattern element
//     matches some document element
//   - scalars compare with loose numeric equality, so 100 matches 100.0
//     regardless of which decoder produced which
//
// In require mode a key the document lacks fails the match. Without
// require mode absent keys are tolerated; only a present, conflicting
// value fails.

// existsDirective is the pattern key asserting field presence.
const existsDirective = "@exists"

// frameMatch reports whether doc satisfies pattern.
func frameMatch(doc map[string]any, pattern map[string]any, require bool) bool {
	for key, pv := range pattern {
		dv, found := doc[key]

		// Presence assertion: {"key": {"@exists": bool}}
		if pm, ok := pv.(map[string]any); ok {
			if want, has := pm[existsDirective]; has && len(pm) == 1 {
				wantPresent, _ := want.(bool)
				if wantPresent != found {
					return false
				}
				continue
			}
		}

		if !found {
			if require {
				return false
			}
			continue
		}

		if !frameValue(dv, pv, require) {
			return false
		}
	}
	return true
}

func frameValue(dv, pv any, require bool) bool {
	switch pv := pv.(type) {
	case map[string]any:
		dm, ok := asMap(dv)
		if !ok {
			return false
		}
		return frameMatch(dm, pv, require)
	case []any:
		dl, ok := dv.([]any)
		if !ok {
			return false
		}
		// Every pattern element must match some document element.
		for _, pe := range pv {
			matched := false
			for _, de := range dl {
				if frameValue(de, pe, require) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	default:
		return looseEqual(dv, pv)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case activity.Activity:
		return v, true
	}
	return nil, false
}

// looseEqual compares scalars, treating all numeric types as the same
// domain. JSON decoding yields float64 where YAML yields int; the two
// must compare equal.
func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
