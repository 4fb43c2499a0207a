package activity

import (
	"fmt"
	"sort"
)

// DefaultRulePriority applies when a rule does not declare one.
// Lower priorities run earlier.
const DefaultRulePriority = 100

// Rule pairs a structural match pattern with an ordered list of effect
// ids. Rules are immutable once loaded; the engine reads the active set
// from the store at dispatch time rather than caching it.
type Rule struct {
	ID       string
	Match    map[string]any
	Effect   []string
	Priority int
	Type     string
}

// ToMap converts the rule to its stored record form.
func (r Rule) ToMap() map[string]any {
	effects := make([]any, len(r.Effect))
	for i, e := range r.Effect {
		effects[i] = e
	}
	return map[string]any{
		"id":       r.ID,
		"match":    copyMap(r.Match),
		"effect":   effects,
		"priority": r.Priority,
		"type":     r.Type,
	}
}

// RuleFromMap converts a stored record back into a Rule, applying the
// documented defaults for priority and type. Returns an error if the
// record is missing id or match, or if match is not a mapping.
func RuleFromMap(m map[string]any) (Rule, error) {
	id, _ := m["id"].(string)
	if id == "" {
		return Rule{}, fmt.Errorf("rule record missing id")
	}

	match, ok := m["match"].(map[string]any)
	if !ok {
		return Rule{}, fmt.Errorf("rule %s: match must be a mapping", id)
	}

	r := Rule{
		ID:       id,
		Match:    match,
		Priority: DefaultRulePriority,
		Type:     TypeRule,
	}

	switch effect := m["effect"].(type) {
	case string:
		r.Effect = []string{effect}
	case []any:
		for _, e := range effect {
			s, ok := e.(string)
			if !ok {
				return Rule{}, fmt.Errorf("rule %s: effect entries must be strings", id)
			}
			r.Effect = append(r.Effect, s)
		}
	case []string:
		r.Effect = append(r.Effect, effect...)
	case nil:
		return Rule{}, fmt.Errorf("rule %s: missing effect", id)
	default:
		return Rule{}, fmt.Errorf("rule %s: effect must be a string or list of strings", id)
	}

	if p, ok := numericField(m["priority"]); ok {
		r.Priority = p
	}
	if t, ok := m["type"].(string); ok && t != "" {
		r.Type = t
	}

	return r, nil
}

// numericField accepts the integer shapes produced by YAML and JSON
// decoding (int, int64, float64).
func numericField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// SortRulesByPriority orders rules ascending by priority. The sort is
// stable: ties preserve the order the store returned them in.
func SortRulesByPriority(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}
