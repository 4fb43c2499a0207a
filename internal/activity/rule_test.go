package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFromMap_Defaults(t *testing.T) {
	r, err := RuleFromMap(map[string]any{
		"id":     "r1",
		"match":  map[string]any{"type": "Create"},
		"effect": []any{"log"},
	})
	require.NoError(t, err)

	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, DefaultRulePriority, r.Priority)
	assert.Equal(t, TypeRule, r.Type)
	assert.Equal(t, []string{"log"}, r.Effect)
}

func TestRuleFromMap_CoercesSingleEffect(t *testing.T) {
	r, err := RuleFromMap(map[string]any{
		"id":     "r1",
		"match":  map[string]any{},
		"effect": "log",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"log"}, r.Effect)
}

func TestRuleFromMap_NumericPriorityShapes(t *testing.T) {
	// YAML decodes integers as int, JSON as float64; both must work.
	for _, priority := range []any{int(10), int64(10), float64(10)} {
		r, err := RuleFromMap(map[string]any{
			"id":       "r1",
			"match":    map[string]any{},
			"effect":   "log",
			"priority": priority,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, r.Priority)
	}
}

func TestRuleFromMap_Invalid(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
	}{
		{"missing id", map[string]any{"match": map[string]any{}, "effect": "log"}},
		{"missing match", map[string]any{"id": "r1", "effect": "log"}},
		{"match not a mapping", map[string]any{"id": "r1", "match": "Create", "effect": "log"}},
		{"missing effect", map[string]any{"id": "r1", "match": map[string]any{}}},
		{"effect wrong type", map[string]any{"id": "r1", "match": map[string]any{}, "effect": 7}},
		{"effect entry wrong type", map[string]any{"id": "r1", "match": map[string]any{}, "effect": []any{"log", 7}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RuleFromMap(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestSortRulesByPriority_StableOnTies(t *testing.T) {
	rules := []Rule{
		{ID: "c", Priority: 50},
		{ID: "a", Priority: 10},
		{ID: "d", Priority: 50},
		{ID: "b", Priority: 10},
	}

	SortRulesByPriority(rules)

	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	// Ascending by priority; ties keep input order.
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestRule_ToMapRoundTrip(t *testing.T) {
	r := Rule{
		ID:       "r1",
		Match:    map[string]any{"type": "Create", "object": map[string]any{"type": "Note"}},
		Effect:   []string{"log", "notify"},
		Priority: 25,
		Type:     "Rule",
	}

	back, err := RuleFromMap(r.ToMap())
	require.NoError(t, err)
	assert.Equal(t, r, back)
}
