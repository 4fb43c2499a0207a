package rules

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SingleRuleFile(t *testing.T) {
	rules, err := Load(filepath.Join("testdata", "single.yaml"))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "log-creates", r.ID)
	assert.Equal(t, map[string]any{"type": "Create"}, r.Match)
	assert.Equal(t, []string{"logActivity"}, r.Effect, "string effect coerces to a list")
	assert.Equal(t, 100, r.Priority, "priority defaults")
	assert.Equal(t, "Rule", r.Type, "type defaults")
}

func TestLoad_SequenceFile(t *testing.T) {
	rules, err := Load(filepath.Join("testdata", "sequence.yaml"))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "tag-notes", rules[0].ID)
	assert.Equal(t, []string{"hashtags", "logActivity"}, rules[0].Effect)
	assert.Equal(t, 10, rules[0].Priority)

	assert.Equal(t, "follow-fanout", rules[1].ID)
	assert.Equal(t, []string{"follow"}, rules[1].Effect)
	assert.Equal(t, 50, rules[1].Priority)
}

func TestLoad_EmptyFile(t *testing.T) {
	rules, err := Load(filepath.Join("testdata", "empty.yaml"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoad_MissingSource(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "no_such_file.yaml"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "no_such_file.yaml")
}

func TestLoad_MissingID(t *testing.T) {
	file := filepath.Join("testdata", "invalid", "missing_id.yaml")
	_, err := Load(file)
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), file, "error names the offending file")
}

func TestLoad_BrokenYAML(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "invalid", "broken.yaml"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "parsing YAML")
}

func TestLoad_DirectoryPartialSuccess(t *testing.T) {
	// 10_first.yaml is valid, 20_bad.yaml omits match. Files load in
	// lexical order so the valid rule comes back alongside the error.
	rules, err := Load(filepath.Join("testdata", "ruleset"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "20_bad.yaml")

	require.Len(t, rules, 1)
	assert.Equal(t, "first", rules[0].ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr bool
	}{
		{
			name: "minimal rule",
			raw: map[string]any{
				"id":     "r1",
				"match":  map[string]any{"type": "Create"},
				"effect": "logActivity",
			},
		},
		{
			name: "effect list",
			raw: map[string]any{
				"id":     "r2",
				"match":  map[string]any{},
				"effect": []any{"a", "b"},
			},
		},
		{
			name: "empty id",
			raw: map[string]any{
				"id":     "",
				"match":  map[string]any{"type": "Create"},
				"effect": "logActivity",
			},
			wantErr: true,
		},
		{
			name: "missing match",
			raw: map[string]any{
				"id":     "r3",
				"effect": "logActivity",
			},
			wantErr: true,
		},
		{
			name: "numeric effect",
			raw: map[string]any{
				"id":     "r4",
				"match":  map[string]any{},
				"effect": 7,
			},
			wantErr: true,
		},
		{
			name: "non-integer priority",
			raw: map[string]any{
				"id":       "r5",
				"match":    map[string]any{},
				"effect":   "logActivity",
				"priority": "high",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Validate(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, rule.Effect)
		})
	}
}
