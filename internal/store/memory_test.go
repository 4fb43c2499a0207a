package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/activitybus/internal/activity"
)

func TestMemory_StoreAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Store(ctx, activity.Activity{"id": "a1", "type": "Create"}, ""))
	require.NoError(t, m.Store(ctx, activity.Activity{"id": "a2", "type": "Follow"}, ""))

	all, err := m.Query(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a1", all[0].ID())
	assert.Equal(t, "a2", all[1].ID())

	creates, err := m.Query(ctx, map[string]any{"type": "Create"}, "")
	require.NoError(t, err)
	require.Len(t, creates, 1)
	assert.Equal(t, "a1", creates[0].ID())
}

func TestMemory_Store_RequiresID(t *testing.T) {
	m := NewMemory()
	err := m.Store(context.Background(), activity.Activity{"type": "Create"}, "")
	assert.Error(t, err)
}

func TestMemory_Store_ReplacePreservesOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Store(ctx, activity.Activity{"id": "r1", "type": "Rule"}, CollectionRules))
	require.NoError(t, m.Store(ctx, activity.Activity{"id": "r2", "type": "Rule"}, CollectionRules))
	require.NoError(t, m.Store(ctx, activity.Activity{"id": "r1", "type": "Rule", "priority": 5}, CollectionRules))

	rules, err := m.Query(ctx, nil, CollectionRules)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	// r1 keeps its original position but carries the new body.
	assert.Equal(t, "r1", rules[0].ID())
	assert.Equal(t, 5, rules[0]["priority"])
	assert.Equal(t, "r2", rules[1].ID())
}

func TestMemory_QueryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Store(ctx, activity.Activity{"id": "a1", "type": "Create"}, ""))

	got, err := m.Query(ctx, nil, "")
	require.NoError(t, err)
	got[0]["type"] = "Mutated"

	again, err := m.Query(ctx, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Create", again[0].Type())
}

func TestMemory_Dereference(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	stored := activity.Activity{"id": "a1", "type": "Create", "object": map[string]any{"type": "Note"}}
	require.NoError(t, m.Store(ctx, stored, ""))

	t.Run("by id string", func(t *testing.T) {
		got, err := m.Dereference(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "Create", got.Type())
	})

	t.Run("partial reference resolves to stored record", func(t *testing.T) {
		got, err := m.Dereference(ctx, map[string]any{"id": "a1"})
		require.NoError(t, err)
		assert.Equal(t, "Create", got.Type())
		assert.Contains(t, got, "object")
	})

	t.Run("unknown id string errors", func(t *testing.T) {
		_, err := m.Dereference(ctx, "missing")
		assert.Error(t, err)
	})

	t.Run("unstored full record passes through", func(t *testing.T) {
		got, err := m.Dereference(ctx, activity.Activity{"id": "other", "type": "Follow"})
		require.NoError(t, err)
		assert.Equal(t, "Follow", got.Type())
	})

	t.Run("reference without id errors", func(t *testing.T) {
		_, err := m.Dereference(ctx, map[string]any{"type": "Create"})
		assert.Error(t, err)
	})
}

func TestMemory_ConvertToTombstone(t *testing.T) {
	m := NewMemory()
	m.Now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	tomb, err := m.ConvertToTombstone(context.Background(), activity.Activity{"id": "a1", "type": "Create"})
	require.NoError(t, err)
	assert.Equal(t, "a1", tomb.ID())
	assert.Equal(t, activity.TypeTombstone, tomb.Type())
	assert.Equal(t, "Create", tomb[activity.FieldFormerType])
	assert.Equal(t, "2024-05-01T00:00:00Z", tomb[activity.FieldDeleted])
}

func TestMemory_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Store(ctx, activity.Activity{"id": "a1", "type": "Create"}, ""))
	require.NoError(t, m.Store(ctx, activity.Activity{"id": "r1", "type": "Rule"}, CollectionRules))

	activities, err := m.Query(ctx, nil, "")
	require.NoError(t, err)
	assert.Len(t, activities, 1)

	rules, err := m.Query(ctx, nil, CollectionRules)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
