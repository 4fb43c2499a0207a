package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftline/activitybus/internal/activity"
)

// Memory is an in-memory Store. Records are kept per collection in
// insertion order; storing a record with an existing id replaces the
// record in place without changing its position, which keeps rule query
// order stable across reloads.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection

	// Now supplies timestamps for tombstone conversion. Defaults to
	// time.Now; tests override it for deterministic output.
	Now func() time.Time
}

type memoryCollection struct {
	order []string
	byID  map[string]activity.Activity
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*memoryCollection),
		Now:         time.Now,
	}
}

// Store persists a deep copy of the record into the collection.
func (m *Memory) Store(ctx context.Context, record activity.Activity, collection string) error {
	id := record.ID()
	if id == "" {
		return fmt.Errorf("store: record has no id")
	}
	name := normalizeCollection(collection)

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[name]
	if !ok {
		col = &memoryCollection{byID: make(map[string]activity.Activity)}
		m.collections[name] = col
	}
	if _, exists := col.byID[id]; !exists {
		col.order = append(col.order, id)
	}
	col.byID[id] = record.Copy()
	return nil
}

// Query returns deep copies of the records whose shape satisfies the
// filter, in insertion order.
func (m *Memory) Query(ctx context.Context, filter map[string]any, collection string) ([]activity.Activity, error) {
	name := normalizeCollection(collection)

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, nil
	}

	var out []activity.Activity
	for _, id := range col.order {
		rec := col.byID[id]
		if len(filter) == 0 || frameMatch(rec, filter, true) {
			out = append(out, rec.Copy())
		}
	}
	return out, nil
}

// Dereference resolves a reference into a full record copy.
func (m *Memory) Dereference(ctx context.Context, ref any) (activity.Activity, error) {
	switch ref := ref.(type) {
	case string:
		rec, ok := m.lookup(ref)
		if !ok {
			return nil, fmt.Errorf("dereference: no record with id %s", ref)
		}
		return rec, nil
	case activity.Activity:
		return m.derefMap(ref)
	case map[string]any:
		return m.derefMap(ref)
	}
	return nil, fmt.Errorf("dereference: unsupported reference %T", ref)
}

func (m *Memory) derefMap(ref map[string]any) (activity.Activity, error) {
	id, _ := ref[activity.FieldID].(string)
	if id == "" {
		return nil, fmt.Errorf("dereference: reference has no id")
	}
	if rec, ok := m.lookup(id); ok {
		return rec, nil
	}
	// Not stored: the reference itself is as full as it gets.
	return activity.Activity(ref).Copy(), nil
}

func (m *Memory) lookup(id string) (activity.Activity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[CollectionActivities]
	if !ok {
		return nil, false
	}
	rec, ok := col.byID[id]
	if !ok {
		return nil, false
	}
	return rec.Copy(), true
}

// Match reports whether the activity structurally satisfies the pattern.
func (m *Memory) Match(ctx context.Context, act activity.Activity, pattern map[string]any, requireMatch bool) (bool, error) {
	if act == nil {
		return false, fmt.Errorf("match: nil activity")
	}
	return frameMatch(act, pattern, requireMatch), nil
}

// ConvertToTombstone produces the terminal tombstone for the activity.
func (m *Memory) ConvertToTombstone(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	if act.ID() == "" {
		return nil, fmt.Errorf("convert to tombstone: activity has no id")
	}
	return activity.Tombstone(act, m.Now()), nil
}

// Len returns the number of records in a collection. Used by tests.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[normalizeCollection(collection)]
	if !ok {
		return 0
	}
	return len(col.order)
}

var _ Store = (*Memory)(nil)
