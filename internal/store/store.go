package store

import (
	"context"

	"github.com/driftline/activitybus/internal/activity"
)

// Collection names. The empty string passed to Store or Query means
// CollectionActivities.
const (
	// CollectionActivities holds submitted and finalized activities.
	CollectionActivities = "/activities"
	// CollectionRules holds the active rule set read at dispatch time.
	CollectionRules = "/sys/rules"
	// CollectionEffects holds effect descriptors persisted for inspection.
	CollectionEffects = "/sys/effects"
)

// Store is the persistence and pattern-matching collaborator consumed by
// the bus.
//
// Implementations must deep-copy on the way in and out: callers may
// mutate records after Store returns, and may mutate what Query or
// Dereference hand back, without affecting stored state.
type Store interface {
	// Store persists a record into the named collection, replacing any
	// record with the same id. collection "" means CollectionActivities.
	Store(ctx context.Context, record activity.Activity, collection string) error

	// Query returns the records of the collection whose shape satisfies
	// the filter, in insertion order. A nil or empty filter returns the
	// whole collection.
	Query(ctx context.Context, filter map[string]any, collection string) ([]activity.Activity, error)

	// Dereference resolves a possibly-partial reference into a full
	// record. A string resolves as an id in the activity collection; a
	// mapping with an id resolves to the stored record when one exists,
	// else to a copy of the mapping itself.
	Dereference(ctx context.Context, ref any) (activity.Activity, error)

	// Match reports whether the activity structurally satisfies the
	// pattern. With requireMatch every pattern field must be present and
	// matching; without it, absent fields are tolerated and only
	// conflicting values fail the match.
	Match(ctx context.Context, act activity.Activity, pattern map[string]any, requireMatch bool) (bool, error)

	// ConvertToTombstone produces the terminal tombstone record for an
	// activity. The caller persists the result.
	ConvertToTombstone(ctx context.Context, act activity.Activity) (activity.Activity, error)
}

func normalizeCollection(collection string) string {
	if collection == "" {
		return CollectionActivities
	}
	return collection
}
