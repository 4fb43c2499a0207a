package activity

import "time"

// Tombstone builds the terminal replacement record for an activity that
// failed unrecoverably. The tombstone keeps the original id, records the
// original type as formerType, and carries its result trail forward so
// the failure remains auditable. A tombstone never re-enters dispatch.
func Tombstone(a Activity, deleted time.Time) Activity {
	t := Activity{
		FieldID:         a.ID(),
		FieldType:       TypeTombstone,
		FieldFormerType: a.Type(),
		FieldDeleted:    deleted.UTC().Format(time.RFC3339),
	}
	if r := a.Result(); r != nil {
		t[FieldResult] = copyValue(r)
	}
	return t
}
