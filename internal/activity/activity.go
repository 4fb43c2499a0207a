package activity

// Well-known field names interpreted by the engine. All other fields are
// opaque payload and pass through untouched.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldActor     = "actor"
	FieldContext   = "context"
	FieldPublished = "published"
	FieldResult    = "result"
)

// Activity types with engine-level meaning.
const (
	TypeTombstone = "Tombstone"
	TypeRule      = "Rule"
)

// Result entry types produced by the engine itself. Effects are free to
// append entries with application-defined types.
const (
	EntryError   = "Error"
	EntryLog     = "Log"
	EntryWarning = "Warning"
)

// Tombstone fields.
const (
	FieldFormerType = "formerType"
	FieldDeleted    = "deleted"
)

// Activity is a single Activity Streams style event record.
//
// After admission every activity has a non-empty id, type, actor, and a
// result slice. Nothing else is guaranteed.
type Activity map[string]any

// Entry is one element of an activity's result trail. Entries carry at
// least a "type" tag; an entry with a type but no id is a new activity
// awaiting submission.
type Entry = map[string]any

// ID returns the activity's id, or "" if absent or not a string.
func (a Activity) ID() string {
	s, _ := a[FieldID].(string)
	return s
}

// Type returns the activity's type, or "" if absent or not a string.
func (a Activity) Type() string {
	s, _ := a[FieldType].(string)
	return s
}

// ActorID returns the identifier of the activity's actor.
//
// The actor field is either a plain identifier string or an object with
// at least an "id" field. Returns "" when neither shape is present.
func (a Activity) ActorID() string {
	switch actor := a[FieldActor].(type) {
	case string:
		return actor
	case map[string]any:
		s, _ := actor[FieldID].(string)
		return s
	}
	return ""
}

// Result returns the activity's result trail, or nil if absent or of an
// unexpected shape.
func (a Activity) Result() []any {
	r, _ := a[FieldResult].([]any)
	return r
}

// EnsureResult initializes the result trail to an empty slice if absent.
func (a Activity) EnsureResult() {
	if _, ok := a[FieldResult].([]any); !ok {
		a[FieldResult] = []any{}
	}
}

// AppendResult appends entries to the activity's result trail, creating
// the trail if needed. The trail is append-only during processing.
func (a Activity) AppendResult(entries ...Entry) {
	r, _ := a[FieldResult].([]any)
	for _, e := range entries {
		r = append(r, e)
	}
	a[FieldResult] = r
}

// IsTombstone reports whether the record is a terminal tombstone.
func (a Activity) IsTombstone() bool {
	return a.Type() == TypeTombstone
}

// Copy returns a deep copy of the activity. Submission and dispatch
// operate on copies so callers never observe in-place mutation.
func (a Activity) Copy() Activity {
	if a == nil {
		return nil
	}
	return Activity(copyMap(a))
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyMap(v)
	case Activity:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	default:
		// Scalars (and anything else) are treated as immutable.
		return v
	}
}

// NewActivityEntries returns the entries of the result trail that are new
// activities to be submitted: mappings that carry a type but no id.
func (a Activity) NewActivityEntries() []Entry {
	var out []Entry
	for _, v := range a.Result() {
		e, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if _, hasType := e[FieldType].(string); !hasType {
			continue
		}
		if _, hasID := e[FieldID]; hasID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HasErrorEntry reports whether the result trail already carries an Error
// entry whose context is the given activity id. Used by the tombstone
// path to avoid recording the same failure twice.
func (a Activity) HasErrorEntry(activityID string) bool {
	for _, v := range a.Result() {
		e, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := e[FieldType].(string); t != EntryError {
			continue
		}
		if c, _ := e[FieldContext].(string); c == activityID {
			return true
		}
	}
	return false
}
