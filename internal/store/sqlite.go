package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftline/activitybus/internal/activity"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a durable Store backed by a single SQLite database.
//
// The database runs in WAL mode with a single writer connection; SQLite
// only supports one writer at a time and a pool of one avoids
// SQLITE_BUSY churn. Records are stored as JSON bodies and frame-matched
// in Go, so matching semantics are identical to the memory store.
type SQLite struct {
	db *sql.DB

	// Now supplies timestamps for tombstone conversion.
	Now func() time.Time
}

// OpenSQLite creates or opens the database at path and applies the
// schema. Idempotent: safe to call on an existing database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db, Now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store upserts the record into the collection. Replacing an existing
// record keeps its original seq, preserving insertion order.
func (s *SQLite) Store(ctx context.Context, record activity.Activity, collection string) error {
	id := record.ID()
	if id == "" {
		return fmt.Errorf("store: record has no id")
	}

	body, err := json.Marshal(map[string]any(record))
	if err != nil {
		return fmt.Errorf("store: marshal record %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, body) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body`,
		normalizeCollection(collection), id, string(body))
	if err != nil {
		return fmt.Errorf("store: write record %s: %w", id, err)
	}
	return nil
}

// Query returns the collection's records in seq order, filtered by
// frame-matching in Go.
func (s *SQLite) Query(ctx context.Context, filter map[string]any, collection string) ([]activity.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records WHERE collection = ? ORDER BY seq`,
		normalizeCollection(collection))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []activity.Activity
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			return nil, err
		}
		if len(filter) == 0 || frameMatch(rec, filter, true) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

// Dereference resolves a reference into a full record.
func (s *SQLite) Dereference(ctx context.Context, ref any) (activity.Activity, error) {
	switch ref := ref.(type) {
	case string:
		rec, ok, err := s.lookup(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("dereference: no record with id %s", ref)
		}
		return rec, nil
	case activity.Activity:
		return s.derefMap(ctx, ref)
	case map[string]any:
		return s.derefMap(ctx, ref)
	}
	return nil, fmt.Errorf("dereference: unsupported reference %T", ref)
}

func (s *SQLite) derefMap(ctx context.Context, ref map[string]any) (activity.Activity, error) {
	id, _ := ref[activity.FieldID].(string)
	if id == "" {
		return nil, fmt.Errorf("dereference: reference has no id")
	}
	rec, ok, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}
	return activity.Activity(ref).Copy(), nil
}

func (s *SQLite) lookup(ctx context.Context, id string) (activity.Activity, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM records WHERE collection = ? AND id = ?`,
		CollectionActivities, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	rec, err := unmarshalRecord(body)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Match reports whether the activity structurally satisfies the pattern.
func (s *SQLite) Match(ctx context.Context, act activity.Activity, pattern map[string]any, requireMatch bool) (bool, error) {
	if act == nil {
		return false, fmt.Errorf("match: nil activity")
	}
	return frameMatch(act, pattern, requireMatch), nil
}

// ConvertToTombstone produces the terminal tombstone for the activity.
func (s *SQLite) ConvertToTombstone(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	if act.ID() == "" {
		return nil, fmt.Errorf("convert to tombstone: activity has no id")
	}
	return activity.Tombstone(act, s.Now()), nil
}

func unmarshalRecord(body string) (activity.Activity, error) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return activity.Activity(rec), nil
}

var _ Store = (*SQLite)(nil)
