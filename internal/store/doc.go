// Package store defines the persistence and pattern-matching collaborator
// the bus depends on, plus two compliant implementations.
//
// The bus itself never interprets match patterns or owns persistence; it
// calls through the narrow Store interface. Any implementation that
// honors the contract (in-memory, database-backed, remote) can be
// substituted.
//
// Implementations here:
//   - Memory: mutex-guarded in-memory collections, insertion-ordered.
//     The default for tests and ephemeral runs.
//   - SQLite: durable single-writer SQLite backend with WAL mode.
//
// Both share the same structural frame matcher (frame.go) so matching
// semantics are identical regardless of backend.
package store
