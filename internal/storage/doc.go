// Package storage keeps the delivery outcome history.
//
// Two backends are available:
//   - file: append-only JSON Lines, no external dependencies
//   - sqlite: a SQLite database (modernc.org/sqlite, pure Go)
//
// The pending queue itself is never persisted.
package storage
