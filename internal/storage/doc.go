// Package storage keeps the run ledger: one record per pacing invocation.
//
// Drivers:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
package storage
