// Package storage holds the job store engines behind scheduler.Store.
//
// Drivers:
//   - "memory": process-local map, nothing survives a restart
//   - "file":   JSON snapshot plus an append-only JSON Lines journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
package storage
