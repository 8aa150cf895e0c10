// Package storage persists job definitions and the run audit trail.
//
// Drivers:
//   - "file": JSON snapshot of jobs plus a JSON Lines audit log, guarded by
//     an flock so the CLI and the server can share it
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage
