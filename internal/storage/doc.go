// Package storage mirrors fetch runs and user registrations to disk.
//
// Drivers:
//   - file: append-only JSON Lines (<prefix>.runs.jsonl, <prefix>.users.jsonl)
//   - sqlite: a single SQLite database (WAL, embedded migrations)
//
// Storage is optional; the runtime works the same without it.
package storage
