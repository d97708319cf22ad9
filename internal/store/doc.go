// Package store provides the SQLite-backed building blocks every okra entity
// is made from.
//
// Two table shapes are supported:
//   - Values: a deduplicating intern table mapping text to a stable ID
//   - Pairs: an ordered key → value multi-map with cursor and range paging
//
// # Identity
//
// IDs are allocated by SQLite AUTOINCREMENT and start at 1. ID 0 is never
// allocated, so it doubles as the "start from the beginning" cursor.
//
// # Failure kinds
//
// Every error returned by this package matches exactly one of
// ErrNotFound, ErrDuplicateKey or ErrStorageUnavailable under errors.Is,
// except context cancellation which is returned as-is.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
