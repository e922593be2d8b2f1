// Package store provides SQLite-backed durable storage for composer
// sessions.
//
// The store is an append-only history with:
//   - Sessions: one row per editing session (model, source, creation seq)
//   - Snapshots: the query definition and arguments after each change,
//     labelled with the command that produced it
//
// # Ordering
//
// All ordering uses seq INTEGER (a logical clock), never timestamps, and
// every read includes ORDER BY seq ASC, id ASC COLLATE BINARY, so a
// history reads back identically regardless of wall time.
//
// Undo does not delete rows: it appends a snapshot of the restored state.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
