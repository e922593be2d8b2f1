// Package session hosts one query editing session.
//
// A Session owns a builder and a writer for a single root source. Edits
// arrive as Op command objects (from the CLI, the scenario harness or the
// HTTP server) and are applied with Apply. Every Apply either commits
// fully, with the summary and runnability re-derived from the new query,
// or leaves the session exactly as it was.
//
// Committed changes go onto an undo stack. When a store is attached each
// change is also persisted as a snapshot stamped with a logical sequence
// number, so a session can be listed and resumed after a restart.
package session
