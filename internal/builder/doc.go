// Package builder is the mutation engine for a query under construction.
//
// A Builder owns one query definition composed against a root source. Its
// methods are the structural edits a visual composer offers: adding,
// toggling, renaming and removing fields; per-field and per-stage
// filters; ordering and limits; nested queries and extra stages; loading
// a named query from the source; renderer choices; parameter overrides.
//
// # Addressing
//
// Stages are addressed with stagepath.Path. When an address crosses a
// field that is only a reference to a turtle declared on the source, the
// builder embeds a copy of the turtle in place of the reference and
// retries. Expansion happens at most once per reference and only for
// turtles; any other field on the way is an INVALID_STAGE error.
//
// # Atomicity
//
// Each mutation runs against a private copy of the state and is committed
// only when it succeeds. Callers do not need to snapshot around a single
// call; Snapshot and Restore exist for multi-step operations such as a
// session re-deriving its summary after a change.
//
// # Field order
//
// New entries are inserted so that a stage reads dimensions, then
// measures and calculations, then nested queries, then joins, each group
// alphabetical by output name. The query writer relies on this grouping
// to batch entries under one clause keyword.
package builder
