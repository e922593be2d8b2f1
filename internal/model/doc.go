// Package model provides the semantic-model and query-definition types for
// the composer.
//
// This package contains type definitions, deep clone helpers and the JSON
// codec only. All other internal packages import model; model imports
// nothing internal. This keeps it the foundational layer with no circular
// dependencies.
//
// Two families of types live here:
//
// SEMANTIC SOURCE SCHEMA (read-only input):
//
//	Model  -> []*Source
//	Source -> []Field        (Field = *Atomic | *Join | *Turtle)
//	Turtle -> *Query         (a named pipeline stored as a field)
//
// QUERY DEFINITION (the mutable state owned by an editing session):
//
//	Query -> []*Stage
//	Stage -> []Entry         (Entry = *Reference | *Renamed | *Filtered | *Inline | *Nested)
//	Nested -> *Query         (an embedded pipeline)
//
// SEALED INTERFACES:
//
// Field and Entry are sealed interfaces using the marker method pattern.
// Only types in this package implement them, which makes type switches in
// the builder and writer exhaustive:
//
//	switch e := entry.(type) {
//	case *Reference:
//	case *Renamed:
//	case *Filtered:
//	case *Inline:
//	case *Nested:
//	}
//
// Key design constraints:
//   - A Query pipeline is never empty once it has passed through the builder
//   - Filters are opaque apart from their source text and expression kind
//   - All JSON tags use snake_case; unions carry a "kind" discriminator
package model
