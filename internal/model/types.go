package model

import (
	"encoding/json"
	"strings"
)

// ValueType is the atomic type of a leaf field.
type ValueType string

const (
	TypeString      ValueType = "string"
	TypeNumber      ValueType = "number"
	TypeBoolean     ValueType = "boolean"
	TypeDate        ValueType = "date"
	TypeTimestamp   ValueType = "timestamp"
	TypeJSON        ValueType = "json"
	TypeUnsupported ValueType = "unsupported"
)

// ValidValueTypes defines allowed atomic types.
var ValidValueTypes = map[ValueType]bool{
	TypeString:      true,
	TypeNumber:      true,
	TypeBoolean:     true,
	TypeDate:        true,
	TypeTimestamp:   true,
	TypeJSON:        true,
	TypeUnsupported: true,
}

// IsTemporal reports whether values of this type are dates or timestamps.
func (t ValueType) IsTemporal() bool {
	return t == TypeDate || t == TypeTimestamp
}

// ExprKind classifies how a field's value is computed.
type ExprKind string

const (
	ExprScalar      ExprKind = "scalar"
	ExprAggregate   ExprKind = "aggregate"
	ExprCalculation ExprKind = "calculation"
)

// IsAggregating reports whether the expression involves aggregation.
// The empty kind is treated as scalar.
func (k ExprKind) IsAggregating() bool {
	return k == ExprAggregate || k == ExprCalculation
}

// StageKind is the operation a pipeline stage performs.
type StageKind string

const (
	StageReduce  StageKind = "reduce"
	StageProject StageKind = "project"
	StageIndex   StageKind = "index"
)

// ValidStageKinds defines allowed stage kinds.
var ValidStageKinds = map[StageKind]bool{
	StageReduce:  true,
	StageProject: true,
	StageIndex:   true,
}

// SourceKind describes where a source's rows come from.
type SourceKind string

const (
	SourceTable  SourceKind = "table"
	SourceSelect SourceKind = "sql_select"
	SourceQuery  SourceKind = "query"
	SourceNested SourceKind = "nested"
)

// Relationship is the cardinality of a join.
type Relationship string

const (
	JoinOne    Relationship = "one"
	JoinMany   Relationship = "many"
	JoinCross  Relationship = "cross"
	JoinNested Relationship = "nested"
)

// Direction is the sort direction of an ordering entry.
// The empty direction means "unspecified".
type Direction string

const (
	DirectionNone Direction = ""
	Ascending     Direction = "asc"
	Descending    Direction = "desc"
)

// Model is a compiled semantic model: a named collection of sources.
type Model struct {
	Name    string    `json:"name"`
	Sources []*Source `json:"sources"`
}

// Source finds a source by name. Returns nil if absent.
func (m *Model) Source(name string) *Source {
	if m == nil {
		return nil
	}
	for _, s := range m.Sources {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Source is a schema: a named collection of field definitions.
type Source struct {
	Name       string      `json:"name"`
	Kind       SourceKind  `json:"kind,omitempty"`
	Fields     []Field     `json:"fields"`
	Parameters []Parameter `json:"parameters,omitempty"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// Field finds a field by name. Returns nil if absent.
func (s *Source) Field(name string) Field {
	if s == nil {
		return nil
	}
	for _, f := range s.Fields {
		if f.FieldName() == name {
			return f
		}
	}
	return nil
}

// Parameter finds a declared parameter by name.
func (s *Source) Parameter(name string) (Parameter, bool) {
	if s == nil {
		return Parameter{}, false
	}
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Parameter is a declared source argument with an optional default.
// Default holds literal source text (e.g. `'CA'`, `10`, `@2020-01-01`).
type Parameter struct {
	Name    string    `json:"name"`
	Type    ValueType `json:"type"`
	Default *string   `json:"default,omitempty"`
}

// Field is a member of a Source.
//
// This is a sealed interface - only *Atomic, *Join and *Turtle implement it.
type Field interface {
	FieldName() string
	fieldNode()
}

// Atomic is a leaf field: a dimension, measure or calculation.
// Code holds the defining source text; raw table columns have none.
type Atomic struct {
	Name       string      `json:"name"`
	Type       ValueType   `json:"type"`
	Expression ExprKind    `json:"expression,omitempty"`
	Code       string      `json:"code,omitempty"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

func (a *Atomic) FieldName() string { return a.Name }
func (*Atomic) fieldNode()          {}

// Join is a field holding another source.
type Join struct {
	Name         string       `json:"name"`
	Relationship Relationship `json:"relationship,omitempty"`
	Source       *Source      `json:"source"`
	Annotation   *Annotation  `json:"annotation,omitempty"`
}

func (j *Join) FieldName() string { return j.Name }
func (*Join) fieldNode()          {}

// Turtle is a named query stored as a field of a source.
type Turtle struct {
	Query *Query `json:"query"`
}

func (t *Turtle) FieldName() string {
	if t.Query == nil {
		return ""
	}
	return t.Query.Name
}
func (*Turtle) fieldNode() {}

// Query is a named pipeline of stages.
// The same type describes the query under construction, nested queries
// embedded in a stage, and turtles declared on a source.
type Query struct {
	Name       string      `json:"name,omitempty"`
	Pipeline   []*Stage    `json:"pipeline"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// NewQuery returns a query with a single blank reduce stage.
func NewQuery(name string) *Query {
	return &Query{Name: name, Pipeline: []*Stage{NewStage(StageReduce)}}
}

// IsRunnable reports whether every stage of q, including the stages of
// nested queries, has at least one field entry.
func (q *Query) IsRunnable() bool {
	if q == nil || len(q.Pipeline) == 0 {
		return false
	}
	for _, stage := range q.Pipeline {
		if len(stage.Fields) == 0 {
			return false
		}
		for _, e := range stage.Fields {
			if n, ok := e.(*Nested); ok && !n.Query.IsRunnable() {
				return false
			}
		}
	}
	return true
}

// Stage is one segment of a pipeline.
type Stage struct {
	Kind       StageKind   `json:"kind"`
	Fields     []Entry     `json:"fields"`
	Filters    []Filter    `json:"filters,omitempty"`
	Limit      *int        `json:"limit,omitempty"`
	OrderBy    []OrderBy   `json:"order_by,omitempty"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// NewStage returns an empty stage of the given kind.
func NewStage(kind StageKind) *Stage {
	return &Stage{Kind: kind, Fields: []Entry{}}
}

// IsEmpty reports whether the stage carries nothing at all.
func (s *Stage) IsEmpty() bool {
	return len(s.Fields) == 0 && len(s.Filters) == 0 && s.Limit == nil && len(s.OrderBy) == 0
}

// Filter is a filter condition. Expression is opaque to the composer;
// only Code (the rendered source text) and Kind are interpreted.
type Filter struct {
	Code       string          `json:"code"`
	Kind       ExprKind        `json:"kind,omitempty"`
	Expression json.RawMessage `json:"expression,omitempty"`
}

// IsHaving reports whether the filter belongs in a having clause.
func (f Filter) IsHaving() bool {
	return f.Kind.IsAggregating()
}

// OrderBy is one ordering key, naming an output field.
type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction,omitempty"`
}

// Annotation holds tag lines (e.g. "# bar_chart") attached to a query,
// stage or field. Inherits points at the annotation of the definition this
// one was derived from.
type Annotation struct {
	Inherits *Annotation `json:"inherits,omitempty"`
	Notes    []string    `json:"notes,omitempty"`
}

// IsEmpty reports whether the annotation carries no notes at any level.
func (a *Annotation) IsEmpty() bool {
	if a == nil {
		return true
	}
	return len(a.Notes) == 0 && a.Inherits.IsEmpty()
}

// Entry is a field entry inside a stage.
//
// This is a sealed interface - only types in this package implement it.
//
// Entry types:
//   - Reference: a dotted path into the stage's input schema
//   - Renamed:   a new name bound to an existing field
//   - Filtered:  a new name bound to an existing field plus its own filters
//   - Inline:    a fully specified leaf with its own source text
//   - Nested:    an embedded query (turtle)
type Entry interface {
	// Name is the output name the entry produces.
	Name() string
	// EntryAnnotation returns the entry's own annotation (may be nil).
	EntryAnnotation() *Annotation
	// SetEntryAnnotation replaces the entry's own annotation.
	SetEntryAnnotation(*Annotation)
	entryNode()
}

// Reference is a bare path into the input schema.
type Reference struct {
	Path       string      `json:"path"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

func (r *Reference) Name() string                     { return LastSegment(r.Path) }
func (r *Reference) EntryAnnotation() *Annotation     { return r.Annotation }
func (r *Reference) SetEntryAnnotation(a *Annotation) { r.Annotation = a }
func (*Reference) entryNode()                         {}

// Renamed binds As to the value of the field at Path.
type Renamed struct {
	As         string      `json:"as"`
	Path       string      `json:"path"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

func (r *Renamed) Name() string                     { return r.As }
func (r *Renamed) EntryAnnotation() *Annotation     { return r.Annotation }
func (r *Renamed) SetEntryAnnotation(a *Annotation) { r.Annotation = a }
func (*Renamed) entryNode()                         {}

// Filtered binds As to the value of the field at Path, evaluated under
// Filters independently of the enclosing stage's filters.
type Filtered struct {
	As         string      `json:"as"`
	Path       string      `json:"path"`
	Filters    []Filter    `json:"filters"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

func (f *Filtered) Name() string                     { return f.As }
func (f *Filtered) EntryAnnotation() *Annotation     { return f.Annotation }
func (f *Filtered) SetEntryAnnotation(a *Annotation) { f.Annotation = a }
func (*Filtered) entryNode()                         {}

// Inline is a leaf defined in place by source text.
type Inline struct {
	Field *Atomic `json:"field"`
}

func (i *Inline) Name() string                     { return i.Field.Name }
func (i *Inline) EntryAnnotation() *Annotation     { return i.Field.Annotation }
func (i *Inline) SetEntryAnnotation(a *Annotation) { i.Field.Annotation = a }
func (*Inline) entryNode()                         {}

// Nested is an embedded query.
type Nested struct {
	Query *Query `json:"query"`
}

func (n *Nested) Name() string                     { return n.Query.Name }
func (n *Nested) EntryAnnotation() *Annotation     { return n.Query.Annotation }
func (n *Nested) SetEntryAnnotation(a *Annotation) { n.Query.Annotation = a }
func (*Nested) entryNode()                         {}

// SplitPath splits a dotted field path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// LastSegment returns the final segment of a dotted path.
func LastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
