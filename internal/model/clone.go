package model

import "slices"

// Clone returns a deep copy of the query. A nil query clones to nil.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := &Query{
		Name:       q.Name,
		Pipeline:   make([]*Stage, len(q.Pipeline)),
		Annotation: q.Annotation.Clone(),
	}
	for i, s := range q.Pipeline {
		out.Pipeline[i] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of the stage.
func (s *Stage) Clone() *Stage {
	if s == nil {
		return nil
	}
	out := &Stage{
		Kind:       s.Kind,
		Fields:     make([]Entry, len(s.Fields)),
		Filters:    CloneFilters(s.Filters),
		OrderBy:    slices.Clone(s.OrderBy),
		Annotation: s.Annotation.Clone(),
	}
	if s.Limit != nil {
		n := *s.Limit
		out.Limit = &n
	}
	for i, e := range s.Fields {
		out.Fields[i] = CloneEntry(e)
	}
	return out
}

// CloneEntry returns a deep copy of a field entry.
func CloneEntry(e Entry) Entry {
	switch e := e.(type) {
	case *Reference:
		return &Reference{Path: e.Path, Annotation: e.Annotation.Clone()}
	case *Renamed:
		return &Renamed{As: e.As, Path: e.Path, Annotation: e.Annotation.Clone()}
	case *Filtered:
		return &Filtered{As: e.As, Path: e.Path, Filters: CloneFilters(e.Filters), Annotation: e.Annotation.Clone()}
	case *Inline:
		return &Inline{Field: e.Field.Clone()}
	case *Nested:
		return &Nested{Query: e.Query.Clone()}
	default:
		return nil
	}
}

// CloneFilters returns a deep copy of a filter list. Nil stays nil.
func CloneFilters(fs []Filter) []Filter {
	if fs == nil {
		return nil
	}
	out := make([]Filter, len(fs))
	for i, f := range fs {
		out[i] = Filter{Code: f.Code, Kind: f.Kind, Expression: slices.Clone(f.Expression)}
	}
	return out
}

// Clone returns a deep copy of the annotation chain.
func (a *Annotation) Clone() *Annotation {
	if a == nil {
		return nil
	}
	return &Annotation{Inherits: a.Inherits.Clone(), Notes: slices.Clone(a.Notes)}
}

// Clone returns a deep copy of the atomic field.
func (a *Atomic) Clone() *Atomic {
	if a == nil {
		return nil
	}
	out := *a
	out.Annotation = a.Annotation.Clone()
	return &out
}

// CloneField returns a deep copy of a source field.
func CloneField(f Field) Field {
	switch f := f.(type) {
	case *Atomic:
		return f.Clone()
	case *Join:
		return &Join{Name: f.Name, Relationship: f.Relationship, Source: f.Source.Clone(), Annotation: f.Annotation.Clone()}
	case *Turtle:
		return &Turtle{Query: f.Query.Clone()}
	default:
		return nil
	}
}

// Clone returns a deep copy of the source.
func (s *Source) Clone() *Source {
	if s == nil {
		return nil
	}
	out := &Source{
		Name:       s.Name,
		Kind:       s.Kind,
		Fields:     make([]Field, len(s.Fields)),
		Parameters: make([]Parameter, len(s.Parameters)),
		Annotation: s.Annotation.Clone(),
	}
	for i, f := range s.Fields {
		out.Fields[i] = CloneField(f)
	}
	for i, p := range s.Parameters {
		out.Parameters[i] = p
		if p.Default != nil {
			d := *p.Default
			out.Parameters[i].Default = &d
		}
	}
	return out
}
