package writer

import (
	"github.com/roach88/composer/internal/filterexpr"
	"github.com/roach88/composer/internal/measure"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/tags"
)

// ItemType classifies a field entry in the summary.
type ItemType string

const (
	ItemField                 ItemType = "field"
	ItemRenamedField          ItemType = "renamed_field"
	ItemFilteredField         ItemType = "filtered_field"
	ItemFieldDefinition       ItemType = "field_definition"
	ItemNestedQueryDefinition ItemType = "nested_query_definition"
	ItemError                 ItemType = "error_field"
)

// DisplayKind is how the UI presents a field.
type DisplayKind string

const (
	KindDimension DisplayKind = "dimension"
	KindMeasure   DisplayKind = "measure"
	KindQuery     DisplayKind = "query"
	KindSource    DisplayKind = "source"
)

// Summary is the structured view of a query.
type Summary struct {
	Name     string         `json:"name,omitempty"`
	Renderer tags.Renderer  `json:"renderer,omitempty"`
	CanRun   bool           `json:"can_run"`
	Stages   []StageSummary `json:"stages"`
}

// StageSummary describes one stage.
type StageSummary struct {
	Path    stagepath.Path  `json:"path"`
	Kind    model.StageKind `json:"kind"`
	Fields  []FieldItem     `json:"fields"`
	Filters []FilterItem    `json:"filters,omitempty"`
	OrderBy []OrderItem     `json:"order_by,omitempty"`
	Limit   *int            `json:"limit,omitempty"`
	// Error is set when the stage's input schema could not be computed.
	Error string `json:"error,omitempty"`
}

// FieldItem describes one field entry.
type FieldItem struct {
	Type      ItemType        `json:"type"`
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Path      string          `json:"path,omitempty"`
	Kind      DisplayKind     `json:"kind,omitempty"`
	ValueType model.ValueType `json:"value_type,omitempty"`
	Property  Property        `json:"property,omitempty"`
	Orderable bool            `json:"orderable"`
	Renderer  tags.Renderer   `json:"renderer,omitempty"`
	// Filters are the entry's own filters (filtered fields only).
	Filters []FilterItem `json:"filters,omitempty"`
	// Code and Definition describe inline definitions.
	Code       string            `json:"code,omitempty"`
	Definition *measure.Template `json:"definition,omitempty"`
	// Stages summarise nested queries.
	Stages []StageSummary `json:"stages,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// FilterItem describes one filter.
type FilterItem struct {
	Index  int               `json:"index"`
	Code   string            `json:"code"`
	Having bool              `json:"having"`
	Parsed filterexpr.Filter `json:"parsed"`
}

// OrderItem describes one ordering key. FieldIndex is the position of the
// entry it names, or -1 when no entry has that name.
type OrderItem struct {
	Index      int             `json:"index"`
	Field      string          `json:"field"`
	Direction  model.Direction `json:"direction,omitempty"`
	FieldIndex int             `json:"field_index"`
}

// Summary builds the structured view of q. Resolution failures are
// recorded on the affected entries; sibling entries are still summarised.
func (w *Writer) Summary(q *model.Query) *Summary {
	return &Summary{
		Name:     q.Name,
		Renderer: tags.Parse(q.Annotation),
		CanRun:   CanRun(q),
		Stages:   w.stages(q.Pipeline, w.nav.Root, nil),
	}
}

func (w *Writer) stages(pipeline []*model.Stage, input *model.Source, parts []stagepath.Part) []StageSummary {
	out := make([]StageSummary, 0, len(pipeline))
	cur := input
	var inputErr error
	for i, s := range pipeline {
		path := stagepath.Path{Parts: parts, StageIndex: i}
		ss := StageSummary{
			Path:   path,
			Kind:   s.Kind,
			Fields: make([]FieldItem, 0, len(s.Fields)),
			Limit:  s.Limit,
		}
		if inputErr != nil {
			ss.Error = inputErr.Error()
		}
		for j, e := range s.Fields {
			ss.Fields = append(ss.Fields, w.field(s, cur, j, e, parts, i))
		}
		for j, f := range s.Filters {
			ss.Filters = append(ss.Filters, w.filterItem(j, f, cur))
		}
		for j, o := range s.OrderBy {
			ss.OrderBy = append(ss.OrderBy, OrderItem{
				Index:      j,
				Field:      o.Field,
				Direction:  o.Direction,
				FieldIndex: fieldIndex(s, o.Field),
			})
		}
		out = append(out, ss)

		if cur != nil && i < len(pipeline)-1 {
			next, err := w.nav.Eval.NextSchema(cur, s)
			if err != nil {
				inputErr = err
			}
			cur = next
		}
	}
	return out
}

func fieldIndex(s *model.Stage, name string) int {
	for i, e := range s.Fields {
		if e.Name() == name {
			return i
		}
	}
	return -1
}

func (w *Writer) filterItem(idx int, f model.Filter, input *model.Source) FilterItem {
	var typeOf filterexpr.TypeFunc
	if input != nil {
		typeOf = func(path string) (model.ValueType, bool) {
			a, ok := w.resolveAtomic(input, path)
			if !ok {
				return "", false
			}
			return a.Type, true
		}
	}
	return FilterItem{
		Index:  idx,
		Code:   f.Code,
		Having: f.IsHaving(),
		Parsed: filterexpr.Parse(f.Code, typeOf),
	}
}

func (w *Writer) resolveAtomic(input *model.Source, path string) (*model.Atomic, bool) {
	f, err := w.nav.ResolveField(input, path)
	if err != nil {
		return nil, false
	}
	a, ok := f.(*model.Atomic)
	return a, ok
}

func (w *Writer) field(s *model.Stage, input *model.Source, idx int, e model.Entry, parts []stagepath.Part, stageIdx int) FieldItem {
	item := FieldItem{Index: idx, Name: e.Name()}
	fail := func(err error) FieldItem {
		item.Type = ItemError
		item.Error = err.Error()
		item.Orderable = false
		return item
	}

	switch e := e.(type) {
	case *model.Inline:
		item.Type = ItemFieldDefinition
		item.Code = e.Field.Code
		item.ValueType = e.Field.Type
		item.Kind = kindOfExpression(e.Field.Expression)
		item.Orderable = orderable(e.Field.Type)
		item.Renderer = tags.Parse(e.Field.Annotation)
		if t := measure.Parse(e.Field.Code); t.Kind != measure.KindCustom {
			item.Definition = &t
		}
		prop, err := w.entryProperty(s.Kind, input, e)
		if err != nil {
			return fail(err)
		}
		item.Property = prop
		return item
	case *model.Nested:
		item.Type = ItemNestedQueryDefinition
		item.Kind = KindQuery
		item.Property = Nest
		item.Renderer = tags.Parse(e.Query.Annotation)
		if input != nil {
			nested := append(append([]stagepath.Part(nil), parts...), stagepath.Part{StageIndex: stageIdx, FieldIndex: idx})
			item.Stages = w.stages(e.Query.Pipeline, input, nested)
		}
		return item
	case *model.Reference:
		item.Type = ItemField
	case *model.Renamed:
		item.Type = ItemRenamedField
	case *model.Filtered:
		item.Type = ItemFilteredField
		for j, f := range e.Filters {
			item.Filters = append(item.Filters, w.filterItem(j, f, input))
		}
	}

	item.Path = referencePath(e)
	if input == nil {
		return fail(errNoInput)
	}
	res, err := w.nav.Resolve(input, item.Path)
	if err != nil {
		return fail(err)
	}
	prop, err := property(s.Kind, res.Field)
	if err != nil {
		return fail(err)
	}
	item.Property = prop

	inherited := fieldAnnotation(res.Field)
	if a := e.EntryAnnotation(); a != nil {
		item.Renderer = tags.Parse(a)
	} else {
		item.Renderer = tags.Parse(inherited)
	}

	switch f := res.Field.(type) {
	case *model.Atomic:
		item.Kind = kindOfExpression(f.Expression)
		item.ValueType = f.Type
		item.Orderable = orderable(f.Type)
	case *model.Turtle:
		item.Kind = KindQuery
		nested := append(append([]stagepath.Part(nil), parts...), stagepath.Part{StageIndex: stageIdx, FieldIndex: idx})
		item.Stages = w.stages(f.Query.Pipeline, res.Owner, nested)
	case *model.Join:
		item.Kind = KindSource
	}
	return item
}

type summaryError string

func (e summaryError) Error() string { return string(e) }

const errNoInput = summaryError("input schema unavailable")

func kindOfExpression(k model.ExprKind) DisplayKind {
	if k.IsAggregating() {
		return KindMeasure
	}
	return KindDimension
}

func orderable(t model.ValueType) bool {
	return t != model.TypeUnsupported && t != model.TypeJSON
}

func fieldAnnotation(f model.Field) *model.Annotation {
	switch f := f.(type) {
	case *model.Atomic:
		return f.Annotation
	case *model.Join:
		return f.Annotation
	case *model.Turtle:
		return f.Query.Annotation
	}
	return nil
}
