// Package writer projects a query definition into its two outputs: a
// structured summary for the composer UI, and Malloy source text.
//
// Both projections walk the pipeline together with the schema each stage
// reads, using the same schema.Navigator the builder mutates through.
// Rendering is deterministic: the same query, arguments and schema always
// produce byte-identical text.
package writer

import (
	"fmt"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
)

// Writer renders queries composed against one root source.
type Writer struct {
	nav *schema.Navigator
}

// New returns a Writer that resolves fields with nav.
func New(nav *schema.Navigator) *Writer {
	return &Writer{nav: nav}
}

// Source returns the root source.
func (w *Writer) Source() *model.Source {
	return w.nav.Root
}

// CanRun reports whether q may be handed to the compiler: every stage,
// including those of nested queries, has at least one field entry.
func CanRun(q *model.Query) bool {
	return q.IsRunnable()
}

// Property is the clause a field entry is written under.
type Property string

const (
	GroupBy   Property = "group_by"
	Aggregate Property = "aggregate"
	Calculate Property = "calculate"
	Nest      Property = "nest"
	Select    Property = "select"
	Index     Property = "index"
)

// property returns the clause for field f in a stage of the given kind.
func property(kind model.StageKind, f model.Field) (Property, error) {
	if _, ok := f.(*model.Turtle); ok {
		return Nest, nil
	}
	switch kind {
	case model.StageIndex:
		return Index, nil
	case model.StageProject:
		if _, ok := f.(*model.Join); ok {
			return "", fmt.Errorf("join %q cannot be selected", f.FieldName())
		}
		return Select, nil
	}
	switch f := f.(type) {
	case *model.Atomic:
		return expressionProperty(f.Expression), nil
	case *model.Join:
		return "", fmt.Errorf("join %q cannot be grouped", f.Name)
	}
	return "", fmt.Errorf("unsupported field type %T", f)
}

func expressionProperty(k model.ExprKind) Property {
	switch k {
	case model.ExprAggregate:
		return Aggregate
	case model.ExprCalculation:
		return Calculate
	default:
		return GroupBy
	}
}

// entryProperty returns the clause an entry is written under, resolving
// references against input.
func (w *Writer) entryProperty(kind model.StageKind, input *model.Source, e model.Entry) (Property, error) {
	switch e := e.(type) {
	case *model.Nested:
		return Nest, nil
	case *model.Inline:
		switch kind {
		case model.StageIndex:
			return Index, nil
		case model.StageProject:
			return Select, nil
		}
		return expressionProperty(e.Field.Expression), nil
	}
	if input == nil {
		return "", fmt.Errorf("field %s: input schema unavailable", e.Name())
	}
	f, err := w.nav.ResolveField(input, referencePath(e))
	if err != nil {
		return "", err
	}
	return property(kind, f)
}

func referencePath(e model.Entry) string {
	switch e := e.(type) {
	case *model.Reference:
		return e.Path
	case *model.Renamed:
		return e.Path
	case *model.Filtered:
		return e.Path
	}
	return ""
}
