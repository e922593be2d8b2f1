package schema

import (
	"fmt"

	"github.com/roach88/composer/internal/model"
)

// Evaluator computes the schema a pipeline stage produces.
//
// This is the collaborator boundary to the semantic-model library: the
// composer never infers types itself, it asks an Evaluator. Implementations
// return an error for structurally invalid stages.
type Evaluator interface {
	NextSchema(input *model.Source, stage *model.Stage) (*model.Source, error)
}

// IndexFields is the fixed output schema of an index stage.
var IndexFields = []model.Field{
	&model.Atomic{Name: "fieldName", Type: model.TypeString, Expression: model.ExprScalar},
	&model.Atomic{Name: "fieldPath", Type: model.TypeString, Expression: model.ExprScalar},
	&model.Atomic{Name: "fieldValue", Type: model.TypeString, Expression: model.ExprScalar},
	&model.Atomic{Name: "fieldType", Type: model.TypeString, Expression: model.ExprScalar},
	&model.Atomic{Name: "fieldRange", Type: model.TypeString, Expression: model.ExprScalar},
	&model.Atomic{Name: "weight", Type: model.TypeNumber, Expression: model.ExprScalar},
}

// StandardEvaluator is the built-in Evaluator. It follows the semantic
// model's output rules closely enough for composing:
//   - reduce and project stages output one field per entry, in entry order
//   - every output leaf is a scalar dimension (aggregates are materialised)
//   - nested queries and turtle references output nested joins whose
//     schema is the evaluated inner pipeline
//   - index stages output IndexFields
//
// Root is the schema turtles are evaluated from when a path traverses
// one. A nil Root falls back to the stage input.
type StandardEvaluator struct {
	Root *model.Source
}

// NextSchema implements Evaluator.
func (ev *StandardEvaluator) NextSchema(input *model.Source, stage *model.Stage) (*model.Source, error) {
	if stage == nil {
		return nil, fmt.Errorf("nil stage")
	}
	out := &model.Source{Name: input.Name, Kind: model.SourceQuery}

	if stage.Kind == model.StageIndex {
		for _, f := range IndexFields {
			out.Fields = append(out.Fields, model.CloneField(f))
		}
		return out, nil
	}
	if !model.ValidStageKinds[stage.Kind] {
		return nil, fmt.Errorf("unknown stage kind %q", stage.Kind)
	}

	nav := &Navigator{Root: ev.root(input), Eval: ev}
	seen := make(map[string]bool, len(stage.Fields))
	for i, e := range stage.Fields {
		f, err := nav.outputField(input, stage.Kind, e)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, e.Name(), err)
		}
		if seen[f.FieldName()] {
			return nil, fmt.Errorf("field %d: output name %q is already defined", i, f.FieldName())
		}
		seen[f.FieldName()] = true
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

func (ev *StandardEvaluator) root(input *model.Source) *model.Source {
	if ev.Root != nil {
		return ev.Root
	}
	return input
}

// outputField computes the field an entry contributes to a stage's output.
func (n *Navigator) outputField(input *model.Source, kind model.StageKind, e model.Entry) (model.Field, error) {
	switch e := e.(type) {
	case *model.Reference:
		return n.outputForPath(input, e.Name(), e.Path)
	case *model.Renamed:
		return n.outputForPath(input, e.As, e.Path)
	case *model.Filtered:
		return n.outputForPath(input, e.As, e.Path)
	case *model.Inline:
		return &model.Atomic{
			Name:       e.Field.Name,
			Type:       e.Field.Type,
			Expression: model.ExprScalar,
			Annotation: e.Field.Annotation.Clone(),
		}, nil
	case *model.Nested:
		if kind != model.StageReduce {
			return nil, fmt.Errorf("nested queries are only allowed in reduce stages")
		}
		trace, err := n.Trace(input, e.Query.Pipeline)
		if err != nil {
			return nil, err
		}
		return &model.Join{Name: e.Query.Name, Relationship: model.JoinNested, Source: trace.Output}, nil
	default:
		return nil, fmt.Errorf("unsupported entry type: %T", e)
	}
}

func (n *Navigator) outputForPath(input *model.Source, name, path string) (model.Field, error) {
	res, err := n.Resolve(input, path)
	if err != nil {
		return nil, err
	}
	switch f := res.Field.(type) {
	case *model.Atomic:
		return &model.Atomic{
			Name:       name,
			Type:       f.Type,
			Expression: model.ExprScalar,
			Annotation: f.Annotation.Clone(),
		}, nil
	case *model.Turtle:
		trace, err := n.Trace(res.Owner, f.Query.Pipeline)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", path, err)
		}
		return &model.Join{
			Name:         name,
			Relationship: model.JoinNested,
			Source:       trace.Output,
			Annotation:   f.Query.Annotation.Clone(),
		}, nil
	case *model.Join:
		return nil, fmt.Errorf("join %q cannot be output by a reduce or project stage", path)
	default:
		return nil, fmt.Errorf("unsupported field type: %T", f)
	}
}
