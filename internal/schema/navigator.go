// Package schema navigates the schemas a query is composed against.
//
// A Navigator pairs the root source schema with an Evaluator and answers
// three questions the builder and the writer both ask:
//
//   - Resolve: which field does a dotted path name, starting from a schema?
//   - Trace: what schema does each stage of a pipeline see as input?
//   - Locate: which stage does a stagepath.Path address, and what is its input?
//
// Nothing here mutates a query. Locate reports a NotAStageError when an
// address crosses a bare turtle reference; expanding the reference is the
// caller's decision.
package schema

import (
	"fmt"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
)

// Navigator resolves fields and stages relative to a root schema.
type Navigator struct {
	Root *model.Source
	Eval Evaluator
}

// NewNavigator returns a Navigator over root. A nil eval selects a
// StandardEvaluator rooted at the same schema.
func NewNavigator(root *model.Source, eval Evaluator) *Navigator {
	if eval == nil {
		eval = &StandardEvaluator{Root: root}
	}
	return &Navigator{Root: root, Eval: eval}
}

// Resolution is the result of resolving a dotted path.
type Resolution struct {
	// Field is the definition the last segment names.
	Field model.Field
	// Owner is the schema the last segment was found in.
	Owner *model.Source
}

// Resolve looks up a dotted path in src.
//
// Intermediate join segments descend into the join's schema. Intermediate
// turtle segments descend into the output schema of the turtle's pipeline,
// evaluated from the navigator's root. Any other intermediate segment is a
// NotNavigableError; a missing segment is a FieldNotFoundError.
func (n *Navigator) Resolve(src *model.Source, path string) (Resolution, error) {
	segs := model.SplitPath(path)
	if len(segs) == 0 {
		return Resolution{}, &FieldNotFoundError{Path: path, Segment: path, Source: sourceName(src)}
	}
	cur := src
	for i, seg := range segs {
		f := cur.Field(seg)
		if f == nil {
			return Resolution{}, &FieldNotFoundError{Path: path, Segment: seg, Source: sourceName(cur)}
		}
		if i == len(segs)-1 {
			return Resolution{Field: f, Owner: cur}, nil
		}
		switch f := f.(type) {
		case *model.Join:
			cur = f.Source
		case *model.Turtle:
			trace, err := n.Trace(n.Root, f.Query.Pipeline)
			if err != nil {
				return Resolution{}, fmt.Errorf("resolving %q through %q: %w", path, seg, err)
			}
			cur = trace.Output
		default:
			return Resolution{}, &NotNavigableError{Path: path, Segment: seg}
		}
	}
	panic("unreachable")
}

// ResolveField is Resolve returning only the field.
func (n *Navigator) ResolveField(src *model.Source, path string) (model.Field, error) {
	res, err := n.Resolve(src, path)
	if err != nil {
		return nil, err
	}
	return res.Field, nil
}

func sourceName(s *model.Source) string {
	if s == nil {
		return ""
	}
	return s.Name
}

// PipelineTrace is the schema flow through a pipeline.
type PipelineTrace struct {
	// Inputs[i] is the schema stage i reads. Inputs[0] is the pipeline input.
	Inputs []*model.Source
	// Output is the schema of the last stage. Nil when the trace failed.
	Output *model.Source
}

// Trace evaluates a pipeline stage by stage.
//
// On error the returned trace holds the inputs computed so far, so that
// callers rendering a partially broken query can still describe the
// leading stages.
func (n *Navigator) Trace(input *model.Source, pipeline []*model.Stage) (PipelineTrace, error) {
	trace := PipelineTrace{Inputs: make([]*model.Source, 0, len(pipeline))}
	cur := input
	for i, stage := range pipeline {
		trace.Inputs = append(trace.Inputs, cur)
		next, err := n.Eval.NextSchema(cur, stage)
		if err != nil {
			return trace, fmt.Errorf("stage %d: %w", i, err)
		}
		cur = next
	}
	trace.Output = cur
	return trace, nil
}

// Location is a stage found by Locate.
type Location struct {
	// Path is the address that was located.
	Path stagepath.Path
	// Query owns the pipeline holding the stage.
	Query *model.Query
	// Index is the stage's position in Query.Pipeline.
	Index int
	// Stage is Query.Pipeline[Index].
	Stage *model.Stage
	// Input is the schema the stage reads.
	Input *model.Source
}

// Locate finds the stage addressed by p inside q, whose first stage reads
// the navigator's root schema.
//
// When p crosses an entry that is a plain reference to a turtle, Locate
// returns a *NotAStageError identifying that entry.
func (n *Navigator) Locate(q *model.Query, p stagepath.Path) (*Location, error) {
	return n.locate(q, n.Root, p, p, nil)
}

func (n *Navigator) locate(q *model.Query, input *model.Source, rel, full stagepath.Path, parts []stagepath.Part) (*Location, error) {
	head, rest, nested := stagepath.Pop(rel)
	if head.StageIndex < 0 || head.StageIndex >= len(q.Pipeline) {
		return nil, &StageNotFoundError{
			Path:   full,
			Reason: fmt.Sprintf("stage index %d out of range (pipeline has %d stages)", head.StageIndex, len(q.Pipeline)),
		}
	}
	trace, err := n.Trace(input, q.Pipeline[:head.StageIndex])
	if err != nil {
		return nil, err
	}
	in := trace.Output
	stage := q.Pipeline[head.StageIndex]
	if !nested {
		return &Location{Path: full, Query: q, Index: head.StageIndex, Stage: stage, Input: in}, nil
	}

	if head.FieldIndex < 0 || head.FieldIndex >= len(stage.Fields) {
		return nil, &StageNotFoundError{
			Path:   full,
			Reason: fmt.Sprintf("field index %d out of range (stage has %d fields)", head.FieldIndex, len(stage.Fields)),
		}
	}
	switch e := stage.Fields[head.FieldIndex].(type) {
	case *model.Nested:
		return n.locate(e.Query, in, rest, full, append(parts, head))
	case *model.Reference:
		f, err := n.ResolveField(in, e.Path)
		if err != nil {
			return nil, err
		}
		if t, ok := f.(*model.Turtle); ok {
			return nil, &NotAStageError{
				Parent:     stagepath.Path{Parts: append([]stagepath.Part(nil), parts...), StageIndex: head.StageIndex},
				FieldIndex: head.FieldIndex,
				Turtle:     t,
			}
		}
	}
	return nil, &StageNotFoundError{
		Path:   full,
		Reason: fmt.Sprintf("field %d (%s) is not a nested query", head.FieldIndex, stage.Fields[head.FieldIndex].Name()),
	}
}
