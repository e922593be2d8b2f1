package builder

import (
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
	"github.com/roach88/composer/internal/stagepath"
)

// Builder owns one query under construction against a root source.
//
// Every mutation is copy-on-write: it runs against a clone of the owned
// state and replaces it only when the whole mutation succeeds. A failed
// mutation returns an error and leaves the builder untouched.
//
// Builder is not safe for concurrent use; a session owns exactly one.
type Builder struct {
	root *model.Source
	nav  *schema.Navigator
	st   *state
}

// state is everything a mutation may change.
type state struct {
	query *model.Query
	args  map[string]string
}

func (s *state) clone() *state {
	return &state{query: s.query.Clone(), args: maps.Clone(s.args)}
}

// New returns a builder over root holding a blank query. A nil eval
// selects schema.StandardEvaluator.
func New(root *model.Source, eval schema.Evaluator) *Builder {
	return &Builder{
		root: root,
		nav:  schema.NewNavigator(root, eval),
		st:   &state{query: model.NewQuery(""), args: map[string]string{}},
	}
}

// Source returns the root source the query is composed against.
func (b *Builder) Source() *model.Source {
	return b.root
}

// Navigator returns the navigator the builder resolves paths with.
func (b *Builder) Navigator() *schema.Navigator {
	return b.nav
}

// Query returns a copy of the owned query.
func (b *Builder) Query() *model.Query {
	return b.st.query.Clone()
}

// SetQuery replaces the owned query with a copy of q. A nil q or one with
// an empty pipeline is replaced by a blank query.
func (b *Builder) SetQuery(q *model.Query) {
	if q == nil || len(q.Pipeline) == 0 {
		b.st.query = model.NewQuery("")
		return
	}
	b.st.query = q.Clone()
}

// Clear resets the query to a single empty reduce stage and drops all
// argument overrides.
func (b *Builder) Clear() {
	b.st = &state{query: model.NewQuery(""), args: map[string]string{}}
}

// IsEmpty reports whether the query is a single stage carrying nothing.
func (b *Builder) IsEmpty() bool {
	p := b.st.query.Pipeline
	return len(p) == 1 && p[0].IsEmpty()
}

// Name returns the query's display name.
func (b *Builder) Name() string {
	return b.st.query.Name
}

// SetName sets the query's display name.
func (b *Builder) SetName(name string) {
	b.st.query.Name = name
}

// Arguments returns a copy of the parameter overrides, keyed by parameter
// name, valued by literal source text.
func (b *Builder) Arguments() map[string]string {
	return maps.Clone(b.st.args)
}

// Snapshot is an opaque copy of the builder state.
type Snapshot struct {
	Query     *model.Query
	Arguments map[string]string
}

// Snapshot captures the current state.
func (b *Builder) Snapshot() Snapshot {
	s := b.st.clone()
	return Snapshot{Query: s.query, Arguments: s.args}
}

// Restore replaces the current state with a copy of s.
func (b *Builder) Restore(s Snapshot) {
	b.SetQuery(s.Query)
	b.st.args = maps.Clone(s.Arguments)
	if b.st.args == nil {
		b.st.args = map[string]string{}
	}
}

// mutate runs fn against a clone of the state and commits it on success.
func (b *Builder) mutate(fn func(st *state) error) error {
	next := b.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	b.st = next
	return nil
}

// locate finds the stage p addresses in q, expanding turtle references on
// the way until the address resolves to a literal stage.
func (b *Builder) locate(q *model.Query, p stagepath.Path) (*schema.Location, error) {
	for {
		loc, err := b.nav.Locate(q, p)
		if err == nil {
			return loc, nil
		}
		ns, ok := schema.AsNotAStage(err)
		if !ok {
			return nil, stageError(p, err)
		}
		if err := b.expand(q, ns); err != nil {
			return nil, err
		}
	}
}

// expand replaces the turtle reference ns identifies with an embedded
// copy of the turtle.
func (b *Builder) expand(q *model.Query, ns *schema.NotAStageError) error {
	parent, err := b.nav.Locate(q, ns.Parent)
	if err != nil {
		return stageError(ns.Parent, err)
	}
	ref, ok := parent.Stage.Fields[ns.FieldIndex].(*model.Reference)
	if !ok {
		return newError(ErrCodeNotAQuery, "field %d is not a query reference", ns.FieldIndex)
	}
	parent.Stage.Fields[ns.FieldIndex] = expandTurtle(ref, ns.Turtle)
	return nil
}

// expandTurtle embeds a copy of t in place of ref. The reference's own
// annotation wins over the turtle's.
func expandTurtle(ref *model.Reference, t *model.Turtle) *model.Nested {
	q := t.Query.Clone()
	q.Name = ref.Name()
	if ref.Annotation != nil {
		q.Annotation = ref.Annotation.Clone()
	}
	return &model.Nested{Query: q}
}

func stageError(p stagepath.Path, err error) error {
	var sn *schema.StageNotFoundError
	if errors.As(err, &sn) {
		return &MutationError{Code: ErrCodeInvalidStage, Message: sn.Reason, Stage: p.String(), Err: err}
	}
	return err
}

func entryAt(loc *schema.Location, idx int) (model.Entry, error) {
	if idx < 0 || idx >= len(loc.Stage.Fields) {
		return nil, &MutationError{
			Code:    ErrCodeIndexOutOfRange,
			Message: outOfRange("field", idx, len(loc.Stage.Fields)),
			Stage:   loc.Path.String(),
		}
	}
	return loc.Stage.Fields[idx], nil
}

func outOfRange(what string, idx, n int) string {
	return fmt.Sprintf("%s index %d out of range (have %d)", what, idx, n)
}
