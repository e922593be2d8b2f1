package builder

import (
	"slices"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
	"github.com/roach88/composer/internal/stagepath"
)

// AddFilter appends a stage-level filter.
func (b *Builder) AddFilter(p stagepath.Path, filter model.Filter) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		loc.Stage.Filters = append(loc.Stage.Filters, filter)
		return nil
	})
}

// EditFilter replaces filter filterIdx. With a nil fieldIdx it targets the
// stage's own filters; otherwise the filters attached to that field entry.
func (b *Builder) EditFilter(p stagepath.Path, filterIdx int, filter model.Filter, fieldIdx *int) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		filters, err := filterList(loc, fieldIdx)
		if err != nil {
			return err
		}
		if filterIdx < 0 || filterIdx >= len(*filters) {
			return filterRangeError(loc, filterIdx, len(*filters))
		}
		(*filters)[filterIdx] = filter
		return nil
	})
}

// RemoveFilter removes filter filterIdx, from the stage or from field
// fieldIdx. A filtered reference left with no filters reverts to a
// renamed reference, or to a plain one when its name is the field's own.
func (b *Builder) RemoveFilter(p stagepath.Path, filterIdx int, fieldIdx *int) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		filters, err := filterList(loc, fieldIdx)
		if err != nil {
			return err
		}
		if filterIdx < 0 || filterIdx >= len(*filters) {
			return filterRangeError(loc, filterIdx, len(*filters))
		}
		*filters = slices.Delete(*filters, filterIdx, filterIdx+1)
		if fieldIdx == nil || len(*filters) > 0 {
			return nil
		}
		fe := loc.Stage.Fields[*fieldIdx].(*model.Filtered)
		if fe.As == model.LastSegment(fe.Path) {
			loc.Stage.Fields[*fieldIdx] = &model.Reference{Path: fe.Path, Annotation: fe.Annotation}
		} else {
			loc.Stage.Fields[*fieldIdx] = &model.Renamed{As: fe.As, Path: fe.Path, Annotation: fe.Annotation}
		}
		return nil
	})
}

func filterList(loc *schema.Location, fieldIdx *int) (*[]model.Filter, error) {
	if fieldIdx == nil {
		return &loc.Stage.Filters, nil
	}
	e, err := entryAt(loc, *fieldIdx)
	if err != nil {
		return nil, err
	}
	fe, ok := e.(*model.Filtered)
	if !ok {
		return nil, &MutationError{
			Code:    ErrCodeNotFilterable,
			Message: "field " + e.Name() + " has no filters",
			Stage:   loc.Path.String(),
		}
	}
	return &fe.Filters, nil
}

func filterRangeError(loc *schema.Location, idx, n int) error {
	return &MutationError{
		Code:    ErrCodeIndexOutOfRange,
		Message: outOfRange("filter", idx, n),
		Stage:   loc.Path.String(),
	}
}

// AddLimit sets the stage's row limit. A non-nil order replaces the
// stage's ordering with that single key.
func (b *Builder) AddLimit(p stagepath.Path, limit int, order *model.OrderBy) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if limit < 1 {
			return &MutationError{
				Code:    ErrCodeInvalidLimit,
				Message: "limit must be at least 1",
				Stage:   loc.Path.String(),
			}
		}
		loc.Stage.Limit = &limit
		if order != nil {
			loc.Stage.OrderBy = []model.OrderBy{*order}
		}
		return nil
	})
}

// RemoveLimit clears the stage's row limit.
func (b *Builder) RemoveLimit(p stagepath.Path) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		loc.Stage.Limit = nil
		return nil
	})
}

// HasLimit reports whether the stage has a row limit.
func (b *Builder) HasLimit(p stagepath.Path) (bool, error) {
	loc, err := b.nav.Locate(b.st.query, p)
	if err != nil {
		if _, ok := schema.AsNotAStage(err); ok {
			// An unexpanded turtle carries its own limit.
			return b.hasLimitExpanded(p)
		}
		return false, stageError(p, err)
	}
	return loc.Stage.Limit != nil, nil
}

func (b *Builder) hasLimitExpanded(p stagepath.Path) (bool, error) {
	q := b.st.query.Clone()
	loc, err := b.locate(q, p)
	if err != nil {
		return false, err
	}
	return loc.Stage.Limit != nil, nil
}

// AddOrderBy orders the stage by entry fieldIdx, replacing any ordering
// already naming that field. Only atomic output fields are orderable.
func (b *Builder) AddOrderBy(p stagepath.Path, fieldIdx int, dir model.Direction) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		e, err := entryAt(loc, fieldIdx)
		if err != nil {
			return err
		}
		out, err := b.nav.Eval.NextSchema(loc.Input, loc.Stage)
		if err != nil {
			return err
		}
		if _, ok := out.Field(e.Name()).(*model.Atomic); !ok {
			return &MutationError{
				Code:    ErrCodeNotOrderable,
				Message: "field " + e.Name() + " is not an atomic output field",
				Stage:   loc.Path.String(),
			}
		}
		name := e.Name()
		loc.Stage.OrderBy = slices.DeleteFunc(loc.Stage.OrderBy, func(o model.OrderBy) bool {
			return o.Field == name
		})
		loc.Stage.OrderBy = append(loc.Stage.OrderBy, model.OrderBy{Field: name, Direction: dir})
		return nil
	})
}

// EditOrderBy changes the direction of ordering orderIdx.
func (b *Builder) EditOrderBy(p stagepath.Path, orderIdx int, dir model.Direction) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if orderIdx < 0 || orderIdx >= len(loc.Stage.OrderBy) {
			return orderRangeError(loc, orderIdx)
		}
		loc.Stage.OrderBy[orderIdx].Direction = dir
		return nil
	})
}

// RemoveOrderBy removes ordering orderIdx.
func (b *Builder) RemoveOrderBy(p stagepath.Path, orderIdx int) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if orderIdx < 0 || orderIdx >= len(loc.Stage.OrderBy) {
			return orderRangeError(loc, orderIdx)
		}
		loc.Stage.OrderBy = slices.Delete(loc.Stage.OrderBy, orderIdx, orderIdx+1)
		return nil
	})
}

func orderRangeError(loc *schema.Location, idx int) error {
	return &MutationError{
		Code:    ErrCodeIndexOutOfRange,
		Message: outOfRange("ordering", idx, len(loc.Stage.OrderBy)),
		Stage:   loc.Path.String(),
	}
}

// AddStage appends a blank reduce stage. With a nil p it extends the
// top-level pipeline; otherwise the pipeline of the query in field
// fieldIdx of stage p, expanding a turtle reference first. It returns the
// address of the new stage.
func (b *Builder) AddStage(p *stagepath.Path, fieldIdx int) (stagepath.Path, error) {
	var added stagepath.Path
	err := b.mutate(func(st *state) error {
		if p == nil {
			st.query.Pipeline = append(st.query.Pipeline, model.NewStage(model.StageReduce))
			added = stagepath.Root(len(st.query.Pipeline) - 1)
			return nil
		}
		loc, err := b.locate(st.query, *p)
		if err != nil {
			return err
		}
		e, err := entryAt(loc, fieldIdx)
		if err != nil {
			return err
		}
		if ref, ok := e.(*model.Reference); ok {
			f, err := b.nav.ResolveField(loc.Input, ref.Path)
			if err != nil {
				return err
			}
			t, ok := f.(*model.Turtle)
			if !ok {
				return notAQuery(loc, ref.Path)
			}
			e = expandTurtle(ref, t)
			loc.Stage.Fields[fieldIdx] = e
		}
		nested, ok := e.(*model.Nested)
		if !ok {
			return notAQuery(loc, e.Name())
		}
		nested.Query.Pipeline = append(nested.Query.Pipeline, model.NewStage(model.StageReduce))
		added = stagepath.Push(*p, stagepath.Part{StageIndex: len(nested.Query.Pipeline) - 1, FieldIndex: fieldIdx})
		return nil
	})
	if err != nil {
		return stagepath.Path{}, err
	}
	return added, nil
}

func notAQuery(loc *schema.Location, name string) error {
	return &MutationError{
		Code:    ErrCodeNotAQuery,
		Message: "field " + name + " is not a query",
		Stage:   loc.Path.String(),
	}
}

// RemoveStage removes the addressed stage. A pipeline left empty gets a
// blank reduce stage back.
func (b *Builder) RemoveStage(p stagepath.Path) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		q := loc.Query
		q.Pipeline = slices.Delete(q.Pipeline, loc.Index, loc.Index+1)
		if len(q.Pipeline) == 0 {
			q.Pipeline = []*model.Stage{model.NewStage(model.StageReduce)}
		}
		return nil
	})
}

// CanRun reports whether every stage, including those of nested queries,
// has at least one field entry.
func (b *Builder) CanRun() bool {
	return b.st.query.IsRunnable()
}

// StageInput returns the schema stage p reads from. Turtle references on
// the way are expanded on a copy; the owned query is not changed.
func (b *Builder) StageInput(p stagepath.Path) (*model.Source, error) {
	loc, err := b.locate(b.st.query.Clone(), p)
	if err != nil {
		return nil, err
	}
	return loc.Input, nil
}
