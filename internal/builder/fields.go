package builder

import (
	"slices"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
	"github.com/roach88/composer/internal/stagepath"
)

// Sort ranks of field entries within a stage.
const (
	rankDimension = iota
	rankMeasure
	rankQuery
	rankJoin
)

// sortKey orders entries dimensions, then measures and calculations, then
// nested queries, then joins; alphabetical by display name within a rank.
// Entries that do not resolve sort with dimensions.
func (b *Builder) sortKey(input *model.Source, e model.Entry) (int, string) {
	switch e := e.(type) {
	case *model.Inline:
		if e.Field.Expression.IsAggregating() {
			return rankMeasure, e.Name()
		}
		return rankDimension, e.Name()
	case *model.Nested:
		return rankQuery, e.Name()
	}
	f, err := b.nav.ResolveField(input, entryPath(e))
	if err != nil {
		return rankDimension, e.Name()
	}
	return fieldRank(f), e.Name()
}

func fieldRank(f model.Field) int {
	switch f := f.(type) {
	case *model.Atomic:
		if f.Expression.IsAggregating() {
			return rankMeasure
		}
		return rankDimension
	case *model.Turtle:
		return rankQuery
	default:
		return rankJoin
	}
}

// entryPath returns the dotted path a reference-like entry points at.
func entryPath(e model.Entry) string {
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

// insertSorted inserts e before the first entry whose sort key is greater.
func (b *Builder) insertSorted(loc *schema.Location, e model.Entry) {
	rank, name := b.sortKey(loc.Input, e)
	for i, existing := range loc.Stage.Fields {
		r, n := b.sortKey(loc.Input, existing)
		if rank < r || (rank == r && name < n) {
			loc.Stage.Fields = slices.Insert(loc.Stage.Fields, i, e)
			return
		}
	}
	loc.Stage.Fields = append(loc.Stage.Fields, e)
}

// checkContent enforces what each stage kind may hold.
//   - reduce: leaves and nested queries
//   - project: non-aggregating leaves
//   - index: non-aggregating leaves and joins
func checkContent(loc *schema.Location, path string, f model.Field) error {
	kind := loc.Stage.Kind
	ok := false
	switch f := f.(type) {
	case *model.Atomic:
		ok = kind == model.StageReduce || !f.Expression.IsAggregating()
	case *model.Turtle:
		ok = kind == model.StageReduce
	case *model.Join:
		ok = kind == model.StageIndex
	}
	if !ok {
		return &MutationError{
			Code:    ErrCodeStageKindMismatch,
			Message: "a " + string(kind) + " stage cannot hold " + describe(f) + " " + path,
			Stage:   loc.Path.String(),
		}
	}
	return nil
}

func describe(f model.Field) string {
	switch f := f.(type) {
	case *model.Atomic:
		if f.Expression.IsAggregating() {
			return "measure"
		}
		return "dimension"
	case *model.Turtle:
		return "query"
	case *model.Join:
		return "join"
	}
	return "field"
}

// AddField inserts a reference to fieldPath into the addressed stage at
// its sort position.
func (b *Builder) AddField(p stagepath.Path, fieldPath string) error {
	return b.mutate(func(st *state) error {
		return b.addField(st, p, fieldPath)
	})
}

func (b *Builder) addField(st *state, p stagepath.Path, fieldPath string) error {
	loc, err := b.locate(st.query, p)
	if err != nil {
		return err
	}
	f, err := b.nav.ResolveField(loc.Input, fieldPath)
	if err != nil {
		return err
	}
	if err := checkContent(loc, fieldPath, f); err != nil {
		return err
	}
	b.insertSorted(loc, &model.Reference{Path: fieldPath})
	return nil
}

// ToggleField removes the top-level reference to fieldPath from the stage
// if there is one, and adds it otherwise.
func (b *Builder) ToggleField(p stagepath.Path, fieldPath string) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		for i, e := range loc.Stage.Fields {
			if ref, ok := e.(*model.Reference); ok && ref.Path == fieldPath {
				removeEntry(loc.Stage, i)
				return nil
			}
		}
		return b.addField(st, p, fieldPath)
	})
}

// RemoveField removes entry idx and any ordering that named it.
func (b *Builder) RemoveField(p stagepath.Path, idx int) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if _, err := entryAt(loc, idx); err != nil {
			return err
		}
		removeEntry(loc.Stage, idx)
		return nil
	})
}

func removeEntry(stage *model.Stage, idx int) {
	name := stage.Fields[idx].Name()
	stage.Fields = slices.Delete(stage.Fields, idx, idx+1)
	stage.OrderBy = slices.DeleteFunc(stage.OrderBy, func(o model.OrderBy) bool {
		return o.Field == name
	})
}

// RenameField gives entry idx a new output name. A plain reference to a
// turtle becomes an embedded copy of the turtle; any other plain reference
// becomes a renamed reference. Orderings follow the rename.
func (b *Builder) RenameField(p stagepath.Path, idx int, newName string) error {
	return b.mutate(func(st *state) error {
		return b.renameField(st, p, idx, newName)
	})
}

func (b *Builder) renameField(st *state, p stagepath.Path, idx int, newName string) error {
	loc, err := b.locate(st.query, p)
	if err != nil {
		return err
	}
	e, err := entryAt(loc, idx)
	if err != nil {
		return err
	}
	oldName := e.Name()
	switch e := e.(type) {
	case *model.Reference:
		f, err := b.nav.ResolveField(loc.Input, e.Path)
		if err != nil {
			return err
		}
		if t, ok := f.(*model.Turtle); ok {
			nested := expandTurtle(e, t)
			nested.Query.Name = newName
			loc.Stage.Fields[idx] = nested
		} else {
			loc.Stage.Fields[idx] = &model.Renamed{As: newName, Path: e.Path, Annotation: e.Annotation}
		}
	case *model.Renamed:
		e.As = newName
	case *model.Filtered:
		e.As = newName
	case *model.Inline:
		e.Field.Name = newName
	case *model.Nested:
		e.Query.Name = newName
	}
	for i := range loc.Stage.OrderBy {
		if loc.Stage.OrderBy[i].Field == oldName {
			loc.Stage.OrderBy[i].Field = newName
		}
	}
	return nil
}

// AddFilterToField attaches filter to entry idx, optionally renaming it to
// as first. References become filtered references; filtered references
// gain another filter. Queries, joins and inline definitions cannot carry
// per-field filters.
func (b *Builder) AddFilterToField(p stagepath.Path, idx int, filter model.Filter, as string) error {
	return b.mutate(func(st *state) error {
		if as != "" {
			if err := b.renameField(st, p, idx, as); err != nil {
				return err
			}
		}
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		e, err := entryAt(loc, idx)
		if err != nil {
			return err
		}
		switch e := e.(type) {
		case *model.Reference:
			f, err := b.nav.ResolveField(loc.Input, e.Path)
			if err != nil {
				return err
			}
			if _, ok := f.(*model.Atomic); !ok {
				return notFilterable(loc, e.Path, f)
			}
			loc.Stage.Fields[idx] = &model.Filtered{
				As:         e.Name(),
				Path:       e.Path,
				Filters:    []model.Filter{filter},
				Annotation: e.Annotation,
			}
		case *model.Renamed:
			loc.Stage.Fields[idx] = &model.Filtered{
				As:         e.As,
				Path:       e.Path,
				Filters:    []model.Filter{filter},
				Annotation: e.Annotation,
			}
		case *model.Filtered:
			e.Filters = append(e.Filters, filter)
		default:
			return &MutationError{
				Code:    ErrCodeNotFilterable,
				Message: "field " + e.Name() + " is a definition, not a reference",
				Stage:   loc.Path.String(),
			}
		}
		return nil
	})
}

func notFilterable(loc *schema.Location, path string, f model.Field) error {
	return &MutationError{
		Code:    ErrCodeNotFilterable,
		Message: "cannot filter " + describe(f) + " " + path,
		Stage:   loc.Path.String(),
	}
}

// AddNewNestedQuery inserts an empty nested query named name.
func (b *Builder) AddNewNestedQuery(p stagepath.Path, name string) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if loc.Stage.Kind != model.StageReduce {
			return &MutationError{
				Code:    ErrCodeStageKindMismatch,
				Message: "nested queries are only allowed in reduce stages",
				Stage:   loc.Path.String(),
			}
		}
		b.insertSorted(loc, &model.Nested{Query: model.NewQuery(name)})
		return nil
	})
}

// AddDefinition inserts an inline field definition at its sort position.
// A definition may not share its name with an entry already in the stage.
func (b *Builder) AddDefinition(p stagepath.Path, def *model.Atomic) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if def == nil || def.Name == "" || def.Code == "" {
			return &MutationError{
				Code:    ErrCodeNotDefinable,
				Message: "a definition needs a name and code",
				Stage:   loc.Path.String(),
			}
		}
		for _, e := range loc.Stage.Fields {
			if e.Name() == def.Name {
				return &MutationError{
					Code:    ErrCodeNotDefinable,
					Message: "stage already has a field named " + def.Name,
					Stage:   loc.Path.String(),
				}
			}
		}
		if err := checkContent(loc, def.Name, def); err != nil {
			return err
		}
		b.insertSorted(loc, &model.Inline{Field: def.Clone()})
		return nil
	})
}

// ReplaceWithDefinition converts reference idx into its full definition,
// looked up in src (or the stage input when src is nil). Leaves become
// inline definitions and turtles become embedded queries. Joins cannot be
// inlined, nor can defined fields reached through a join, whose code is
// relative to the joined source.
func (b *Builder) ReplaceWithDefinition(p stagepath.Path, idx int, src *model.Source) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		e, err := entryAt(loc, idx)
		if err != nil {
			return err
		}
		ref, ok := e.(*model.Reference)
		if !ok {
			return &MutationError{
				Code:    ErrCodeNotDefinable,
				Message: "field " + e.Name() + " is not a plain reference",
				Stage:   loc.Path.String(),
			}
		}
		if src == nil {
			src = loc.Input
		}
		f, err := b.nav.ResolveField(src, ref.Path)
		if err != nil {
			return err
		}
		switch f := f.(type) {
		case *model.Turtle:
			loc.Stage.Fields[idx] = expandTurtle(ref, f)
		case *model.Atomic:
			def := f.Clone()
			def.Name = ref.Name()
			switch {
			case def.Code == "":
				def.Code = ref.Path
			case len(model.SplitPath(ref.Path)) > 1:
				return &MutationError{
					Code:    ErrCodeNotDefinable,
					Message: "definition of joined field " + ref.Path + " cannot be inlined",
					Stage:   loc.Path.String(),
				}
			}
			if ref.Annotation != nil {
				def.Annotation = ref.Annotation.Clone()
			}
			loc.Stage.Fields[idx] = &model.Inline{Field: def}
		default:
			return &MutationError{
				Code:    ErrCodeNotDefinable,
				Message: describe(f) + " " + ref.Path + " is a source, not a definition",
				Stage:   loc.Path.String(),
			}
		}
		return nil
	})
}

// ReorderFields applies perm to the stage's entries: entry i of the result
// is entry perm[i] of the current list.
func (b *Builder) ReorderFields(p stagepath.Path, perm []int) error {
	return b.mutate(func(st *state) error {
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		n := len(loc.Stage.Fields)
		if len(perm) != n {
			return &MutationError{
				Code:    ErrCodeInvalidPermutation,
				Message: outOfRange("permutation length", len(perm), n),
				Stage:   loc.Path.String(),
			}
		}
		seen := make([]bool, n)
		out := make([]model.Entry, n)
		for i, j := range perm {
			if j < 0 || j >= n || seen[j] {
				return &MutationError{
					Code:    ErrCodeInvalidPermutation,
					Message: "permutation is not a bijection",
					Stage:   loc.Path.String(),
				}
			}
			seen[j] = true
			out[i] = loc.Stage.Fields[j]
		}
		loc.Stage.Fields = out
		return nil
	})
}
