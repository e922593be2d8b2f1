package builder

import (
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/tags"
)

// LoadQuery merges the root source's turtle name into the query, stage by
// stage:
//   - a stage the query lacks is copied in
//   - an existing empty stage is replaced by the loaded one
//   - otherwise filters are unioned by source text, a loaded limit or
//     ordering overwrites the existing one, and the loaded entries come
//     first, followed by existing entries the loaded stage does not name
//
// Merging stages of different kinds fails. The query takes the turtle's
// name and annotation, and argument overrides are reset to the declared
// defaults.
func (b *Builder) LoadQuery(name string) error {
	return b.mutate(func(st *state) error {
		t, ok := b.root.Field(name).(*model.Turtle)
		if !ok {
			return newError(ErrCodeNotAQuery, "%q is not a query of source %q", name, b.root.Name)
		}
		loaded := t.Query.Clone()
		q := st.query
		for i, ls := range loaded.Pipeline {
			if i >= len(q.Pipeline) {
				q.Pipeline = append(q.Pipeline, ls)
				continue
			}
			cur := q.Pipeline[i]
			if cur.IsEmpty() {
				q.Pipeline[i] = ls
				continue
			}
			if cur.Kind != ls.Kind {
				return &MutationError{
					Code:    ErrCodeStageKindMismatch,
					Message: "cannot merge " + string(ls.Kind) + " stage into " + string(cur.Kind) + " stage",
					Stage:   stagepath.Root(i).String(),
				}
			}
			mergeStage(cur, ls)
		}
		q.Name = loaded.Name
		q.Annotation = loaded.Annotation
		st.args = map[string]string{}
		return nil
	})
}

func mergeStage(cur, loaded *model.Stage) {
	for _, f := range loaded.Filters {
		if !slices.ContainsFunc(cur.Filters, func(g model.Filter) bool { return g.Code == f.Code }) {
			cur.Filters = append(cur.Filters, f)
		}
	}
	if loaded.Limit != nil {
		cur.Limit = loaded.Limit
	}
	if len(loaded.OrderBy) > 0 {
		cur.OrderBy = loaded.OrderBy
	}
	if loaded.Annotation != nil {
		cur.Annotation = loaded.Annotation
	}
	named := make(map[string]bool, len(loaded.Fields))
	for _, e := range loaded.Fields {
		named[e.Name()] = true
	}
	fields := slices.Clone(loaded.Fields)
	for _, e := range cur.Fields {
		if !named[e.Name()] {
			fields = append(fields, e)
		}
	}
	cur.Fields = fields
}

// ReplaceQuery replaces the whole query with a copy of t. Filters on the
// discarded stage 0 are kept, ahead of the replacement's own.
func (b *Builder) ReplaceQuery(t *model.Query) error {
	return b.mutate(func(st *state) error {
		if t == nil || len(t.Pipeline) == 0 {
			return newError(ErrCodeNotAQuery, "replacement query has no stages")
		}
		next := t.Clone()
		kept := st.query.Pipeline[0].Filters
		if len(kept) > 0 {
			next.Pipeline[0].Filters = append(slices.Clone(kept), next.Pipeline[0].Filters...)
		}
		st.query = next
		return nil
	})
}

// SetRenderer selects renderer r, or clears it with tags.None. With a nil
// fieldIdx it annotates the query owning stage p; otherwise field entry
// fieldIdx of that stage. Clearing a renderer a field inherits from its
// definition writes a suppression tag.
func (b *Builder) SetRenderer(p stagepath.Path, fieldIdx *int, r tags.Renderer) error {
	return b.mutate(func(st *state) error {
		if r != tags.None && !tags.IsRenderer(string(r)) {
			return newError(ErrCodeInvalidParameter, "unknown renderer %q", r)
		}
		loc, err := b.locate(st.query, p)
		if err != nil {
			return err
		}
		if fieldIdx == nil {
			loc.Query.Annotation = tags.Apply(loc.Query.Annotation, r)
			return nil
		}
		e, err := entryAt(loc, *fieldIdx)
		if err != nil {
			return err
		}
		a := e.EntryAnnotation()
		if path := entryPath(e); a == nil && path != "" {
			f, err := b.nav.ResolveField(loc.Input, path)
			if err != nil {
				return err
			}
			if inherited := fieldAnnotation(f); inherited != nil {
				a = &model.Annotation{Inherits: inherited.Clone()}
			}
		}
		e.SetEntryAnnotation(tags.Apply(a, r))
		return nil
	})
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

var (
	numberLiteral = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
	dateLiteral   = regexp.MustCompile(`^\d{4}(?:-\d{2}(?:-\d{2})?)?$`)
	tsLiteral     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?$`)
)

// EditParameter sets the override for parameter name, or removes it when
// value is nil. The value is user input, converted to literal source text
// according to the parameter's declared type.
func (b *Builder) EditParameter(name string, value *string) error {
	return b.mutate(func(st *state) error {
		param, ok := b.root.Parameter(name)
		if !ok {
			return newError(ErrCodeUnknownParameter, "source %q has no parameter %q", b.root.Name, name)
		}
		if value == nil {
			delete(st.args, name)
			return nil
		}
		code, err := literal(param, *value)
		if err != nil {
			return err
		}
		st.args[name] = code
		return nil
	})
}

func literal(p model.Parameter, v string) (string, error) {
	invalid := func() error {
		return newError(ErrCodeInvalidParameter, "%q is not a valid %s for parameter %q", v, p.Type, p.Name)
	}
	v = strings.TrimSpace(v)
	switch p.Type {
	case model.TypeString:
		s := strings.ReplaceAll(v, `\`, `\\`)
		return "'" + strings.ReplaceAll(s, "'", `\'`) + "'", nil
	case model.TypeNumber:
		if !numberLiteral.MatchString(v) {
			return "", invalid()
		}
		return v, nil
	case model.TypeBoolean:
		if v != "true" && v != "false" {
			return "", invalid()
		}
		return v, nil
	case model.TypeDate:
		v = strings.TrimPrefix(v, "@")
		if !dateLiteral.MatchString(v) {
			return "", invalid()
		}
		return "@" + v, nil
	case model.TypeTimestamp:
		v = strings.TrimPrefix(v, "@")
		if !tsLiteral.MatchString(v) && !dateLiteral.MatchString(v) {
			return "", invalid()
		}
		return "@" + v, nil
	default:
		return "", newError(ErrCodeInvalidParameter, "parameter %q has unsupported type %s", p.Name, p.Type)
	}
}
