package loader

import (
	"fmt"

	"github.com/roach88/composer/internal/model"
)

// Validate checks what the CUE schema cannot: unique names, known value
// and expression types, and well formed turtles and joins.
func Validate(m *model.Model) error {
	seen := make(map[string]bool, len(m.Sources))
	for _, src := range m.Sources {
		if seen[src.Name] {
			return &LoadError{Code: ErrCodeDuplicateSource, Message: "duplicate source", Path: src.Name}
		}
		seen[src.Name] = true
		if err := validateSource(src, src.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(src *model.Source, path string) error {
	names := make(map[string]bool, len(src.Fields))
	for _, f := range src.Fields {
		name := f.FieldName()
		fp := path + "." + name
		if name == "" {
			return &LoadError{Code: ErrCodeInvalidQuery, Message: "field has no name", Path: path}
		}
		if names[name] {
			return &LoadError{Code: ErrCodeDuplicateField, Message: "duplicate field", Path: fp}
		}
		names[name] = true

		switch f := f.(type) {
		case *model.Atomic:
			if !model.ValidValueTypes[f.Type] {
				return &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("unknown type %q", f.Type), Path: fp}
			}
			switch f.Expression {
			case "", model.ExprScalar, model.ExprAggregate, model.ExprCalculation:
			default:
				return &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("unknown expression kind %q", f.Expression), Path: fp}
			}
		case *model.Join:
			switch f.Relationship {
			case "", model.JoinOne, model.JoinMany, model.JoinCross:
			default:
				return &LoadError{Code: ErrCodeInvalidJoin, Message: fmt.Sprintf("unknown relationship %q", f.Relationship), Path: fp}
			}
			if err := validateSource(f.Source, fp); err != nil {
				return err
			}
		case *model.Turtle:
			if err := validateQuery(f.Query, fp); err != nil {
				return err
			}
		}
	}
	for _, p := range src.Parameters {
		if !model.ValidValueTypes[p.Type] {
			return &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("parameter %s has unknown type %q", p.Name, p.Type), Path: path}
		}
	}
	return nil
}

func validateQuery(q *model.Query, path string) error {
	if len(q.Pipeline) == 0 {
		return &LoadError{Code: ErrCodeInvalidQuery, Message: "query has no stages", Path: path}
	}
	for i, s := range q.Pipeline {
		if !model.ValidStageKinds[s.Kind] {
			return &LoadError{Code: ErrCodeInvalidQuery, Message: fmt.Sprintf("stage %d has unknown kind %q", i, s.Kind), Path: path}
		}
		if s.Limit != nil && *s.Limit < 1 {
			return &LoadError{Code: ErrCodeInvalidQuery, Message: fmt.Sprintf("stage %d limit must be at least 1", i), Path: path}
		}
		for _, e := range s.Fields {
			if n, ok := e.(*model.Nested); ok {
				if err := validateQuery(n.Query, path+"."+n.Query.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
