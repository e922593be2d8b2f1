package model

import (
	"encoding/json"
	"fmt"
)

// Discriminator values for the "kind" member of encoded unions.
const (
	kindAtomic    = "atomic"
	kindJoin      = "join"
	kindTurtle    = "turtle"
	kindReference = "reference"
	kindRenamed   = "renamed"
	kindFiltered  = "filtered"
	kindInline    = "inline"
	kindNested    = "nested"
)

type kindProbe struct {
	Kind string `json:"kind"`
}

// MarshalJSON implements json.Marshaler for Source.
func (s *Source) MarshalJSON() ([]byte, error) {
	type alias Source
	fields := make([]json.RawMessage, len(s.Fields))
	for i, f := range s.Fields {
		data, err := MarshalField(f)
		if err != nil {
			return nil, fmt.Errorf("source %q field %d: %w", s.Name, i, err)
		}
		fields[i] = data
	}
	return json.Marshal(struct {
		*alias
		Fields []json.RawMessage `json:"fields"`
	}{alias: (*alias)(s), Fields: fields})
}

// UnmarshalJSON implements json.Unmarshaler for Source.
func (s *Source) UnmarshalJSON(data []byte) error {
	type alias Source
	aux := struct {
		*alias
		Fields []json.RawMessage `json:"fields"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Fields = make([]Field, 0, len(aux.Fields))
	for i, raw := range aux.Fields {
		f, err := UnmarshalField(raw)
		if err != nil {
			return fmt.Errorf("source %q field %d: %w", s.Name, i, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return nil
}

// MarshalField encodes a Field with its "kind" discriminator.
func MarshalField(f Field) ([]byte, error) {
	switch f := f.(type) {
	case *Atomic:
		type alias Atomic
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindAtomic, (*alias)(f)})
	case *Join:
		type alias Join
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindJoin, (*alias)(f)})
	case *Turtle:
		// Turtles are flattened: the query's members sit beside "kind".
		return marshalQueryWithKind(kindTurtle, f.Query)
	default:
		return nil, fmt.Errorf("unsupported field type: %T", f)
	}
}

// UnmarshalField decodes a Field from its "kind" discriminator.
func UnmarshalField(data []byte) (Field, error) {
	var probe kindProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Kind {
	case kindAtomic, "":
		var a Atomic
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		if a.Name == "" {
			return nil, fmt.Errorf("atomic field requires a name")
		}
		return &a, nil
	case kindJoin:
		var j Join
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, err
		}
		if j.Source == nil {
			return nil, fmt.Errorf("join %q requires a source", j.Name)
		}
		return &j, nil
	case kindTurtle:
		var q Query
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		return &Turtle{Query: &q}, nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", probe.Kind)
	}
}

func marshalQueryWithKind(kind string, q *Query) ([]byte, error) {
	type alias Query
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{kind, (*alias)(q)})
}

// MarshalJSON implements json.Marshaler for Stage.
func (s *Stage) MarshalJSON() ([]byte, error) {
	type alias Stage
	fields := make([]json.RawMessage, len(s.Fields))
	for i, e := range s.Fields {
		data, err := MarshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("stage field %d: %w", i, err)
		}
		fields[i] = data
	}
	return json.Marshal(struct {
		*alias
		Fields []json.RawMessage `json:"fields"`
	}{alias: (*alias)(s), Fields: fields})
}

// UnmarshalJSON implements json.Unmarshaler for Stage.
// A missing kind decodes as a reduce stage.
func (s *Stage) UnmarshalJSON(data []byte) error {
	type alias Stage
	aux := struct {
		*alias
		Fields []json.RawMessage `json:"fields"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.Kind == "" {
		s.Kind = StageReduce
	}
	if !ValidStageKinds[s.Kind] {
		return fmt.Errorf("unknown stage kind %q", s.Kind)
	}
	s.Fields = make([]Entry, 0, len(aux.Fields))
	for i, raw := range aux.Fields {
		e, err := UnmarshalEntry(raw)
		if err != nil {
			return fmt.Errorf("stage field %d: %w", i, err)
		}
		s.Fields = append(s.Fields, e)
	}
	return nil
}

// MarshalEntry encodes an Entry with its "kind" discriminator.
func MarshalEntry(e Entry) ([]byte, error) {
	switch e := e.(type) {
	case *Reference:
		type alias Reference
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindReference, (*alias)(e)})
	case *Renamed:
		type alias Renamed
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindRenamed, (*alias)(e)})
	case *Filtered:
		type alias Filtered
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindFiltered, (*alias)(e)})
	case *Inline:
		type alias Atomic
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*alias
		}{kindInline, (*alias)(e.Field)})
	case *Nested:
		return marshalQueryWithKind(kindNested, e.Query)
	default:
		return nil, fmt.Errorf("unsupported entry type: %T", e)
	}
}

// UnmarshalEntry decodes an Entry from its "kind" discriminator.
// A bare JSON string decodes as a Reference.
func UnmarshalEntry(data []byte) (Entry, error) {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		return &Reference{Path: path}, nil
	}

	var probe kindProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Kind {
	case kindReference:
		var r Reference
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	case kindRenamed:
		var r Renamed
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	case kindFiltered:
		var f Filtered
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return &f, nil
	case kindInline:
		var a Atomic
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return &Inline{Field: &a}, nil
	case kindNested:
		var q Query
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, err
		}
		return &Nested{Query: &q}, nil
	default:
		return nil, fmt.Errorf("unknown entry kind %q", probe.Kind)
	}
}
