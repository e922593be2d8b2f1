package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalSource_AllFieldKinds(t *testing.T) {
	data := `{
		"name": "census",
		"kind": "table",
		"parameters": [{"name": "year", "type": "number", "default": "2020"}],
		"fields": [
			{"kind": "atomic", "name": "name", "type": "string"},
			{"name": "state", "type": "string"},
			{"kind": "atomic", "name": "population", "type": "number", "expression": "aggregate", "code": "births.sum()"},
			{"kind": "join", "name": "states", "relationship": "one", "source": {
				"name": "states",
				"fields": [{"kind": "atomic", "name": "region", "type": "string"}]
			}},
			{"kind": "turtle", "name": "by_gender", "annotation": {"notes": ["# bar_chart"]}, "pipeline": [
				{"kind": "reduce", "fields": ["gender", {"kind": "reference", "path": "population"}], "limit": 5}
			]}
		]
	}`

	var src Source
	require.NoError(t, json.Unmarshal([]byte(data), &src))

	assert.Equal(t, "census", src.Name)
	assert.Equal(t, SourceTable, src.Kind)
	require.Len(t, src.Fields, 5)

	name, ok := src.Fields[0].(*Atomic)
	require.True(t, ok)
	assert.Equal(t, TypeString, name.Type)

	state, ok := src.Fields[1].(*Atomic)
	require.True(t, ok, "missing kind decodes as atomic")
	assert.Equal(t, "state", state.Name)

	pop := src.Field("population").(*Atomic)
	assert.Equal(t, ExprAggregate, pop.Expression)
	assert.Equal(t, "births.sum()", pop.Code)

	join, ok := src.Field("states").(*Join)
	require.True(t, ok)
	assert.Equal(t, JoinOne, join.Relationship)
	assert.NotNil(t, join.Source.Field("region"))

	turtle, ok := src.Field("by_gender").(*Turtle)
	require.True(t, ok)
	require.Len(t, turtle.Query.Pipeline, 1)
	stage := turtle.Query.Pipeline[0]
	assert.Equal(t, StageReduce, stage.Kind)
	require.Len(t, stage.Fields, 2)
	assert.Equal(t, &Reference{Path: "gender"}, stage.Fields[0])
	assert.Equal(t, &Reference{Path: "population"}, stage.Fields[1])
	require.NotNil(t, stage.Limit)
	assert.Equal(t, 5, *stage.Limit)
	assert.Equal(t, []string{"# bar_chart"}, turtle.Query.Annotation.Notes)

	p, ok := src.Parameter("year")
	require.True(t, ok)
	assert.Equal(t, "2020", *p.Default)
}

func TestEntryRoundTrip(t *testing.T) {
	limit := 10
	q := &Query{
		Name: "q",
		Pipeline: []*Stage{{
			Kind: StageReduce,
			Fields: []Entry{
				&Reference{Path: "a.b"},
				&Renamed{As: "x", Path: "y"},
				&Filtered{As: "ca_pop", Path: "population", Filters: []Filter{{Code: "state = 'CA'", Kind: ExprScalar}}},
				&Inline{Field: &Atomic{Name: "total", Type: TypeNumber, Expression: ExprAggregate, Code: "count()"}},
				&Nested{Query: NewQuery("inner")},
			},
			Limit:   &limit,
			OrderBy: []OrderBy{{Field: "total", Direction: Descending}},
		}},
	}

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var back Query
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, q, &back)
}

func TestUnmarshalEntry_UnknownKind(t *testing.T) {
	_, err := UnmarshalEntry([]byte(`{"kind": "mystery"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestUnmarshalStage_DefaultsToReduce(t *testing.T) {
	var s Stage
	require.NoError(t, json.Unmarshal([]byte(`{"fields": []}`), &s))
	assert.Equal(t, StageReduce, s.Kind)

	err := json.Unmarshal([]byte(`{"kind": "pivot", "fields": []}`), &s)
	require.Error(t, err)
}

func TestUnmarshalField_JoinRequiresSource(t *testing.T) {
	_, err := UnmarshalField([]byte(`{"kind": "join", "name": "j"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a source")
}
