package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/composer/internal/filterexpr"
	"github.com/roach88/composer/internal/measure"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/tags"
)

func TestOp_DecodeYAML(t *testing.T) {
	src := `
- op: add_field
  field: name
- op: add_filter_to_field
  stage: "0:2/0"
  index: 1
  name: lloyd_name
  filter:
    picker:
      kind: string
      field: name
      op: equals
      values: [lloyd]
- op: add_definition
  definition:
    name: avg_year
    template: {kind: measure, func: avg, field: year}
- op: set_renderer
  stage: 1
  renderer: bar_chart
- op: edit_parameter
  name: min_year
  value: "1950"
`
	var ops []Op
	require.NoError(t, yaml.Unmarshal([]byte(src), &ops))
	require.Len(t, ops, 5)

	assert.Equal(t, Op{Kind: OpAddField, Field: "name"}, ops[0])

	f := ops[1]
	require.NotNil(t, f.Stage)
	assert.Equal(t, stagepath.MustParse("0:2/0"), *f.Stage)
	assert.Equal(t, 1, *f.Index)
	require.NotNil(t, f.Filter.Picker)
	assert.Equal(t, filterexpr.KindString, f.Filter.Picker.Kind)
	assert.Equal(t, []string{"lloyd"}, f.Filter.Picker.Values)

	assert.Equal(t, measure.Avg, ops[2].Definition.Template.Func)

	assert.Equal(t, stagepath.Root(1), *ops[3].Stage)
	assert.Equal(t, tags.BarChart, ops[3].Renderer)

	require.NotNil(t, ops[4].Value)
	assert.Equal(t, "1950", *ops[4].Value)
}

func TestOp_DecodeJSON(t *testing.T) {
	var op Op
	require.NoError(t, json.Unmarshal([]byte(`{"op":"add_order_by","stage":"1","index":0,"direction":"desc"}`), &op))
	assert.Equal(t, OpAddOrderBy, op.Kind)
	assert.Equal(t, stagepath.Root(1), *op.Stage)
	assert.Equal(t, model.Descending, op.Direction)

	out, err := json.Marshal(Op{Kind: OpRemoveLimit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"remove_limit"}`, string(out))
}

func TestOp_Filter(t *testing.T) {
	tests := []struct {
		name    string
		spec    *FilterSpec
		want    model.Filter
		wantErr bool
	}{
		{"code", &FilterSpec{Code: "year > 2000"}, model.Filter{Code: "year > 2000", Kind: model.ExprScalar}, false},
		{"having", &FilterSpec{Code: "population > 10", Having: true}, model.Filter{Code: "population > 10", Kind: model.ExprAggregate}, false},
		{
			"picker",
			&FilterSpec{Picker: &filterexpr.Filter{Kind: filterexpr.KindNumber, Field: "year", Op: filterexpr.OpBetween, Values: []string{"1990", "2000"}}},
			model.Filter{Code: "year ? 1990 to 2000", Kind: model.ExprScalar},
			false,
		},
		{"code wins", &FilterSpec{Code: "true", Picker: &filterexpr.Filter{Kind: filterexpr.KindNumber}}, model.Filter{Code: "true", Kind: model.ExprScalar}, false},
		{"bad picker", &FilterSpec{Picker: &filterexpr.Filter{Kind: filterexpr.KindNumber, Field: "year", Op: filterexpr.OpGreater, Values: []string{"x"}}}, model.Filter{}, true},
		{"empty", &FilterSpec{}, model.Filter{}, true},
		{"missing", nil, model.Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Op{Kind: OpAddFilter, Filter: tt.spec}.filter()
			if tt.wantErr {
				assert.True(t, HasCode(err, ErrCodeInvalidOp))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
