package writer

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/composer/internal/builder"
	"github.com/roach88/composer/internal/filterexpr"
	"github.com/roach88/composer/internal/measure"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/tags"
	"github.com/roach88/composer/internal/testutil"
)

var stage0 = stagepath.Root(0)

func intp(i int) *int       { return &i }
func strp(s string) *string { return &s }

func assertGolden(t *testing.T, name, got string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(got))
}

func newBuilder(t *testing.T) (*builder.Builder, *Writer) {
	t.Helper()
	b := builder.New(testutil.CensusSource(), nil)
	return b, New(b.Navigator())
}

func run(t *testing.T, b *builder.Builder, w *Writer) string {
	t.Helper()
	out, err := w.RunString(b.Query(), b.Arguments())
	require.NoError(t, err)
	return out
}

func TestRunString(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, b *builder.Builder)
	}{
		{
			name: "run_basic",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddField(stage0, "name"))
				require.NoError(t, b.AddField(stage0, "population"))
			},
		},
		{
			name: "run_filtered_field",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddField(stage0, "name"))
				require.NoError(t, b.AddFilterToField(stage0, 0, model.Filter{Code: "name = 'lloyd'"}, "lloyd_name"))
			},
		},
		{
			name: "run_nested_query",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddNewNestedQuery(stage0, "eyrie"))
				require.NoError(t, b.AddField(stagepath.MustParse("0:0/0"), "name"))
			},
		},
		{
			name: "run_multi_stage",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddField(stage0, "name"))
				require.NoError(t, b.AddField(stage0, "population"))
				p, err := b.AddStage(nil, 0)
				require.NoError(t, err)
				require.NoError(t, b.AddField(p, "population"))
				require.NoError(t, b.AddField(p, "name"))
			},
		},
		{
			name: "run_tagged_turtle",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddField(stage0, "by_state"))
				require.NoError(t, b.AddField(stage0, "name"))
				require.NoError(t, b.SetRenderer(stage0, intp(1), tags.LineChart))
			},
		},
		{
			name: "run_inline_definition",
			build: func(t *testing.T, b *builder.Builder) {
				require.NoError(t, b.AddField(stage0, "name"))
				require.NoError(t, b.AddField(stage0, "population"))
				require.NoError(t, b.ReplaceWithDefinition(stage0, 1, nil))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, w := newBuilder(t)
			tt.build(t, b)
			assertGolden(t, tt.name, run(t, b, w))
		})
	}
}

func buildFull(t *testing.T) (*builder.Builder, *Writer) {
	t.Helper()
	b, w := newBuilder(t)
	for _, f := range []string{"population_rank", "state", "population", "name"} {
		require.NoError(t, b.AddField(stage0, f))
	}
	require.NoError(t, b.AddFilter(stage0, model.Filter{Code: "year > 2000"}))
	require.NoError(t, b.AddFilter(stage0, model.Filter{Code: "population > 1000", Kind: model.ExprAggregate}))
	require.NoError(t, b.AddFilter(stage0, model.Filter{Code: "gender = 'F'"}))
	require.NoError(t, b.AddOrderBy(stage0, 2, model.Descending))
	require.NoError(t, b.AddLimit(stage0, 10, nil))
	require.NoError(t, b.EditParameter("min_year", strp("1950")))
	require.NoError(t, b.SetRenderer(stage0, nil, tags.Dashboard))
	b.SetName("top_names")
	return b, w
}

func TestForms(t *testing.T) {
	b, w := buildFull(t)
	for _, form := range []Form{FormQuery, FormView, FormMarkdown} {
		t.Run(string(form), func(t *testing.T) {
			out, err := w.Render(form, b.Query(), b.Arguments(), "census.malloy")
			require.NoError(t, err)
			assertGolden(t, string(form)+"_full", out)
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	b, w := buildFull(t)
	first, err := w.QueryString(b.Query(), b.Arguments())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := w.QueryString(b.Query(), b.Arguments())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSourceRef_DefaultArgumentsOmitted(t *testing.T) {
	b, w := newBuilder(t)
	require.NoError(t, b.AddField(stage0, "name"))

	out := run(t, b, w)
	assert.Contains(t, out, "run: names -> {")

	out, err := w.RunString(b.Query(), map[string]string{"min_year": "1910"})
	require.NoError(t, err)
	assert.Contains(t, out, "run: names -> {", "an argument equal to the default is not rendered")
}

func TestQueryString_DefaultName(t *testing.T) {
	b, w := newBuilder(t)
	require.NoError(t, b.AddField(stage0, "name"))
	out, err := w.QueryString(b.Query(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "query: new_query is names -> {")
}

func TestRender_Errors(t *testing.T) {
	_, w := newBuilder(t)

	_, err := w.RunString(&model.Query{}, nil)
	assert.Error(t, err)

	q := model.NewQuery("")
	q.Pipeline[0].Fields = []model.Entry{&model.Reference{Path: "missing"}}
	_, err = w.RunString(q, nil)
	assert.Error(t, err)

	_, err = w.Render("pdf", q, nil, "")
	assert.Error(t, err)
}

func TestParseForm(t *testing.T) {
	for _, f := range Forms {
		got, err := ParseForm(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseForm("html")
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	b, w := buildFull(t)
	require.NoError(t, b.AddFilterToField(stage0, 0, model.Filter{Code: "name = 'lloyd'"}, "lloyd_name"))

	s := w.Summary(b.Query())
	assert.Equal(t, "top_names", s.Name)
	assert.Equal(t, tags.Dashboard, s.Renderer)
	assert.True(t, s.CanRun)
	require.Len(t, s.Stages, 1)

	st := s.Stages[0]
	assert.Equal(t, model.StageReduce, st.Kind)
	require.Len(t, st.Fields, 4)

	lloyd := st.Fields[0]
	assert.Equal(t, ItemFilteredField, lloyd.Type)
	assert.Equal(t, "lloyd_name", lloyd.Name)
	assert.Equal(t, "name", lloyd.Path)
	assert.Equal(t, GroupBy, lloyd.Property)
	assert.Equal(t, KindDimension, lloyd.Kind)
	require.Len(t, lloyd.Filters, 1)
	assert.Equal(t, filterexpr.KindString, lloyd.Filters[0].Parsed.Kind)

	pop := st.Fields[2]
	assert.Equal(t, ItemField, pop.Type)
	assert.Equal(t, Aggregate, pop.Property)
	assert.Equal(t, KindMeasure, pop.Kind)
	assert.True(t, pop.Orderable)

	assert.Equal(t, Calculate, st.Fields[3].Property)

	require.Len(t, st.Filters, 3)
	assert.False(t, st.Filters[0].Having)
	assert.Equal(t, filterexpr.KindNumber, st.Filters[0].Parsed.Kind)
	assert.True(t, st.Filters[1].Having)

	require.Len(t, st.OrderBy, 1)
	assert.Equal(t, OrderItem{Index: 0, Field: "population", Direction: model.Descending, FieldIndex: 2}, st.OrderBy[0])
	require.NotNil(t, st.Limit)
	assert.Equal(t, 10, *st.Limit)
}

func TestSummary_NestedAndDefinitions(t *testing.T) {
	b, w := newBuilder(t)
	require.NoError(t, b.AddField(stage0, "name"))
	require.NoError(t, b.AddField(stage0, "population"))
	require.NoError(t, b.AddField(stage0, "by_state"))
	require.NoError(t, b.AddNewNestedQuery(stage0, "eyrie"))
	require.NoError(t, b.ReplaceWithDefinition(stage0, 1, nil))

	s := w.Summary(b.Query())
	assert.False(t, s.CanRun, "empty nested stage")
	fields := s.Stages[0].Fields
	require.Len(t, fields, 4)

	def := fields[1]
	assert.Equal(t, ItemFieldDefinition, def.Type)
	assert.Equal(t, "sum(number)", def.Code)
	require.NotNil(t, def.Definition)
	assert.Equal(t, measure.Sum, def.Definition.Func)

	turtle := fields[2]
	assert.Equal(t, ItemField, turtle.Type)
	assert.Equal(t, KindQuery, turtle.Kind)
	assert.Equal(t, Nest, turtle.Property)
	assert.Equal(t, tags.BarChart, turtle.Renderer)
	assert.False(t, turtle.Orderable)
	require.Len(t, turtle.Stages, 1)
	assert.Equal(t, "0:2/0", turtle.Stages[0].Path.String())

	eyrie := fields[3]
	assert.Equal(t, ItemNestedQueryDefinition, eyrie.Type)
	require.Len(t, eyrie.Stages, 1)
	assert.Empty(t, eyrie.Stages[0].Fields)
}

func TestSummary_ErrorPlaceholder(t *testing.T) {
	_, w := newBuilder(t)
	q := model.NewQuery("broken")
	q.Pipeline[0].Fields = []model.Entry{
		&model.Reference{Path: "name"},
		&model.Reference{Path: "gone"},
		&model.Reference{Path: "states"},
	}

	s := w.Summary(q)
	fields := s.Stages[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, ItemField, fields[0].Type)
	assert.Equal(t, ItemError, fields[1].Type)
	assert.Contains(t, fields[1].Error, "gone")
	assert.Equal(t, ItemError, fields[2].Type, "a join cannot be grouped")
}

func TestRunString_EmptyQuery(t *testing.T) {
	b, w := newBuilder(t)
	require.NoError(t, b.AddField(stage0, "name"))
	require.NoError(t, b.AddLimit(stage0, 10, nil))
	require.NoError(t, b.RemoveLimit(stage0))
	require.NoError(t, b.RemoveField(stage0, 0))

	assert.True(t, b.IsEmpty())
	assert.False(t, CanRun(b.Query()))
	assert.Equal(t, "run: names -> {\n}", run(t, b, w))
}
