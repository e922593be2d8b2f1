package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/composer/internal/builder"
	"github.com/roach88/composer/internal/filterexpr"
	"github.com/roach88/composer/internal/measure"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/store"
	"github.com/roach88/composer/internal/testutil"
	"github.com/roach88/composer/internal/writer"
)

func intp(i int) *int { return &i }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, st *store.Store) *Session {
	t.Helper()
	s, err := New(testContext(t), Options{
		Model:     testutil.CensusModel(),
		ModelPath: "census.cue",
		Source:    "names",
		Store:     st,
		Clock:     testutil.NewStepClock(0),
		IDs:       testutil.NewSequenceIDs("s"),
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	return s
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "composer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func apply(t *testing.T, s *Session, op Op) *Result {
	t.Helper()
	res, err := s.Apply(testContext(t), op)
	require.NoError(t, err)
	return res
}

func TestNew_UnknownSource(t *testing.T) {
	_, err := New(testContext(t), Options{Model: testutil.CensusModel(), Source: "nope", Logger: quietLogger()})
	assert.Error(t, err)

	_, err = New(testContext(t), Options{Source: "names"})
	assert.Error(t, err)
}

func TestApply_DerivesState(t *testing.T) {
	s := newTestSession(t, nil)
	assert.Equal(t, "s-0001", s.ID())

	res := apply(t, s, Op{Kind: OpAddField, Field: "name"})
	assert.True(t, res.Changed)
	assert.True(t, res.CanRun)
	assert.Equal(t, "run: names -> {\n  group_by: name\n}", res.Source)
	require.Len(t, res.Summary.Stages, 1)
	assert.Equal(t, "name", res.Summary.Stages[0].Fields[0].Name)
	assert.Zero(t, res.Seq, "nothing is persisted without a store")

	res = apply(t, s, Op{Kind: OpAddNestedQuery, Name: "eyrie"})
	assert.False(t, res.CanRun, "the nested query has no fields")
}

func TestApply_EmptyAfterLimitRoundTrip(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	apply(t, s, Op{Kind: OpAddLimit, Limit: 10})
	apply(t, s, Op{Kind: OpRemoveLimit})
	res := apply(t, s, Op{Kind: OpRemoveField, Index: intp(0)})

	assert.True(t, s.IsEmpty())
	assert.False(t, res.CanRun)
	assert.Equal(t, "run: names -> {\n}", res.Source)
}

func TestApply_RefusedLeavesStateUnchanged(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	before := s.Query()

	tests := []struct {
		name string
		op   Op
		code string
	}{
		{"index out of range", Op{Kind: OpRemoveField, Index: intp(5)}, string(builder.ErrCodeIndexOutOfRange)},
		{"missing index", Op{Kind: OpRemoveField}, string(ErrCodeInvalidOp)},
		{"bad limit", Op{Kind: OpAddLimit, Limit: 0}, string(builder.ErrCodeInvalidLimit)},
		{"unknown kind", Op{Kind: "explode"}, string(ErrCodeInvalidOp)},
		{"empty kind", Op{}, string(ErrCodeInvalidOp)},
		{"missing filter", Op{Kind: OpAddFilter}, string(ErrCodeInvalidOp)},
		{"bad stage", Op{Kind: OpAddField, Field: "state", Stage: ptr(stagepath.Root(4))}, string(builder.ErrCodeInvalidStage)},
		{"unknown parameter", Op{Kind: OpEditParameter, Name: "max_year"}, string(builder.ErrCodeUnknownParameter)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Apply(testContext(t), tt.op)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.True(t, IsUserError(err))
			assert.Equal(t, before, s.Query())
			assert.Equal(t, 1, s.HistoryLen())
		})
	}
}

func ptr[T any](v T) *T { return &v }

// failingEvaluator refuses to evaluate any stage grouping by gender.
type failingEvaluator struct {
	schema.StandardEvaluator
}

func (ev *failingEvaluator) NextSchema(input *model.Source, stage *model.Stage) (*model.Source, error) {
	for _, e := range stage.Fields {
		if e.Name() == "gender" {
			return nil, errors.New("gender cannot be evaluated")
		}
	}
	return ev.StandardEvaluator.NextSchema(input, stage)
}

func TestApply_DerivationFailureRollsBack(t *testing.T) {
	s, err := New(testContext(t), Options{
		Model:     testutil.CensusModel(),
		Source:    "names",
		Evaluator: &failingEvaluator{},
		IDs:       testutil.NewSequenceIDs("s"),
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	res := apply(t, s, Op{Kind: OpAddStage})
	require.NotNil(t, res.Stage)
	assert.Equal(t, "1", res.Stage.String())
	before := s.Query()

	_, err = s.Apply(testContext(t), Op{Kind: OpAddField, Field: "gender"})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDerivation))
	assert.False(t, IsUserError(err))
	assert.Equal(t, before, s.Query())
	assert.Equal(t, 2, s.HistoryLen())
}

func TestApply_NoOpIsNotRecorded(t *testing.T) {
	st := openStore(t)
	s := newTestSession(t, st)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})

	res := apply(t, s, Op{Kind: OpRemoveLimit})
	assert.False(t, res.Changed)
	assert.Equal(t, 1, s.HistoryLen())

	res = apply(t, s, Op{Kind: OpEditParameter, Name: "min_year"})
	assert.False(t, res.Changed, "resetting an unset parameter")

	history, err := s.History(testContext(t))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApply_ParameterChangeIsRecorded(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	res := apply(t, s, Op{Kind: OpEditParameter, Name: "min_year", Value: ptr("1950")})
	assert.True(t, res.Changed)
	assert.Contains(t, res.Source, "names(min_year is 1950)")
	assert.Equal(t, 2, s.HistoryLen())
}

func TestUndo(t *testing.T) {
	st := openStore(t)
	s := newTestSession(t, st)

	_, err := s.Undo(testContext(t))
	assert.True(t, HasCode(err, ErrCodeNothingToUndo))

	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	apply(t, s, Op{Kind: OpAddField, Field: "population"})

	res, err := s.Undo(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "run: names -> {\n  group_by: name\n}", res.Source)
	assert.Equal(t, int64(4), res.Seq)

	res, err = s.Undo(testContext(t))
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
	assert.False(t, res.CanRun)

	history, err := s.History(testContext(t))
	require.NoError(t, err)
	labels := make([]string, len(history))
	for i, h := range history {
		labels[i] = h.Label
	}
	assert.Equal(t, []string{"add_field", "add_field", "undo", "undo"}, labels)
	assert.Equal(t, int64(2), history[0].Seq, "seq 1 stamps the session record")
}

func TestResume(t *testing.T) {
	st := openStore(t)
	s := newTestSession(t, st)
	apply(t, s, Op{Kind: OpAddField, Field: "state"})
	apply(t, s, Op{Kind: OpAddField, Field: "population"})
	apply(t, s, Op{Kind: OpEditParameter, Name: "min_year", Value: ptr("2000")})
	want, err := s.Source(writer.FormRun)
	require.NoError(t, err)

	resumed, err := Resume(testContext(t), Options{
		Model:  testutil.CensusModel(),
		Store:  st,
		Logger: quietLogger(),
	}, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), resumed.ID())
	assert.Equal(t, "names", resumed.SourceName())

	got, err := resumed.Source(writer.FormRun)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, resumed.HistoryLen())

	res := apply(t, resumed, Op{Kind: OpAddField, Field: "name"})
	assert.Greater(t, res.Seq, int64(4), "the resumed clock continues after the stored seq")

	_, err = Resume(testContext(t), Options{Model: testutil.CensusModel(), Store: st}, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = Resume(testContext(t), Options{Model: testutil.CensusModel()}, s.ID())
	assert.Error(t, err)
}

func TestApply_FilterForms(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	apply(t, s, Op{Kind: OpAddField, Field: "population"})

	apply(t, s, Op{Kind: OpAddFilter, Filter: &FilterSpec{
		Picker: &filterexpr.Filter{Kind: filterexpr.KindNumber, Field: "year", Op: filterexpr.OpGreater, Values: []string{"2000"}},
	}})
	res := apply(t, s, Op{Kind: OpAddFilter, Filter: &FilterSpec{Code: "population > 100", Having: true}})

	filters := res.Summary.Stages[0].Filters
	require.Len(t, filters, 2)
	assert.Equal(t, "year > 2000", filters[0].Code)
	assert.False(t, filters[0].Having)
	assert.True(t, filters[1].Having)

	res = apply(t, s, Op{Kind: OpEditFilter, FilterIndex: intp(0), Filter: &FilterSpec{Code: "year > 1990"}})
	assert.Contains(t, res.Source, "where: year > 1990")

	res = apply(t, s, Op{Kind: OpRemoveFilter, FilterIndex: intp(1)})
	assert.NotContains(t, res.Source, "having:")
}

func TestApply_AddDefinition(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})

	tmpl := measure.New(measure.Avg, "year")
	res := apply(t, s, Op{Kind: OpAddDefinition, Definition: &DefinitionSpec{Name: "avg_year", Template: &tmpl}})
	fields := res.Summary.Stages[0].Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "avg_year", fields[1].Name)
	assert.Equal(t, writer.ItemFieldDefinition, fields[1].Type)
	assert.Contains(t, res.Source, "avg_year is avg(year)")

	res = apply(t, s, Op{Kind: OpAddDefinition, Definition: &DefinitionSpec{
		Name: "decade", Code: "floor(year / 10) * 10", Type: model.TypeNumber,
	}})
	assert.Contains(t, res.Source, "decade is floor(year / 10) * 10")

	_, err := s.Apply(testContext(t), Op{Kind: OpAddDefinition, Definition: &DefinitionSpec{Name: "x"}})
	assert.True(t, HasCode(err, ErrCodeInvalidOp))
}

func TestApply_OrderingAndRenderer(t *testing.T) {
	s := newTestSession(t, nil)
	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	apply(t, s, Op{Kind: OpAddField, Field: "population"})
	apply(t, s, Op{Kind: OpAddOrderBy, Index: intp(1), Direction: model.Descending})
	res := apply(t, s, Op{Kind: OpEditOrderBy, OrderIndex: intp(0), Direction: model.Ascending})
	assert.Contains(t, res.Source, "order_by: population asc")

	res = apply(t, s, Op{Kind: OpSetRenderer, Renderer: "bar_chart"})
	assert.Contains(t, res.Source, "# bar_chart")

	res = apply(t, s, Op{Kind: OpRemoveOrderBy, OrderIndex: intp(0)})
	assert.NotContains(t, res.Source, "order_by")
}

func TestApply_LoadQueryAndClear(t *testing.T) {
	s := newTestSession(t, nil)
	res := apply(t, s, Op{Kind: OpLoadQuery, Name: "by_state"})
	assert.Equal(t, "by_state", res.Summary.Name)
	assert.True(t, res.CanRun)

	apply(t, s, Op{Kind: OpSetName, Name: "states_view"})
	src, err := s.Source(writer.FormQuery)
	require.NoError(t, err)
	assert.Contains(t, src, "query: states_view is names -> {")

	res = apply(t, s, Op{Kind: OpClear})
	assert.True(t, s.IsEmpty())
	assert.True(t, res.Changed)
}

type recordingCompiler struct {
	got CompileRequest
	err error
}

func (c *recordingCompiler) Compile(_ context.Context, req CompileRequest) (json.RawMessage, error) {
	c.got = req
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestRun(t *testing.T) {
	s := newTestSession(t, nil)
	c := &recordingCompiler{}

	_, err := s.Run(testContext(t), c)
	assert.True(t, HasCode(err, ErrCodeNotRunnable))
	assert.Empty(t, c.got.Source, "the compiler is not called for an empty query")

	apply(t, s, Op{Kind: OpAddField, Field: "name"})
	out, err := s.Run(testContext(t), c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, "run: names -> {\n  group_by: name\n}", c.got.Source)
	assert.Equal(t, "census.cue", c.got.ModelPath)

	c.err = fmt.Errorf("syntax error")
	_, err = s.Run(testContext(t), c)
	assert.True(t, HasCode(err, ErrCodeCompile))
}

func TestLogicalClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
	assert.Equal(t, int64(1), NewClock().Next())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
