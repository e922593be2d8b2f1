package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/composer/internal/model"
)

func TestCodeAndParse(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
		code string
	}{
		{"count", New(Count, ""), "count()"},
		{"count distinct", New(CountDistinct, "name"), "count(name)"},
		{"sum", New(Sum, "population"), "sum(population)"},
		{"avg through join", New(Avg, "states.area"), "avg(states.area)"},
		{"max", New(Max, "year"), "max(year)"},
		{"percent of total", New(PercentOfTotal, "population"), "100 * population / all(population)"},
		{"rank", New(Rank, ""), "rank()"},
		{"lag", New(Lag, "population"), "lag(population)"},
		{"lead with offset", Template{Kind: KindCalculation, Func: Lead, Field: "population", Offset: "2"}, "lead(population, 2)"},
		{"first value", New(FirstValue, "name"), "first_value(name)"},
		{"truncate", Template{Kind: KindDimension, Func: Truncate, Field: "birth_date", Unit: "month"}, "birth_date.month"},
		{"extract", Template{Kind: KindDimension, Func: Extract, Field: "birth_date", Unit: "day_of_week"}, "day_of_week(birth_date)"},
		{"upper", New(Upper, "name"), "upper(name)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Code(tt.tmpl)
			require.NoError(t, err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.tmpl, Parse(code))
		})
	}
}

func TestParse_Custom(t *testing.T) {
	for _, code := range []string{
		"sum(population) / count()",
		"100 * population / all(name_count)",
		"pick 'x' when true else 'y'",
		"birth_date.fortnight",
	} {
		t.Run(code, func(t *testing.T) {
			got := Parse(code)
			assert.Equal(t, KindCustom, got.Kind)
			assert.Equal(t, code, got.Code)
		})
	}
}

func TestCode_Errors(t *testing.T) {
	_, err := Code(Template{Kind: KindMeasure, Func: "median", Field: "x"})
	assert.Error(t, err)
	_, err = Code(New(Sum, ""))
	assert.Error(t, err)
	_, err = Code(Template{Kind: KindDimension, Func: Truncate, Field: "d", Unit: "day_of_week"})
	assert.Error(t, err)
}

func TestDefine(t *testing.T) {
	f, err := Define("total", New(Sum, "population"), model.TypeNumber)
	require.NoError(t, err)
	assert.Equal(t, &model.Atomic{Name: "total", Type: model.TypeNumber, Expression: model.ExprAggregate, Code: "sum(population)"}, f)

	f, err = Define("birth_month", Template{Kind: KindDimension, Func: Truncate, Field: "birth_date", Unit: "month"}, model.TypeDate)
	require.NoError(t, err)
	assert.Equal(t, model.TypeDate, f.Type)
	assert.Equal(t, model.ExprScalar, f.Expression)

	f, err = Define("prev", New(Lag, "name"), model.TypeString)
	require.NoError(t, err)
	assert.Equal(t, model.ExprCalculation, f.Expression)
	assert.Equal(t, model.TypeString, f.Type)

	_, err = Define("", New(Count, ""), "")
	assert.Error(t, err)
	_, err = Define("x", Parse("foo(bar)"), "")
	assert.Error(t, err)
}
