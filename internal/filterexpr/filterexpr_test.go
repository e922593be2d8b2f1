package filterexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/composer/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		code string
		want Filter
	}{
		{"name = 'lloyd'", Filter{Kind: KindString, Field: "name", Op: OpEquals, Values: []string{"lloyd"}}},
		{"name != 'a' | 'b'", Filter{Kind: KindString, Field: "name", Op: OpNotEquals, Values: []string{"a", "b"}}},
		{"name ~ 'Ll%'", Filter{Kind: KindString, Field: "name", Op: OpStartsWith, Values: []string{"Ll"}}},
		{"name !~ '%yd'", Filter{Kind: KindString, Field: "name", Op: OpNotEndsWith, Values: []string{"yd"}}},
		{"states.region ~ '%west%'", Filter{Kind: KindString, Field: "states.region", Op: OpContains, Values: []string{"west"}}},
		{"name = ''", Filter{Kind: KindString, Field: "name", Op: OpBlank}},
		{"name = 'o\\'brien'", Filter{Kind: KindString, Field: "name", Op: OpEquals, Values: []string{"o'brien"}}},
		{"name = null", Filter{Kind: KindString, Field: "name", Op: OpNull}},
		{"year >= 1990", Filter{Kind: KindNumber, Field: "year", Op: OpGreaterOrEqual, Values: []string{"1990"}}},
		{"year = 1990 | 2000", Filter{Kind: KindNumber, Field: "year", Op: OpEquals, Values: []string{"1990", "2000"}}},
		{"year ? 1990 to 2000", Filter{Kind: KindNumber, Field: "year", Op: OpBetween, Values: []string{"1990", "2000"}}},
		{"active = true", Filter{Kind: KindBoolean, Field: "active", Op: OpTrue}},
		{"active != true", Filter{Kind: KindBoolean, Field: "active", Op: OpFalseOrNull}},
		{"birth_date ? @2020-01-01", Filter{Kind: KindTime, Field: "birth_date", Op: OpOn, Values: []string{"2020-01-01"}}},
		{"birth_date < @2020", Filter{Kind: KindTime, Field: "birth_date", Op: OpBefore, Values: []string{"2020"}}},
		{"birth_date ? @2020 to @2021", Filter{Kind: KindTime, Field: "birth_date", Op: OpBetween, Values: []string{"2020", "2021"}}},
		{"birth_date ? now - 7 days for 7 days", Filter{Kind: KindTime, Field: "birth_date", Op: OpLast, Values: []string{"7"}, Unit: "day"}},
		{"birth_date ? now for 1 month", Filter{Kind: KindTime, Field: "birth_date", Op: OpNext, Values: []string{"1"}, Unit: "month"}},
		{"birth_date ? now.quarter", Filter{Kind: KindTime, Field: "birth_date", Op: OpThis, Unit: "quarter"}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.code, nil))
		})
	}
}

func TestParse_DegradesToCustom(t *testing.T) {
	for _, code := range []string{
		"year > 1 and year < 5",
		"length(name) > 3",
		"name ~ r'^L'",
		"name ~ 'a%b'",
		"birth_date ? now - 7 days for 3 days",
		"birth_date ? now.fortnight",
		"",
	} {
		t.Run(code, func(t *testing.T) {
			got := Parse(code, nil)
			assert.Equal(t, KindCustom, got.Kind)
			assert.Equal(t, code, got.Code)
		})
	}
}

func TestParse_TypeDirected(t *testing.T) {
	typeOf := func(path string) (model.ValueType, bool) {
		switch path {
		case "year":
			return model.TypeNumber, true
		case "flag":
			return model.TypeJSON, true
		}
		return "", false
	}

	got := Parse("year = null", typeOf)
	assert.Equal(t, Filter{Kind: KindNumber, Field: "year", Op: OpNull}, got)

	// A string literal against a number field is not something the picker built.
	assert.Equal(t, KindCustom, Parse("year = '1990'", typeOf).Kind)
	assert.Equal(t, KindCustom, Parse("flag = null", typeOf).Kind)

	// Unknown fields fall back to literal inference.
	assert.Equal(t, KindString, Parse("other = 'x'", typeOf).Kind)
}

func TestCode_RoundTrip(t *testing.T) {
	for _, code := range []string{
		"name = 'lloyd'",
		"name != 'a' | 'b'",
		"name ~ 'Ll%'",
		"name !~ '%west%'",
		"name = 'o\\'brien'",
		"name != ''",
		"name != null",
		"year < 5",
		"year ? 1 to 2.5",
		"active = false",
		"active != false",
		"birth_date > @2020-01-01",
		"birth_date ? @2020 to @2021",
		"birth_date ? now - 1 week for 1 week",
		"birth_date ? now for 3 hours",
		"birth_date ? now.year",
		"anything goes here",
	} {
		t.Run(code, func(t *testing.T) {
			got, err := Code(Parse(code, nil))
			require.NoError(t, err)
			assert.Equal(t, code, got)
		})
	}
}

func TestCode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   Filter
	}{
		{"no field", Filter{Kind: KindString, Op: OpEquals, Values: []string{"x"}}},
		{"no values", Filter{Kind: KindString, Field: "name", Op: OpEquals}},
		{"wrong op for kind", Filter{Kind: KindBoolean, Field: "b", Op: OpGreater}},
		{"not a number", Filter{Kind: KindNumber, Field: "n", Op: OpLess, Values: []string{"ten"}}},
		{"between arity", Filter{Kind: KindNumber, Field: "n", Op: OpBetween, Values: []string{"1"}}},
		{"bad unit", Filter{Kind: KindTime, Field: "t", Op: OpThis, Unit: "fortnight"}},
		{"bad count", Filter{Kind: KindTime, Field: "t", Op: OpLast, Unit: "day", Values: []string{"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Code(tt.in)
			assert.Error(t, err)
		})
	}
}
