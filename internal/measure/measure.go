// Package measure generates the source text of common measure,
// calculation and dimension-transform definitions, and recognises that
// text again.
//
// Parse is regex based and lossy by nature. It never fails: anything it
// does not recognise comes back as a KindCustom template carrying the raw
// code.
package measure

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/composer/internal/model"
)

// Kind is the menu a template belongs to.
type Kind string

const (
	KindMeasure     Kind = "measure"
	KindCalculation Kind = "calculation"
	KindDimension   Kind = "dimension"
	KindCustom      Kind = "custom"
)

// Func names a template.
type Func string

const (
	Count          Func = "count"
	CountDistinct  Func = "count_distinct"
	Sum            Func = "sum"
	Avg            Func = "avg"
	Min            Func = "min"
	Max            Func = "max"
	PercentOfTotal Func = "percent_of_total"

	RowNumber  Func = "row_number"
	Rank       Func = "rank"
	Lag        Func = "lag"
	Lead       Func = "lead"
	FirstValue Func = "first_value"
	LastValue  Func = "last_value"

	Truncate Func = "truncate"
	Extract  Func = "extract"
	Lower    Func = "lower"
	Upper    Func = "upper"
)

var kinds = map[Func]Kind{
	Count: KindMeasure, CountDistinct: KindMeasure, Sum: KindMeasure, Avg: KindMeasure,
	Min: KindMeasure, Max: KindMeasure, PercentOfTotal: KindMeasure,
	RowNumber: KindCalculation, Rank: KindCalculation, Lag: KindCalculation,
	Lead: KindCalculation, FirstValue: KindCalculation, LastValue: KindCalculation,
	Truncate: KindDimension, Extract: KindDimension, Lower: KindDimension, Upper: KindDimension,
}

// TruncUnits are valid for time truncation.
var TruncUnits = []string{"second", "minute", "hour", "day", "week", "month", "quarter", "year"}

// ExtractUnits are valid for time extraction.
var ExtractUnits = []string{"second", "minute", "hour", "day", "day_of_week", "day_of_year", "week", "month", "quarter", "year"}

// Template is a structured measure, calculation or transform.
type Template struct {
	Kind  Kind   `json:"kind"`
	Func  Func   `json:"func,omitempty"`
	Field string `json:"field,omitempty"`
	// Offset is the optional row offset of lag and lead.
	Offset string `json:"offset,omitempty"`
	// Unit is the time unit of truncate and extract.
	Unit string `json:"unit,omitempty"`
	// Code is the raw text of a custom template.
	Code string `json:"code,omitempty"`
}

// New returns a template for fn applied to field, with its Kind filled in.
func New(fn Func, field string) Template {
	return Template{Kind: kinds[fn], Func: fn, Field: field}
}

// Code renders t as source text.
func Code(t Template) (string, error) {
	if t.Kind == KindCustom {
		return t.Code, nil
	}
	if _, ok := kinds[t.Func]; !ok {
		return "", fmt.Errorf("measure: unknown function %q", t.Func)
	}
	needField := t.Func != Count && t.Func != RowNumber && t.Func != Rank
	if needField && t.Field == "" {
		return "", fmt.Errorf("measure: %s needs a field", t.Func)
	}
	switch t.Func {
	case Count, RowNumber, Rank:
		return string(t.Func) + "()", nil
	case CountDistinct:
		return fmt.Sprintf("count(%s)", t.Field), nil
	case PercentOfTotal:
		return fmt.Sprintf("100 * %s / all(%s)", t.Field, t.Field), nil
	case Lag, Lead:
		if t.Offset != "" {
			return fmt.Sprintf("%s(%s, %s)", t.Func, t.Field, t.Offset), nil
		}
		return fmt.Sprintf("%s(%s)", t.Func, t.Field), nil
	case Truncate:
		if !slices.Contains(TruncUnits, t.Unit) {
			return "", fmt.Errorf("measure: cannot truncate to %q", t.Unit)
		}
		return t.Field + "." + t.Unit, nil
	case Extract:
		if !slices.Contains(ExtractUnits, t.Unit) {
			return "", fmt.Errorf("measure: cannot extract %q", t.Unit)
		}
		return fmt.Sprintf("%s(%s)", t.Unit, t.Field), nil
	default:
		return fmt.Sprintf("%s(%s)", t.Func, t.Field), nil
	}
}

const pathPattern = `[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*`

var (
	noArgRE   = regexp.MustCompile(`^(count|row_number|rank)\(\)$`)
	oneArgRE  = regexp.MustCompile(`^(count|sum|avg|min|max|first_value|last_value|lower|upper)\((` + pathPattern + `)\)$`)
	offsetRE  = regexp.MustCompile(`^(lag|lead)\((` + pathPattern + `)(?:,\s*(\d+))?\)$`)
	percentRE = regexp.MustCompile(`^100\s*\*\s*(` + pathPattern + `)\s*/\s*all\((` + pathPattern + `)\)$`)
	extractRE = regexp.MustCompile(`^(` + strings.Join(ExtractUnits, "|") + `)\((` + pathPattern + `)\)$`)
	truncRE   = regexp.MustCompile(`^(` + pathPattern + `)\.(` + strings.Join(TruncUnits, "|") + `)$`)
)

// Parse recognises code produced by Code.
func Parse(code string) Template {
	s := strings.TrimSpace(code)
	if m := noArgRE.FindStringSubmatch(s); m != nil {
		return New(Func(m[1]), "")
	}
	if m := oneArgRE.FindStringSubmatch(s); m != nil {
		fn := Func(m[1])
		if fn == Count {
			fn = CountDistinct
		}
		return New(fn, m[2])
	}
	if m := offsetRE.FindStringSubmatch(s); m != nil {
		t := New(Func(m[1]), m[2])
		t.Offset = m[3]
		return t
	}
	if m := percentRE.FindStringSubmatch(s); m != nil && m[1] == m[2] {
		return New(PercentOfTotal, m[1])
	}
	if m := extractRE.FindStringSubmatch(s); m != nil {
		t := New(Extract, m[2])
		t.Unit = m[1]
		return t
	}
	if m := truncRE.FindStringSubmatch(s); m != nil {
		t := New(Truncate, m[1])
		t.Unit = m[2]
		return t
	}
	return Template{Kind: KindCustom, Code: code}
}

// Expression returns the expression kind a template's code evaluates to.
func Expression(t Template) model.ExprKind {
	switch t.Kind {
	case KindMeasure:
		return model.ExprAggregate
	case KindCalculation:
		return model.ExprCalculation
	default:
		return model.ExprScalar
	}
}

// ResultType returns the value type of t applied to a field of type in.
func ResultType(t Template, in model.ValueType) model.ValueType {
	switch t.Func {
	case Count, CountDistinct, Sum, Avg, PercentOfTotal, RowNumber, Rank, Extract:
		return model.TypeNumber
	case Lower, Upper:
		return model.TypeString
	default:
		return in
	}
}

// Define builds an inline field definition named name from t.
// in is the value type of the template's field, when it has one.
func Define(name string, t Template, in model.ValueType) (*model.Atomic, error) {
	if name == "" {
		return nil, fmt.Errorf("measure: definition needs a name")
	}
	if t.Kind == KindCustom {
		return nil, fmt.Errorf("measure: custom code has no known type")
	}
	code, err := Code(t)
	if err != nil {
		return nil, err
	}
	return &model.Atomic{
		Name:       name,
		Type:       ResultType(t, in),
		Expression: Expression(t),
		Code:       code,
	}, nil
}
