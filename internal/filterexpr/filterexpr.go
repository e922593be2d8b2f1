// Package filterexpr converts between filter source text and the
// structured form the filter pickers edit.
//
// Parse is a best-effort recogniser over the small set of shapes Code
// generates. It never fails: text it does not recognise comes back as a
// KindCustom filter carrying the raw code, so the UI can fall back to a
// free-text editor.
package filterexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/composer/internal/model"
)

// Kind selects the picker a filter is edited with.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindTime    Kind = "time"
	KindCustom  Kind = "custom"
)

// Op is a picker operation.
type Op string

const (
	OpEquals         Op = "equals"
	OpNotEquals      Op = "not_equals"
	OpStartsWith     Op = "starts_with"
	OpNotStartsWith  Op = "not_starts_with"
	OpEndsWith       Op = "ends_with"
	OpNotEndsWith    Op = "not_ends_with"
	OpContains       Op = "contains"
	OpNotContains    Op = "not_contains"
	OpBlank          Op = "blank"
	OpNotBlank       Op = "not_blank"
	OpNull           Op = "null"
	OpNotNull        Op = "not_null"
	OpGreater        Op = "greater"
	OpGreaterOrEqual Op = "greater_or_equal"
	OpLess           Op = "less"
	OpLessOrEqual    Op = "less_or_equal"
	OpBetween        Op = "between"
	OpTrue           Op = "true"
	OpFalse          Op = "false"
	OpTrueOrNull     Op = "true_or_null"
	OpFalseOrNull    Op = "false_or_null"
	OpOn             Op = "on"
	OpBefore         Op = "before"
	OpAfter          Op = "after"
	OpLast           Op = "last"
	OpNext           Op = "next"
	OpThis           Op = "this"
)

// Units are the time units the time picker offers.
var Units = []string{"second", "minute", "hour", "day", "week", "month", "quarter", "year"}

// Filter is the structured form of one filter condition.
type Filter struct {
	Kind   Kind     `json:"kind"`
	Field  string   `json:"field,omitempty"`
	Op     Op       `json:"op,omitempty"`
	Values []string `json:"values,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	// Code is the raw source text of a custom filter.
	Code string `json:"code,omitempty"`
}

// Custom returns a custom filter holding code verbatim.
func Custom(code string) Filter {
	return Filter{Kind: KindCustom, Code: code}
}

// TypeFunc reports the value type of a field path, if known.
type TypeFunc func(path string) (model.ValueType, bool)

const pathPattern = "[A-Za-z_][A-Za-z0-9_]*(?:\\.[A-Za-z_][A-Za-z0-9_]*)*"

var (
	clauseRE  = regexp.MustCompile(`^\s*(` + pathPattern + `)\s*(!=|>=|<=|!~|=|>|<|~|\?)\s*(.*?)\s*$`)
	numberRE  = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
	timeLitRE = regexp.MustCompile(`^@[0-9][0-9A-Za-z:\-. ]*$`)
	betweenRE = regexp.MustCompile(`^(\S+)\s+to\s+(\S+)$`)
	lastRE    = regexp.MustCompile(`^now\s*-\s*(\d+)\s+([a-z]+?)s?\s+for\s+(\d+)\s+([a-z]+?)s?$`)
	nextRE    = regexp.MustCompile(`^now\s+for\s+(\d+)\s+([a-z]+?)s?$`)
	thisRE    = regexp.MustCompile(`^now\.([a-z]+)$`)
)

// Parse recognises code as one of the picker shapes.
//
// typeOf, when non-nil, confirms the picker kind against the field's
// declared type; a mismatch degrades to custom. With a nil typeOf the
// kind is inferred from the literal.
func Parse(code string, typeOf TypeFunc) Filter {
	m := clauseRE.FindStringSubmatch(code)
	if m == nil {
		return Custom(code)
	}
	field, op, rhs := m[1], m[2], m[3]

	var declared Kind
	if typeOf != nil {
		if t, ok := typeOf(field); ok {
			declared = kindOf(t)
		}
	}

	f, ok := parseClause(field, op, rhs, declared)
	if !ok || (declared != "" && f.Kind != declared) {
		return Custom(code)
	}
	return f
}

func kindOf(t model.ValueType) Kind {
	switch t {
	case model.TypeString:
		return KindString
	case model.TypeNumber:
		return KindNumber
	case model.TypeBoolean:
		return KindBoolean
	case model.TypeDate, model.TypeTimestamp:
		return KindTime
	default:
		return KindCustom
	}
}

func parseClause(field, op, rhs string, declared Kind) (Filter, bool) {
	if rhs == "null" {
		kind := declared
		if kind == "" || kind == KindCustom {
			kind = KindString
		}
		switch op {
		case "=":
			return Filter{Kind: kind, Field: field, Op: OpNull}, true
		case "!=":
			return Filter{Kind: kind, Field: field, Op: OpNotNull}, true
		}
		return Filter{}, false
	}

	if vals, ok := splitAlternatives(rhs, unquote); ok {
		return parseString(field, op, vals)
	}
	if vals, ok := splitAlternatives(rhs, number); ok {
		return parseNumber(field, op, vals)
	}
	if rhs == "true" || rhs == "false" {
		return parseBoolean(field, op, rhs)
	}
	return parseTime(field, op, rhs)
}

func parseString(field, op string, vals []string) (Filter, bool) {
	f := Filter{Kind: KindString, Field: field}
	if len(vals) == 1 && vals[0] == "" {
		switch op {
		case "=":
			f.Op = OpBlank
			return f, true
		case "!=":
			f.Op = OpNotBlank
			return f, true
		}
		return Filter{}, false
	}
	switch op {
	case "=":
		f.Op, f.Values = OpEquals, vals
		return f, true
	case "!=":
		f.Op, f.Values = OpNotEquals, vals
		return f, true
	case "~", "!~":
		if len(vals) != 1 {
			return Filter{}, false
		}
		v := vals[0]
		lead, trail := strings.HasPrefix(v, "%"), strings.HasSuffix(v, "%")
		inner := strings.TrimSuffix(strings.TrimPrefix(v, "%"), "%")
		if inner == "" || strings.ContainsAny(inner, "%_") {
			return Filter{}, false
		}
		switch {
		case lead && trail:
			f.Op = OpContains
		case trail:
			f.Op = OpStartsWith
		case lead:
			f.Op = OpEndsWith
		default:
			return Filter{}, false
		}
		if op == "!~" {
			f.Op = "not_" + f.Op
		}
		f.Values = []string{inner}
		return f, true
	}
	return Filter{}, false
}

func parseNumber(field, op string, vals []string) (Filter, bool) {
	f := Filter{Kind: KindNumber, Field: field, Values: vals}
	multi := len(vals) > 1
	switch op {
	case "=":
		f.Op = OpEquals
	case "!=":
		f.Op = OpNotEquals
	case ">":
		f.Op = OpGreater
	case ">=":
		f.Op = OpGreaterOrEqual
	case "<":
		f.Op = OpLess
	case "<=":
		f.Op = OpLessOrEqual
	default:
		return Filter{}, false
	}
	if multi && f.Op != OpEquals && f.Op != OpNotEquals {
		return Filter{}, false
	}
	return f, true
}

func parseBoolean(field, op, rhs string) (Filter, bool) {
	f := Filter{Kind: KindBoolean, Field: field}
	switch {
	case op == "=" && rhs == "true":
		f.Op = OpTrue
	case op == "=" && rhs == "false":
		f.Op = OpFalse
	case op == "!=" && rhs == "false":
		f.Op = OpTrueOrNull
	case op == "!=" && rhs == "true":
		f.Op = OpFalseOrNull
	default:
		return Filter{}, false
	}
	return f, true
}

func parseTime(field, op, rhs string) (Filter, bool) {
	f := Filter{Kind: KindTime, Field: field}
	if op == "?" {
		if m := betweenRE.FindStringSubmatch(rhs); m != nil {
			if !timeLitRE.MatchString(m[1]) {
				// Numeric ranges share the "a to b" shape.
				if numberRE.MatchString(m[1]) && numberRE.MatchString(m[2]) {
					return Filter{Kind: KindNumber, Field: field, Op: OpBetween, Values: []string{m[1], m[2]}}, true
				}
				return Filter{}, false
			}
			if !timeLitRE.MatchString(m[2]) {
				return Filter{}, false
			}
			f.Op, f.Values = OpBetween, []string{m[1][1:], m[2][1:]}
			return f, true
		}
		if m := lastRE.FindStringSubmatch(rhs); m != nil {
			if m[1] != m[3] || m[2] != m[4] || !isUnit(m[2]) {
				return Filter{}, false
			}
			f.Op, f.Values, f.Unit = OpLast, []string{m[1]}, m[2]
			return f, true
		}
		if m := nextRE.FindStringSubmatch(rhs); m != nil {
			if !isUnit(m[2]) {
				return Filter{}, false
			}
			f.Op, f.Values, f.Unit = OpNext, []string{m[1]}, m[2]
			return f, true
		}
		if m := thisRE.FindStringSubmatch(rhs); m != nil {
			if !isUnit(m[1]) {
				return Filter{}, false
			}
			f.Op, f.Unit = OpThis, m[1]
			return f, true
		}
	}
	if !timeLitRE.MatchString(rhs) {
		return Filter{}, false
	}
	lit := rhs[1:]
	switch op {
	case "?", "=":
		f.Op = OpOn
	case "<":
		f.Op = OpBefore
	case ">":
		f.Op = OpAfter
	default:
		return Filter{}, false
	}
	f.Values = []string{lit}
	return f, true
}

func isUnit(s string) bool {
	for _, u := range Units {
		if u == s {
			return true
		}
	}
	return false
}

// splitAlternatives splits "a | b | c" and converts each part with conv.
func splitAlternatives(rhs string, conv func(string) (string, bool)) ([]string, bool) {
	parts := strings.Split(rhs, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v, ok := conv(strings.TrimSpace(p))
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", false
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			b.WriteByte(body[i])
		case c == '\'':
			return "", false
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

func number(s string) (string, bool) {
	return s, numberRE.MatchString(s)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// Code renders f back to filter source text.
func Code(f Filter) (string, error) {
	if f.Kind == KindCustom {
		return f.Code, nil
	}
	if f.Field == "" {
		return "", fmt.Errorf("filterexpr: %s filter has no field", f.Kind)
	}
	switch f.Op {
	case OpNull:
		return f.Field + " = null", nil
	case OpNotNull:
		return f.Field + " != null", nil
	}
	switch f.Kind {
	case KindString:
		return stringCode(f)
	case KindNumber:
		return numberCode(f)
	case KindBoolean:
		return booleanCode(f)
	case KindTime:
		return timeCode(f)
	default:
		return "", fmt.Errorf("filterexpr: unknown kind %q", f.Kind)
	}
}

func needValues(f Filter, n int) error {
	if n < 0 && len(f.Values) == 0 {
		return fmt.Errorf("filterexpr: %s needs at least one value", f.Op)
	}
	if n >= 0 && len(f.Values) != n {
		return fmt.Errorf("filterexpr: %s needs %d value(s), got %d", f.Op, n, len(f.Values))
	}
	return nil
}

func stringCode(f Filter) (string, error) {
	switch f.Op {
	case OpBlank:
		return f.Field + " = ''", nil
	case OpNotBlank:
		return f.Field + " != ''", nil
	case OpEquals, OpNotEquals:
		if err := needValues(f, -1); err != nil {
			return "", err
		}
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = quote(v)
		}
		op := "="
		if f.Op == OpNotEquals {
			op = "!="
		}
		return fmt.Sprintf("%s %s %s", f.Field, op, strings.Join(quoted, " | ")), nil
	}
	var pattern, op string
	switch f.Op {
	case OpStartsWith, OpNotStartsWith:
		pattern = "%s%%"
	case OpEndsWith, OpNotEndsWith:
		pattern = "%%%s"
	case OpContains, OpNotContains:
		pattern = "%%%s%%"
	default:
		return "", fmt.Errorf("filterexpr: %s is not a string operation", f.Op)
	}
	if err := needValues(f, 1); err != nil {
		return "", err
	}
	op = "~"
	if strings.HasPrefix(string(f.Op), "not_") {
		op = "!~"
	}
	return fmt.Sprintf("%s %s %s", f.Field, op, quote(fmt.Sprintf(pattern, f.Values[0]))), nil
}

var numberOps = map[Op]string{
	OpEquals:         "=",
	OpNotEquals:      "!=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
}

func numberCode(f Filter) (string, error) {
	for _, v := range f.Values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", fmt.Errorf("filterexpr: %q is not a number", v)
		}
	}
	if f.Op == OpBetween {
		if err := needValues(f, 2); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ? %s to %s", f.Field, f.Values[0], f.Values[1]), nil
	}
	op, ok := numberOps[f.Op]
	if !ok {
		return "", fmt.Errorf("filterexpr: %s is not a number operation", f.Op)
	}
	if f.Op == OpEquals || f.Op == OpNotEquals {
		if err := needValues(f, -1); err != nil {
			return "", err
		}
	} else if err := needValues(f, 1); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", f.Field, op, strings.Join(f.Values, " | ")), nil
}

func booleanCode(f Filter) (string, error) {
	switch f.Op {
	case OpTrue:
		return f.Field + " = true", nil
	case OpFalse:
		return f.Field + " = false", nil
	case OpTrueOrNull:
		return f.Field + " != false", nil
	case OpFalseOrNull:
		return f.Field + " != true", nil
	}
	return "", fmt.Errorf("filterexpr: %s is not a boolean operation", f.Op)
}

func timeCode(f Filter) (string, error) {
	switch f.Op {
	case OpOn, OpBefore, OpAfter:
		if err := needValues(f, 1); err != nil {
			return "", err
		}
		op := map[Op]string{OpOn: "?", OpBefore: "<", OpAfter: ">"}[f.Op]
		return fmt.Sprintf("%s %s @%s", f.Field, op, f.Values[0]), nil
	case OpBetween:
		if err := needValues(f, 2); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s ? @%s to @%s", f.Field, f.Values[0], f.Values[1]), nil
	case OpLast, OpNext:
		if err := needValues(f, 1); err != nil {
			return "", err
		}
		if !isUnit(f.Unit) {
			return "", fmt.Errorf("filterexpr: unknown time unit %q", f.Unit)
		}
		n := f.Values[0]
		if _, err := strconv.Atoi(n); err != nil {
			return "", fmt.Errorf("filterexpr: %q is not a count", n)
		}
		unit := plural(f.Unit, n)
		if f.Op == OpLast {
			return fmt.Sprintf("%s ? now - %s %s for %s %s", f.Field, n, unit, n, unit), nil
		}
		return fmt.Sprintf("%s ? now for %s %s", f.Field, n, unit), nil
	case OpThis:
		if !isUnit(f.Unit) {
			return "", fmt.Errorf("filterexpr: unknown time unit %q", f.Unit)
		}
		return fmt.Sprintf("%s ? now.%s", f.Field, f.Unit), nil
	}
	return "", fmt.Errorf("filterexpr: %s is not a time operation", f.Op)
}

func plural(unit, n string) string {
	if n == "1" {
		return unit
	}
	return unit + "s"
}
