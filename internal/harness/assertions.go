package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/writer"
)

// AssertionError is returned when an assertion fails.
// It includes the step trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Step, ev.Op, ev.Outcome)
			if ev.Code != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Code)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the finished session.
type AssertionContext struct {
	Session *session.Session
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Session == nil {
			err = fmt.Errorf("assertion[%d]: %s requires a session", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertSourceEquals:
				err = assertSourceEquals(actx.Session, assertion)
			case AssertCanRun:
				err = assertBool(AssertCanRun, actx.Session.CanRun(), assertion)
			case AssertIsEmpty:
				err = assertBool(AssertIsEmpty, actx.Session.IsEmpty(), assertion)
			case AssertSummaryItem:
				err = assertSummaryItem(actx.Session.Summary(), assertion)
			case AssertStageCount:
				err = assertCount(AssertStageCount, len(actx.Session.Query().Pipeline), assertion)
			case AssertHistoryCount:
				var history int
				if history, err = historyLen(actx); err == nil {
					err = assertCount(AssertHistoryCount, history, assertion)
				}
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertSourceEquals(s *session.Session, a Assertion) error {
	form := writer.FormRun
	if a.Form != "" {
		form = writer.Form(a.Form)
	}
	got, err := s.Source(form)
	if err != nil {
		return fmt.Errorf("source_equals: %w", err)
	}
	if got != a.Expected {
		return &AssertionError{
			Type:     AssertSourceEquals,
			Expected: fmt.Sprintf("%s form:\n%s", form, indentBlock(a.Expected)),
			Actual:   "\n" + indentBlock(got),
		}
	}
	return nil
}

func indentBlock(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func assertBool(kind string, got bool, a Assertion) error {
	if got != *a.Value {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%v", *a.Value),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertCount(kind string, got int, a Assertion) error {
	if got != *a.Count {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", *a.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func historyLen(actx *AssertionContext) (int, error) {
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	history, err := actx.Session.History(ctx)
	if err != nil {
		return 0, fmt.Errorf("history_count: %w", err)
	}
	return len(history), nil
}

// assertSummaryItem checks the attributes the assertion names on one
// summary field; attributes left empty are not compared.
func assertSummaryItem(sum *writer.Summary, a Assertion) error {
	p := stagepath.Root(0)
	if a.Stage != "" {
		var err error
		if p, err = stagepath.Parse(a.Stage); err != nil {
			return fmt.Errorf("summary_item: %w", err)
		}
	}
	st, ok := findStage(sum.Stages, p)
	if !ok {
		return &AssertionError{
			Type:     AssertSummaryItem,
			Expected: "stage " + p.String(),
			Actual:   "no such stage in summary",
		}
	}
	if *a.Index < 0 || *a.Index >= len(st.Fields) {
		return &AssertionError{
			Type:     AssertSummaryItem,
			Expected: fmt.Sprintf("field %d of stage %s", *a.Index, p),
			Actual:   fmt.Sprintf("stage has %d fields", len(st.Fields)),
		}
	}
	item := st.Fields[*a.Index]

	var mismatches []string
	check := func(attr, want, got string) {
		if want != "" && want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", attr, got, want))
		}
	}
	check("type", a.Item.Type, string(item.Type))
	check("property", a.Item.Property, string(item.Property))
	check("kind", a.Item.Kind, string(item.Kind))
	check("name", a.Item.Name, item.Name)
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertSummaryItem,
			Expected: fmt.Sprintf("field %d of stage %s matches %+v", *a.Index, p, *a.Item),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// findStage walks the summary tree for the stage at p.
func findStage(stages []writer.StageSummary, p stagepath.Path) (writer.StageSummary, bool) {
	for _, st := range stages {
		if st.Path.Equal(p) {
			return st, true
		}
		for _, f := range st.Fields {
			if found, ok := findStage(f.Stages, p); ok {
				return found, true
			}
		}
	}
	return writer.StageSummary{}, false
}
