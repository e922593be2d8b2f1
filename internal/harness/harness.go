package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/composer/internal/loader"
	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/store"
	"github.com/roach88/composer/internal/testutil"
)

// Harness executes one scenario against a live session.
type Harness struct {
	session *session.Session
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a step clock and
// sequential identifiers. An error is returned only when the scenario
// cannot be executed at all; step and assertion failures are recorded in
// the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := loader.LoadFile(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess, err := session.New(ctx, session.Options{
		Model:     m,
		ModelPath: scenario.Model,
		Source:    scenario.Source,
		Store:     st,
		Clock:     testutil.NewStepClock(0),
		IDs:       testutil.NewSequenceIDs(scenario.Name),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	h := &Harness{session: sess, logger: logger}
	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)

	state, err := sess.State()
	if err != nil {
		return nil, fmt.Errorf("failed to render final query: %w", err)
	}
	result.Source = state.Source
	result.CanRun = state.CanRun

	actx := &AssertionContext{Session: sess, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps applies each step and checks it against its expect_error.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		ev := TraceEvent{Step: i + 1, Op: string(step.Kind)}

		res, err := h.session.Apply(ctx, step.Op)
		switch {
		case err != nil:
			ev.Outcome = OutcomeRefused
			ev.Code = session.CodeOf(err)
		case res.Changed:
			ev.Outcome = OutcomeApplied
			ev.Seq = res.Seq
		default:
			ev.Outcome = OutcomeUnchanged
		}
		result.AddTrace(ev)

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", ev.Step, ev.Op, err))
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, op succeeded", ev.Step, ev.Op, step.ExpectError))
		case step.ExpectError != "" && ev.Code != step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v", ev.Step, ev.Op, step.ExpectError, err))
		}

		h.logger.Info("step completed",
			"step", ev.Step,
			"op", ev.Op,
			"outcome", ev.Outcome,
			"code", ev.Code,
		)
	}
}
