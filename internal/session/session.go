package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/composer/internal/builder"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/schema"
	"github.com/roach88/composer/internal/stagepath"
	"github.com/roach88/composer/internal/store"
	"github.com/roach88/composer/internal/writer"
)

// Compiler turns query source text into a compiled query. It is the
// external Malloy compiler; the session only decides when to call it.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (json.RawMessage, error)
}

// CompileRequest is what a Compiler receives.
type CompileRequest struct {
	Source    string       `json:"source"`
	Model     *model.Model `json:"model,omitempty"`
	ModelPath string       `json:"model_path,omitempty"`
}

// Options configures a Session. Model and Source are required.
type Options struct {
	// Model holds the source the session composes against.
	Model *model.Model
	// ModelPath is recorded with the session and used by markdown output.
	ModelPath string
	// Source names the root source within Model.
	Source string

	// Evaluator computes stage output schemas; nil selects the standard one.
	Evaluator schema.Evaluator
	// Store persists snapshots when set.
	Store *store.Store
	// Clock stamps persisted changes. Defaults to a clock resuming after
	// the store's highest seq.
	Clock Clock
	// IDs generates session and snapshot identifiers. Defaults to UUIDv7.
	IDs IDGenerator
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is one editing session over a single root source.
//
// Session is safe for concurrent use; operations are serialized.
type Session struct {
	mu sync.Mutex

	id        string
	model     *model.Model
	modelPath string
	b         *builder.Builder
	w         *writer.Writer
	history   []builder.Snapshot

	store  *store.Store
	clock  Clock
	ids    IDGenerator
	logger *slog.Logger
}

// Result is the derived state after a command.
type Result struct {
	Summary *writer.Summary `json:"summary"`
	Source  string          `json:"source"`
	CanRun  bool            `json:"can_run"`
	// Changed is false when the command left the query as it was; such
	// commands are not recorded in the history.
	Changed bool `json:"changed"`
	// Seq is the logical time of the persisted snapshot, or 0.
	Seq int64 `json:"seq,omitempty"`
	// Stage is the address of a stage the command added.
	Stage *stagepath.Path `json:"stage,omitempty"`
}

// New starts a session holding a blank query.
func New(ctx context.Context, opts Options) (*Session, error) {
	s, err := newSession(ctx, opts, "")
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		rec := store.SessionRecord{
			ID:         s.id,
			Model:      s.recordedModel(),
			Source:     s.b.Source().Name,
			CreatedSeq: s.clock.Next(),
		}
		if err := s.store.WriteSession(ctx, rec); err != nil {
			return nil, err
		}
	}
	s.logger.Info("session started", "session", s.id, "source", s.b.Source().Name)
	return s, nil
}

// Resume reopens a persisted session at its latest snapshot. The undo
// history starts empty.
func Resume(ctx context.Context, opts Options, id string) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("resume: a store is required")
	}
	rec, err := opts.Store.ReadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = rec.Source
	}
	if opts.Source != rec.Source {
		return nil, fmt.Errorf("resume: session %s composes %q, not %q", id, rec.Source, opts.Source)
	}
	s, err := newSession(ctx, opts, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.LatestSnapshot(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		s.b.Restore(builder.Snapshot{Query: snap.Query, Arguments: snap.Arguments})
	}
	s.logger.Info("session resumed", "session", id, "source", rec.Source)
	return s, nil
}

func newSession(ctx context.Context, opts Options, id string) (*Session, error) {
	if opts.Model == nil {
		return nil, errors.New("session: a model is required")
	}
	root := opts.Model.Source(opts.Source)
	if root == nil {
		return nil, fmt.Errorf("session: model %q has no source %q", opts.Model.Name, opts.Source)
	}
	s := &Session{
		model:     opts.Model,
		modelPath: opts.ModelPath,
		b:         builder.New(root, opts.Evaluator),
		store:     opts.Store,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
	}
	s.w = writer.New(s.b.Navigator())
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ids == nil {
		s.ids = UUIDv7Generator{}
	}
	if s.clock == nil {
		var start int64
		if s.store != nil {
			var err error
			if start, err = s.store.MaxSeq(ctx); err != nil {
				return nil, err
			}
		}
		s.clock = NewClockAt(start)
	}
	s.id = id
	if s.id == "" {
		s.id = s.ids.Generate()
	}
	return s, nil
}

func (s *Session) recordedModel() string {
	if s.modelPath != "" {
		return s.modelPath
	}
	return s.model.Name
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SourceName returns the name of the root source.
func (s *Session) SourceName() string {
	return s.b.Source().Name
}

// Query returns a copy of the current query.
func (s *Session) Query() *model.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Query()
}

// Arguments returns a copy of the parameter overrides.
func (s *Session) Arguments() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Arguments()
}

// IsEmpty reports whether the query carries nothing.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.IsEmpty()
}

// HistoryLen returns how many changes Undo can revert.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Apply runs op. On any failure, including a query that can no longer be
// rendered, the session is left exactly as it was.
func (s *Session) Apply(ctx context.Context, op Op) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.b.Snapshot()
	added, err := op.apply(s.b)
	if err != nil {
		s.b.Restore(before)
		s.logger.Debug("op refused", "session", s.id, "op", op.Kind, "error", err)
		return nil, err
	}

	res, err := s.derive()
	if err != nil {
		s.b.Restore(before)
		s.logger.Warn("op rolled back", "session", s.id, "op", op.Kind, "error", err)
		return nil, &Error{Code: ErrCodeDerivation, Message: "query cannot be rendered", Op: op.Kind, Err: err}
	}
	res.Stage = added

	changed, err := s.changed(before)
	if err != nil {
		s.b.Restore(before)
		return nil, err
	}
	if !changed {
		s.logger.Debug("op left query unchanged", "session", s.id, "op", op.Kind)
		return res, nil
	}

	if res.Seq, err = s.persist(ctx, string(op.Kind)); err != nil {
		s.b.Restore(before)
		return nil, err
	}
	s.history = append(s.history, before)
	res.Changed = true
	s.logger.Debug("op applied", "session", s.id, "op", op.Kind, "seq", res.Seq, "can_run", res.CanRun)
	return res, nil
}

// Undo reverts the most recent change.
func (s *Session) Undo(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return nil, &Error{Code: ErrCodeNothingToUndo, Message: "history is empty"}
	}
	current := s.b.Snapshot()
	s.b.Restore(s.history[len(s.history)-1])

	res, err := s.derive()
	if err != nil {
		s.b.Restore(current)
		return nil, &Error{Code: ErrCodeDerivation, Message: "previous query cannot be rendered", Err: err}
	}
	if res.Seq, err = s.persist(ctx, "undo"); err != nil {
		s.b.Restore(current)
		return nil, err
	}
	s.history = s.history[:len(s.history)-1]
	res.Changed = true
	s.logger.Debug("undo", "session", s.id, "seq", res.Seq)
	return res, nil
}

// Summary returns the structured summary of the current query.
func (s *Session) Summary() *writer.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Summary(s.b.Query())
}

// CanRun reports whether the current query can be compiled.
func (s *Session) CanRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.CanRun()
}

// Source renders the current query in form.
func (s *Session) Source(form writer.Form) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Render(form, s.b.Query(), s.b.Arguments(), s.modelPath)
}

// State returns the derived state without changing anything.
func (s *Session) State() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derive()
}

// Run hands the run form of the query to c. A query with an empty stage
// is refused without calling c.
func (s *Session) Run(ctx context.Context, c Compiler) (json.RawMessage, error) {
	s.mu.Lock()
	if !s.b.CanRun() {
		s.mu.Unlock()
		return nil, &Error{Code: ErrCodeNotRunnable, Message: "every stage needs at least one field"}
	}
	src, err := s.w.RunString(s.b.Query(), s.b.Arguments())
	s.mu.Unlock()
	if err != nil {
		return nil, &Error{Code: ErrCodeDerivation, Message: "query cannot be rendered", Err: err}
	}

	out, err := c.Compile(ctx, CompileRequest{Source: src, Model: s.model, ModelPath: s.modelPath})
	if err != nil {
		return nil, &Error{Code: ErrCodeCompile, Message: "compiler rejected the query", Err: err}
	}
	s.logger.Info("query compiled", "session", s.id)
	return out, nil
}

// History returns the persisted snapshots of this session in seq order.
// Without a store it returns an empty slice.
func (s *Session) History(ctx context.Context) ([]store.Snapshot, error) {
	if s.store == nil {
		return []store.Snapshot{}, nil
	}
	return s.store.ReadSnapshots(ctx, s.id)
}

// derive recomputes everything a client shows for the current query.
// Callers hold s.mu.
func (s *Session) derive() (*Result, error) {
	q := s.b.Query()
	src, err := s.w.RunString(q, s.b.Arguments())
	if err != nil {
		return nil, err
	}
	return &Result{Summary: s.w.Summary(q), Source: src, CanRun: q.IsRunnable()}, nil
}

func (s *Session) changed(before builder.Snapshot) (bool, error) {
	was, err := model.Fingerprint(before.Query)
	if err != nil {
		return false, err
	}
	now, err := model.Fingerprint(s.b.Query())
	if err != nil {
		return false, err
	}
	if was != now {
		return true, nil
	}
	wasArgs, err := model.ArgumentsFingerprint(before.Arguments)
	if err != nil {
		return false, err
	}
	nowArgs, err := model.ArgumentsFingerprint(s.b.Arguments())
	if err != nil {
		return false, err
	}
	return wasArgs != nowArgs, nil
}

func (s *Session) persist(ctx context.Context, label string) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	seq := s.clock.Next()
	snap := store.Snapshot{
		ID:        s.ids.Generate(),
		SessionID: s.id,
		Seq:       seq,
		Label:     label,
		Query:     s.b.Query(),
		Arguments: s.b.Arguments(),
	}
	if err := s.store.WriteSnapshot(ctx, snap); err != nil {
		return 0, err
	}
	return seq, nil
}
