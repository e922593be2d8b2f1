// Package server exposes composer sessions over HTTP.
//
// Every route speaks JSON. A session lives in memory for the lifetime of
// the server; with a store configured it is also persisted and can be
// resumed after a restart by addressing it by ID.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/store"
	"github.com/roach88/composer/internal/writer"
)

// Options configures a Server. Model is required.
type Options struct {
	Model     *model.Model
	ModelPath string
	// Source is used when a create request names none.
	Source string
	// Store persists sessions when set.
	Store *store.Store
	// Clock is shared by every session. Defaults to a clock resuming
	// after the store's highest seq.
	Clock session.Clock
	// IDs defaults to UUIDv7.
	IDs         session.IDGenerator
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server routes HTTP requests to sessions.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

var errSessionNotFound = errors.New("session not found")

// New returns a Server. It reads the store once to seed the shared clock.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Model == nil {
		return nil, errors.New("server: a model is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		var start int64
		if opts.Store != nil {
			var err error
			if start, err = opts.Store.MaxSeq(ctx); err != nil {
				return nil, err
			}
		}
		opts.Clock = session.NewClockAt(start)
	}
	if opts.IDs == nil {
		opts.IDs = session.UUIDv7Generator{}
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*session.Session),
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": s.opts.Model.Name})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Get("/summary", s.handleSummary)
			r.Get("/source", s.handleSource)
			r.Get("/history", s.handleHistory)
			r.Post("/ops", s.handleOp)
			r.Post("/undo", s.handleUndo)
		})
	})
	return r
}

type createRequest struct {
	Source string `json:"source"`
}

type sessionResponse struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	History int             `json:"history"`
	State   *session.Result `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if req.Source == "" {
		req.Source = s.opts.Source
	}
	if s.opts.Model.Source(req.Source) == nil {
		s.writeError(w, r, badRequest(fmt.Errorf("model %q has no source %q", s.opts.Model.Name, req.Source)))
		return
	}

	sess, err := session.New(r.Context(), s.sessionOptions(req.Source))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.respondSession(w, r, http.StatusCreated, sess)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondSession(w, r, http.StatusOK, sess)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, held := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.opts.Store != nil {
		err := s.opts.Store.DeleteSession(r.Context(), id)
		if err != nil && !(held && errors.Is(err, store.ErrNotFound)) {
			s.writeError(w, r, err)
			return
		}
	} else if !held {
		s.writeError(w, r, errSessionNotFound)
		return
	}
	s.logger.Info("session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	form := writer.FormRun
	if v := r.URL.Query().Get("form"); v != "" {
		if form, err = writer.ParseForm(v); err != nil {
			s.writeError(w, r, badRequest(err))
			return
		}
	}
	src, err := sess.Source(form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": form, "source": src, "can_run": sess.CanRun()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snaps, err := sess.History(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var op session.Op
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&op); err != nil {
		s.writeError(w, r, badRequest(fmt.Errorf("decode op: %w", err)))
		return
	}
	res, err := sess.Apply(r.Context(), op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := sess.Undo(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// lookup finds the session named in the URL. A session unknown to this
// server but present in the store is resumed.
func (s *Server) lookup(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "id")
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if s.opts.Store == nil {
		return nil, errSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess, err := session.Resume(r.Context(), s.sessionOptions(""), id)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = sess
	return sess, nil
}

func (s *Server) sessionOptions(source string) session.Options {
	return session.Options{
		Model:     s.opts.Model,
		ModelPath: s.opts.ModelPath,
		Source:    source,
		Store:     s.opts.Store,
		Clock:     s.opts.Clock,
		IDs:       s.opts.IDs,
		Logger:    s.logger,
	}
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, status int, sess *session.Session) {
	state, err := sess.State()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, sessionResponse{
		ID:      sess.ID(),
		Source:  sess.SourceName(),
		History: sess.HistoryLen(),
		State:   state,
	})
}

// requestError marks a malformed request.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// statusOf maps an error to an HTTP status: 400 for refused commands and
// malformed requests, 404 for unknown sessions, 500 for everything else.
func statusOf(err error) int {
	var re *requestError
	switch {
	case errors.As(err, &re), session.IsUserError(err):
		return http.StatusBadRequest
	case errors.Is(err, errSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err)
	}
	code := session.CodeOf(err)
	if code == "" && status == http.StatusNotFound {
		code = "NOT_FOUND"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
