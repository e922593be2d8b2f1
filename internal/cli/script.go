package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/composer/internal/loader"
	"github.com/roach88/composer/internal/model"
	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/store"
)

// ComposeOptions are the flags shared by commands that build a query from
// a model and a command script.
type ComposeOptions struct {
	Source string // root source; may be omitted for single-source models
	Script string // YAML file holding a list of commands
	Load   string // named query of the source to start from
	DB     string // persist the session when set
}

// loadModel reads and validates a model file or CUE package directory.
func loadModel(path string) (*model.Model, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("model not found: %s", path))
	}
	m, err := loader.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load model", err)
	}
	return m, nil
}

// resolveSource picks the root source: the named one, or the only one.
func resolveSource(m *model.Model, name string) (string, error) {
	if name != "" {
		if m.Source(name) == nil {
			return "", NewExitError(ExitCommandError, fmt.Sprintf("model %q has no source %q", m.Name, name))
		}
		return name, nil
	}
	if len(m.Sources) == 1 {
		return m.Sources[0].Name, nil
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("model %q has %d sources; pick one with --source", m.Name, len(m.Sources)))
}

// LoadScript reads a YAML list of session commands. Unknown members are
// rejected.
func LoadScript(path string) ([]session.Op, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ops []session.Op
	if err := dec.Decode(&ops); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, op := range ops {
		if op.Kind == "" {
			return nil, fmt.Errorf("command %d: op is required", i)
		}
	}
	return ops, nil
}

// compose loads the model, starts a session and replays the script
// against it. A refused command stops the replay with ExitFailure.
func compose(ctx context.Context, modelPath string, opts *ComposeOptions, f *OutputFormatter) (*session.Session, func(), error) {
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	source, err := resolveSource(m, opts.Source)
	if err != nil {
		return nil, nil, err
	}
	f.VerboseLog("Loaded model %s (%d sources), composing %s", m.Name, len(m.Sources), source)

	var ops []session.Op
	if opts.Script != "" {
		if ops, err = LoadScript(opts.Script); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load script", err)
		}
	}

	cleanup := func() {}
	sopts := session.Options{Model: m, ModelPath: modelPath, Source: source, Logger: f.Logger()}
	if opts.DB != "" {
		st, err := store.Open(opts.DB)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		sopts.Store = st
		cleanup = func() { st.Close() }
	}

	s, err := session.New(ctx, sopts)
	if err != nil {
		cleanup()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start session", err)
	}

	if opts.Load != "" {
		ops = append([]session.Op{{Kind: session.OpLoadQuery, Name: opts.Load}}, ops...)
	}
	for i, op := range ops {
		res, err := s.Apply(ctx, op)
		if err != nil {
			cleanup()
			return nil, nil, &ExitError{
				Code:    ExitFailure,
				Message: fmt.Sprintf("command %d (%s) refused [%s]", i, op.Kind, session.CodeOf(err)),
				Err:     err,
			}
		}
		f.VerboseLog("[%d] %s changed=%t", i, op.Kind, res.Changed)
	}
	return s, cleanup, nil
}
