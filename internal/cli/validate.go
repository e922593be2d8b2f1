package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/composer/internal/loader"
	"github.com/roach88/composer/internal/model"
)

// ValidationResult describes a model that loaded cleanly.
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	Model   string          `json:"model"`
	Sources []SourceOutline `json:"sources"`
}

// SourceOutline counts what a source offers to the composer.
type SourceOutline struct {
	Name       string   `json:"name"`
	Fields     int      `json:"fields"`
	Queries    []string `json:"queries,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model definition",
		Long: `Load a model file (YAML, JSON or CUE) or CUE package directory, check
it against the model schema and report its sources.

Exit codes:
  0 - Model is valid
  1 - Model failed validation
  2 - Model not found`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	m, err := loadModel(path)
	if err != nil {
		var le *loader.LoadError
		if errors.As(err, &le) {
			if f.Format == "json" {
				_ = f.Error(le.Code, le.Message, map[string]string{"path": le.Path})
			}
			return WrapExitError(ExitFailure, "model is invalid", le)
		}
		return reportError(f, ErrCodeNotFound, err)
	}

	result := ValidationResult{Valid: true, Model: m.Name, Sources: outline(m)}
	if f.Format == "json" {
		return f.Success(result)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✓ model %s is valid (%d sources)", m.Name, len(result.Sources))
	for _, src := range result.Sources {
		fmt.Fprintf(&b, "\n  %s: %d fields", src.Name, src.Fields)
		if len(src.Queries) > 0 {
			fmt.Fprintf(&b, ", queries: %s", strings.Join(src.Queries, ", "))
		}
		if len(src.Parameters) > 0 {
			fmt.Fprintf(&b, ", parameters: %s", strings.Join(src.Parameters, ", "))
		}
	}
	return f.Success(b.String())
}

func outline(m *model.Model) []SourceOutline {
	out := make([]SourceOutline, 0, len(m.Sources))
	for _, src := range m.Sources {
		o := SourceOutline{Name: src.Name, Fields: len(src.Fields)}
		for _, fld := range src.Fields {
			if t, ok := fld.(*model.Turtle); ok {
				o.Queries = append(o.Queries, t.FieldName())
			}
		}
		for _, p := range src.Parameters {
			o.Parameters = append(o.Parameters, p.Name)
		}
		out = append(out, o)
	}
	return out
}
