package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/composer/internal/session"
	"github.com/roach88/composer/internal/writer"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	ComposeOptions
	Form string
}

// RenderResult is the JSON payload of the render command.
type RenderResult struct {
	Session string      `json:"session"`
	Form    writer.Form `json:"form"`
	Source  string      `json:"source"`
	CanRun  bool        `json:"can_run"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <model>",
		Short: "Render a composed query as Malloy source",
		Long: `Start from a blank query (or a named query of the source), apply a
script of editing commands and print the resulting Malloy source.

The script is a YAML list of commands:

  - op: add_field
    field: state
  - op: add_limit
    limit: 10

Exit codes:
  0 - Query rendered
  1 - A scripted command was refused
  2 - Command error (model or script unreadable, unknown source)

Examples:
  composer render census.yaml --source names --script top_states.yaml
  composer render ./model --load by_state --form query
  composer render census.yaml --script ops.yaml --form markdown --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	addComposeFlags(cmd, &opts.ComposeOptions)
	cmd.Flags().StringVar(&opts.Form, "form", string(writer.FormRun), "output form (run|query|view|markdown)")

	return cmd
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComposeOptions{}

	cmd := &cobra.Command{
		Use:   "summary <model>",
		Short: "Print the structured summary of a composed query",
		Long: `Apply a script of editing commands like render does and print the
query summary as JSON: stages, their field entries with kind and
property, filters, orderings and limits.

Examples:
  composer summary census.yaml --source names --script ops.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(rootOpts, opts, args[0], cmd)
		},
	}

	addComposeFlags(cmd, opts)
	return cmd
}

func addComposeFlags(cmd *cobra.Command, opts *ComposeOptions) {
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "root source to compose against")
	cmd.Flags().StringVar(&opts.Script, "script", "", "YAML file of editing commands")
	cmd.Flags().StringVar(&opts.Load, "load", "", "named query of the source to start from")
	cmd.Flags().StringVar(&opts.DB, "db", "", "persist the session to this SQLite database")
}

func runRender(opts *RenderOptions, modelPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	form, err := writer.ParseForm(opts.Form)
	if err != nil {
		return reportError(f, ErrCodeGeneric, WrapExitError(ExitCommandError, "invalid --form", err))
	}

	s, cleanup, err := compose(cmd.Context(), modelPath, &opts.ComposeOptions, f)
	if err != nil {
		return reportError(f, ErrCodeGeneric, err)
	}
	defer cleanup()

	src, err := s.Source(form)
	if err != nil {
		return reportError(f, ErrCodeRender, WrapExitError(ExitFailure, "failed to render query", err))
	}
	if !s.CanRun() {
		f.VerboseLog("query has an empty stage and cannot run yet")
	}

	if f.Format == "json" {
		return f.Success(RenderResult{Session: s.ID(), Form: form, Source: src, CanRun: s.CanRun()})
	}
	return f.Success(src)
}

func runSummary(rootOpts *RootOptions, opts *ComposeOptions, modelPath string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)

	s, cleanup, err := compose(cmd.Context(), modelPath, opts, f)
	if err != nil {
		return reportError(f, ErrCodeGeneric, err)
	}
	defer cleanup()

	if f.Format == "json" {
		return f.Success(s.Summary())
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s.Summary())
}

// reportError writes err as a JSON error response when JSON output is
// selected and returns it. The code of a refused command wins over code.
func reportError(f *OutputFormatter, code string, err error) error {
	if f.Format != "json" {
		return err
	}
	if c := session.CodeOf(err); c != "" {
		code = c
	}
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return fmt.Errorf("%w (output failed: %v)", err, outErr)
	}
	return err
}
