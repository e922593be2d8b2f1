package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/composer/internal/store"
)

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	Session   store.SessionRecord `json:"session"`
	Snapshots []store.Snapshot    `json:"snapshots"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var showQuery bool

	cmd := &cobra.Command{
		Use:   "history <db> <session-id>",
		Short: "Show the persisted history of a session",
		Long: `List the snapshots recorded for a session, oldest first: the logical
sequence number, the command that produced it and the query fingerprint.

Exit codes:
  0 - History printed
  2 - Database or session not found

Examples:
  composer history composer.db 0192f0c1-7d8e-7c3a-9f1e-2b4d6a8c0e12
  composer history composer.db <id> --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], args[1], showQuery, cmd)
		},
	}

	cmd.Flags().BoolVar(&showQuery, "query", false, "print each snapshot's query as JSON (text format)")
	return cmd
}

func runHistory(opts *RootOptions, dbPath, id string, showQuery bool, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return reportError(f, ErrCodeNotFound, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath)))
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return reportError(f, ErrCodeGeneric, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	rec, err := st.ReadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return reportError(f, ErrCodeNotFound, WrapExitError(ExitCommandError, "unknown session", err))
	}
	if err != nil {
		return reportError(f, ErrCodeGeneric, WrapExitError(ExitCommandError, "failed to read session", err))
	}
	snaps, err := st.ReadSnapshots(ctx, id)
	if err != nil {
		return reportError(f, ErrCodeGeneric, WrapExitError(ExitCommandError, "failed to read history", err))
	}
	f.VerboseLog("Session %s: %d snapshot(s)", id, len(snaps))

	if f.Format == "json" {
		return f.Success(HistoryResult{Session: rec, Snapshots: snaps})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (source %s, model %s, created at seq %d)\n", rec.ID, rec.Source, rec.Model, rec.CreatedSeq)
	if len(snaps) == 0 {
		b.WriteString("No changes recorded.")
		return f.Success(b.String())
	}
	for i, snap := range snaps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%6d  %-24s %s", snap.Seq, snap.Label, shortFingerprint(snap.Fingerprint))
		if showQuery {
			data, err := json.Marshal(snap.Query)
			if err != nil {
				return reportError(f, ErrCodeGeneric, err)
			}
			fmt.Fprintf(&b, "\n        %s", data)
		}
	}
	return f.Success(b.String())
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
