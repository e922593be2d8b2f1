package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/composer/internal/config"
	"github.com/roach88/composer/internal/server"
	"github.com/roach88/composer/internal/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		modelPath string
		source    string
		addr      string
		db        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve editing sessions over HTTP",
		Long: `Serve composer sessions over a JSON HTTP API.

Settings come from COMPOSER_* environment variables; flags override
them. With --db, sessions persist to SQLite and survive restarts.

Routes:
  POST   /sessions               start a session ({"source": "..."} optional)
  GET    /sessions/{id}          derived state
  GET    /sessions/{id}/summary  structured summary
  GET    /sessions/{id}/source   query source (?form=run|query|view|markdown)
  GET    /sessions/{id}/history  persisted snapshots
  POST   /sessions/{id}/ops      apply one command
  POST   /sessions/{id}/undo     undo the last change
  DELETE /sessions/{id}          end a session`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if modelPath != "" {
				cfg.ModelPath = modelPath
			}
			if source != "" {
				cfg.Source = source
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if db != "" {
				cfg.DBPath = db
			}
			if rootOpts.Verbose {
				cfg.LogLevel = "debug"
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model file or CUE package directory")
	cmd.Flags().StringVarP(&source, "source", "s", "", "default root source")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database for session history")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := newHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("composer listening", "addr", cfg.ListenAddr, "model", cfg.ModelPath, "source", cfg.Source)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	return nil
}

// newHandler loads the model, opens the store and builds the router.
func newHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	m, err := loadModel(cfg.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := resolveSource(m, cfg.Source); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	srv, err := server.New(ctx, server.Options{
		Model:       m,
		ModelPath:   cfg.ModelPath,
		Source:      cfg.Source,
		Store:       st,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start server", err)
	}
	return srv.Handler(), func() { st.Close() }, nil
}
