package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/buecherhallen-watchlist/internal/app"
	"github.com/Sternrassler/buecherhallen-watchlist/internal/config"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/auth"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
	"github.com/Sternrassler/buecherhallen-watchlist/pkg/metrics"
)

func main() {
	if err := newRootCmd(os.LookupEnv, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(lookup config.LookupFunc, stdout, stderr io.Writer) *cobra.Command {
	cfg, envErr := config.FromEnv(lookup)

	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Report which saved items of a Bücherhallen watchlist are available, per branch.",
		Long: `watchlist logs in to the Bücherhallen Hamburg catalog, reads the saved list
and writes an HTML page (and a console table) of the branches where items are
available right now.

Credentials are read from BH_USERNAME and BH_PASSWORD. All other settings can be
given as BH_* environment variables or as flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Setup(logging.Config{
				Level:  logging.ParseLevel(cfg.LogLevel),
				Pretty: cfg.LogPretty,
				Output: stderr,
			})

			if envErr != nil {
				logging.ErrorChain(logger, "Invalid configuration", envErr)
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				logging.ErrorChain(logger, "Invalid configuration", err)
				return err
			}
			logger.Debug().Stringer("config", cfg).Msg("Configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.MetricsAddr != "" {
				shutdown := serveMetrics(cfg.MetricsAddr, logger)
				defer shutdown()
			}

			return run(ctx, cfg, stdout, logger)
		},
	}

	config.BindFlags(cmd.Flags(), &cfg)
	return cmd
}

func run(ctx context.Context, cfg config.Config, stdout io.Writer, logger zerolog.Logger) error {
	runner, cleanup, err := app.Build(ctx, cfg, stdout)
	if err != nil {
		logging.ErrorChain(logger, "Setup failed", err)
		return err
	}
	defer cleanup()

	if err := runner.Run(ctx, auth.Credentials{Username: cfg.Username, Password: cfg.Password}); err != nil {
		logging.ErrorChain(logger, "Run failed", err)
		return err
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// serveMetrics exposes /metrics for the duration of the run.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
