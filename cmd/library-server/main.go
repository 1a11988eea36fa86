// Package main is the entry point for the library server.
// It serves the circulation API and, on a separate port, Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/handler"
	"github.com/prn-tf/alexander-library/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "library-server",
		Short:         "Serve the library circulation API",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "library-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting library server")

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens, err := a.TokenIssuer()
	if err != nil {
		return err
	}

	router := handler.NewRouter(handler.RouterConfig{
		BookService:   a.Books,
		UserService:   a.Users,
		LoanService:   a.Loans,
		ReportService: a.Reports,
		Tokens:        tokens,
		Health:        a.Store.Database,
		Metrics:       a.Metrics,
		MaxBodySize:   cfg.Server.MaxBodySize,
		Logger:        logger,
	})

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, a.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go serve(srv, logger, errCh)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		shutdown(servers, cfg.Server.ShutdownTimeout, logger)
		return err
	}

	shutdown(servers, cfg.Server.ShutdownTimeout, logger)
	logger.Info().Msg("server stopped")
	return nil
}

func serve(srv *http.Server, logger zerolog.Logger, errCh chan<- error) {
	logger.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
	}
}

func shutdown(servers []*http.Server, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("graceful shutdown failed")
		}
	}
}
