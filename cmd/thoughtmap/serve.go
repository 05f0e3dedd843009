package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/thoughtmap/internal/api"
	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/mcpserver"
	"github.com/MrWong99/thoughtmap/internal/observe"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the concept map server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g)
		},
	}
}

func runServe(cmd *cobra.Command, g *globalFlags) error {
	cfg, found, err := loadConfig(cmd, g.configPath)
	if err != nil {
		return err
	}
	levelVar, debugLog := setupLogging(cmd.ErrOrStderr(), cfg.Server.LogLevel)
	slog.Info("thoughtmap starting",
		"version", version,
		"config", g.configPath,
		"config_found", found,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(ctx, observe.WithServiceVersion(version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Extraction.Timeout)
	if err := reg.Check(cfg.Providers); err != nil {
		slog.Warn("provider configuration references unknown providers", "err", err)
	}
	providers := buildProviders(cfg, reg)

	// ── Application ──────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithLevelVar(levelVar),
		app.WithDebugLog(debugLog),
		app.WithSeedCredential(os.Getenv(envAPIKey)),
	}
	if found {
		opts = append(opts, app.WithConfigWatch(g.configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	apiOpts := []api.Option{api.WithMetricsHandler(telemetry.Handler())}
	if !cfg.MCP.Disabled {
		apiOpts = append(apiOpts, api.WithMCP(mcpserver.New(application).Handler()))
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.New(application, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	fmt.Fprintln(cmd.OutOrStdout(), startupSummary(cfg, found, !cfg.MCP.Disabled))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return application.Run(egCtx) })
	eg.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := eg.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}
