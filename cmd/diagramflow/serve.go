package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/api"
)

type serveOptions struct {
	*rootOptions
	Addr      string
	Telemetry bool
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve diagram generation, streaming and canvas sessions over HTTP.

Example:
  diagramflow serve --config diagramflow.yaml
  DIAGRAMFLOW_SESSION_BACKEND=sqlite diagramflow serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.Telemetry, "otel", false, "record OpenTelemetry metrics and spans")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts.rootOptions, appOptions{telemetry: opts.Telemetry})
	if err != nil {
		return err
	}
	defer closeQuietly(a)

	addr := a.settings.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	srv := api.NewServer(a.gen, api.WithLogger(a.logger), api.WithAddr(addr))

	if a.settings.Session.SweepInterval > 0 {
		go a.store.RunSweeper(ctx, a.settings.Session.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return wrapExit(exitFailure, "server failed", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("shutting down", slog.String("reason", context.Cause(ctx).Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return wrapExit(exitFailure, "shutdown failed", err)
	}
	return <-errCh
}
