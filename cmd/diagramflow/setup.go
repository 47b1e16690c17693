package main

import (
	"context"
	"errors"
	"log/slog"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/config"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// app is everything a subcommand needs, built from settings.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	store    *session.Store
	gen      *diagramflow.Generator

	// release frees backend clients the store does not own.
	release func() error
}

// appOptions tune newApp per subcommand.
type appOptions struct {
	// telemetry records OTel metrics and spans through the global providers.
	telemetry bool
}

func newApp(ctx context.Context, opts *rootOptions, ao appOptions) (*app, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, wrapExit(exitCommandError, "failed to load config", err)
	}

	level := observability.ParseLevel(settings.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewLogger(settings.LogFormat, level)

	presets := opts.Presets
	if presets == nil {
		presets, err = settings.BuildPresets(llm.WithLogger(logger))
		if err != nil {
			return nil, wrapExit(exitCommandError, "failed to build provider presets", err)
		}
	}
	if presets.Len() == 0 {
		logger.Warn("no provider presets configured; requests must carry a provider")
	}

	store, release, err := settings.Session.OpenStore(ctx, logger)
	if err != nil {
		return nil, wrapExit(exitCommandError, "failed to open session store", err)
	}

	genOpts := []diagramflow.GeneratorOption{
		diagramflow.WithPresets(presets),
		diagramflow.WithStore(store),
		diagramflow.WithLogger(logger),
	}
	if !settings.Pacing {
		genOpts = append(genOpts, diagramflow.WithTimings(stream.NoPacing))
	}
	if ao.telemetry {
		genOpts = append(genOpts,
			diagramflow.WithMetricsRecorder(observability.NewMetricsRecorder()),
			diagramflow.WithTracer(observability.NewTracer()),
		)
	}

	gen, err := diagramflow.NewGenerator(genOpts...)
	if err != nil {
		_ = store.Close()
		_ = release()
		return nil, wrapExit(exitCommandError, "failed to build generator", err)
	}

	logger.Debug("app ready",
		slog.String("session_backend", settings.Session.Backend),
		slog.Any("presets", presets.Names()),
		slog.String("default_preset", presets.Default()),
	)
	return &app{settings: settings, logger: logger, store: store, gen: gen, release: release}, nil
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.release())
}

// closeQuietly logs a close failure instead of returning it.
func closeQuietly(a *app) {
	if err := a.Close(); err != nil {
		a.logger.Error("error closing session store", slog.String("error", err.Error()))
	}
}
