// Command diagramflow-lambda serves single-shot generation behind an API
// Gateway proxy integration. Configuration comes from the environment and
// DIAGRAMFLOW_CONFIG; use a redis or sqlite session backend so canvases
// outlive a container.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/config"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

func main() {
	settings, err := config.Load(os.Getenv("DIAGRAMFLOW_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := observability.NewLogger(settings.LogFormat, observability.ParseLevel(settings.LogLevel))

	presets, err := settings.BuildPresets()
	if err != nil {
		logger.Error("failed to build presets", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, _, err := settings.Session.OpenStore(context.Background(), logger)
	if err != nil {
		logger.Error("failed to open session store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gen, err := diagramflow.NewGenerator(
		diagramflow.WithPresets(presets),
		diagramflow.WithStore(store),
		diagramflow.WithLogger(logger),
		diagramflow.WithTimings(stream.NoPacing),
	)
	if err != nil {
		logger.Error("failed to build generator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	h := &handler{gen: gen, logger: logger}
	lambda.Start(h.handle)
}
