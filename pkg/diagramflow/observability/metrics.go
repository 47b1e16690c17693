package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder receives generation measurements. NoopMetrics discards
// them.
type MetricsRecorder interface {
	RecordStage(ctx context.Context, stage string, duration time.Duration, err error)
	RecordGeneration(ctx context.Context, mode string, success bool, duration time.Duration)
	// RecordSafeMode counts incremental edits that kept the prior graph.
	RecordSafeMode(ctx context.Context, reason string)
	RecordSessionSize(ctx context.Context, sizeBytes int64)
}

type otelMetrics struct {
	stageRuns    metric.Int64Counter
	stageErrors  metric.Int64Counter
	stageMillis  metric.Float64Histogram
	genRuns      metric.Int64Counter
	genMillis    metric.Float64Histogram
	safeMode     metric.Int64Counter
	sessionBytes metric.Int64Histogram
}

// instruments creates instruments on one meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.keep(err)
	return c
}

func (in *instruments) millis(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	in.keep(err)
	return h
}

func (in *instruments) bytes(name, desc string) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("By"))
	in.keep(err)
	return h
}

func (in *instruments) keep(err error) {
	if in.err == nil && err != nil {
		in.err = err
	}
}

func newOtelMetrics() (*otelMetrics, error) {
	in := &instruments{meter: otel.Meter(instrumentationName)}
	m := &otelMetrics{
		stageRuns:    in.counter("diagramflow.stage.executions", "Pipeline stage executions"),
		stageErrors:  in.counter("diagramflow.stage.errors", "Pipeline stages that returned an error"),
		stageMillis:  in.millis("diagramflow.stage.latency_ms", "Stage latency"),
		genRuns:      in.counter("diagramflow.generation.runs", "Finished generations"),
		genMillis:    in.millis("diagramflow.generation.latency_ms", "Generation latency"),
		safeMode:     in.counter("diagramflow.incremental.safe_mode", "Incremental edits that kept the prior graph"),
		sessionBytes: in.bytes("diagramflow.session.size_bytes", "Serialized session size"),
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

// NewMetricsRecorder returns an OpenTelemetry recorder bound to the global
// meter provider, so set the provider first. It falls back to NoopMetrics
// when an instrument cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics disabled", slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))

	m.stageRuns.Add(ctx, 1, attrs)
	m.stageMillis.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.stageErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGeneration(ctx context.Context, mode string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.genRuns.Add(ctx, 1, attrs)
	m.genMillis.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordSafeMode(ctx context.Context, reason string) {
	m.safeMode.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *otelMetrics) RecordSessionSize(ctx context.Context, sizeBytes int64) {
	m.sessionBytes.Record(ctx, sizeBytes)
}
