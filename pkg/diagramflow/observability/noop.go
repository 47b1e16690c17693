package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordStage does nothing.
func (NoopMetrics) RecordStage(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordGeneration does nothing.
func (NoopMetrics) RecordGeneration(_ context.Context, _ string, _ bool, _ time.Duration) {}

// RecordSafeMode does nothing.
func (NoopMetrics) RecordSafeMode(_ context.Context, _ string) {}

// RecordSessionSize does nothing.
func (NoopMetrics) RecordSessionSize(_ context.Context, _ int64) {}

// NoopTracer opens non-recording spans.
type NoopTracer struct{}

var _ Tracer = NoopTracer{}

func (NoopTracer) StartRun(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopTracer) StartStage(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}
