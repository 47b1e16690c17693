package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "diagramflow"

// Tracer opens the spans of a generation: one per run with a child per
// stage. Close spans with Finish.
type Tracer interface {
	StartRun(ctx context.Context, mode, runID string) (context.Context, trace.Span)
	StartStage(ctx context.Context, stage string) (context.Context, trace.Span)
}

type otelTracer struct {
	t trace.Tracer
}

// NewTracer returns a Tracer backed by the global OTel tracer provider as
// it is at the time of the call.
func NewTracer() Tracer {
	return otelTracer{t: otel.Tracer(instrumentationName)}
}

func (o otelTracer) StartRun(ctx context.Context, mode, runID string) (context.Context, trace.Span) {
	return o.t.Start(ctx, "diagramflow.generate", trace.WithAttributes(
		attribute.String("generation.mode", mode),
		attribute.String("run.id", runID),
	))
}

func (o otelTracer) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return o.t.Start(ctx, "diagramflow.stage."+stage, trace.WithAttributes(
		attribute.String("stage.id", stage),
	))
}

// Finish sets the span status from err and ends it.
func Finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Event annotates the span carried by ctx, if it is recording.
func Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
