package diagramflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
)

// Context is the run context handed to stages. It extends context.Context
// with the run's logger and identity.
type Context interface {
	context.Context

	// Logger returns the logger enriched with run_id and stage.
	// Never nil.
	Logger() *slog.Logger

	// RunID returns the identifier of this run.
	RunID() string

	// Stage returns the stage being executed, or "" outside a stage.
	Stage() string
}

type runContext struct {
	context.Context

	logger *slog.Logger
	runID  string
	stage  string
}

func (c *runContext) Logger() *slog.Logger { return c.logger }
func (c *runContext) RunID() string        { return c.runID }
func (c *runContext) Stage() string        { return c.stage }

// ContextOption configures a Context.
type ContextOption func(*runContext)

// WithContextLogger sets the base logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *runContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID sets the run identifier. A UUID is generated otherwise.
func WithRunID(id string) ContextOption {
	return func(c *runContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// NewContext wraps ctx for a pipeline run.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	rc := &runContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// withStage returns a copy scoped to stage, with tracing carried by traced.
func (c *runContext) withStage(traced context.Context, stage string) *runContext {
	return &runContext{
		Context: traced,
		logger:  observability.EnrichLogger(c.logger, c.runID, stage),
		runID:   c.runID,
		stage:   stage,
	}
}

// asRunContext adapts a foreign Context implementation.
func asRunContext(ctx Context) *runContext {
	if rc, ok := ctx.(*runContext); ok {
		return rc
	}
	return &runContext{Context: ctx, logger: ctx.Logger(), runID: ctx.RunID(), stage: ctx.Stage()}
}
