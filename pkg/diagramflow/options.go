package diagramflow

import (
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
)

// runConfig holds configuration for one pipeline run.
type runConfig struct {
	maxIterations int
	mode          string
	metrics       observability.MetricsRecorder
	tracer        observability.Tracer
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 100,
		mode:          "pipeline",
		metrics:       observability.NoopMetrics{},
		tracer:        observability.NoopTracer{},
	}
}

// RunOption configures a run.
type RunOption func(*runConfig)

// WithMaxIterations limits how many stages a run may execute.
// Default: 100. Runs that loop through a router past the limit fail
// with a MaxIterationsError.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithMode labels the run's span and generation metric.
func WithMode(mode string) RunOption {
	return func(c *runConfig) {
		if mode != "" {
			c.mode = mode
		}
	}
}

// WithMetrics records stage and run metrics.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRunTracer creates a span for the run and one per stage.
func WithRunTracer(t observability.Tracer) RunOption {
	return func(c *runConfig) {
		if t != nil {
			c.tracer = t
		}
	}
}
