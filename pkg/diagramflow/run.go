package diagramflow

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
)

// Run executes the pipeline from its entry stage until End.
//
// On error the returned state is the state at the point of failure.
// Between stages Run checks ctx for cancellation; each stage is timed,
// logged, traced and counted.
func (cp *CompiledPipeline[S]) Run(ctx Context, state S, opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rc := asRunContext(ctx)
	start := time.Now()

	traced, span := cfg.tracer.StartRun(rc, cfg.mode, rc.runID)
	defer func() {
		observability.Finish(span, runErr)
		cfg.metrics.RecordGeneration(rc, cfg.mode, runErr == nil, time.Since(start))
	}()

	current := cp.entry
	for iterations := 1; current != End; iterations++ {
		if iterations > cfg.maxIterations {
			return state, &MaxIterationsError{Max: cfg.maxIterations, LastStage: current, State: state}
		}

		select {
		case <-rc.Done():
			return state, &CancellationError{Stage: current, State: state, Cause: rc.Err()}
		default:
		}

		observability.LogStageStart(rc.logger, current)
		stageTraced, stageSpan := cfg.tracer.StartStage(traced, current)
		sc := rc.withStage(stageTraced, current)

		stageStart := time.Now()
		var err error
		state, err = cp.execute(sc, current, state)
		elapsed := time.Since(stageStart)

		cfg.metrics.RecordStage(stageTraced, current, elapsed, err)
		observability.Finish(stageSpan, err)

		if err != nil {
			observability.LogStageError(rc.logger, current, err)
			return state, err
		}
		observability.LogStageComplete(rc.logger, current, float64(elapsed.Milliseconds()))

		next, err := cp.next(sc, current, state)
		if err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}

// execute runs one stage with panic recovery.
func (cp *CompiledPipeline[S]) execute(ctx *runContext, id string, state S) (result S, err error) {
	fn, ok := cp.stages[id]
	if !ok {
		return state, &StageError{Stage: id, Op: "lookup", Err: fmt.Errorf("stage not found: %s", id)}
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{Stage: id, Value: r, Stack: string(debug.Stack())}
		}
	}()

	result, err = fn(ctx, state)
	if err != nil {
		return result, &StageError{Stage: id, Op: "execute", Err: err}
	}
	return result, nil
}

// next picks the following stage: the router when present, otherwise the
// first simple edge.
func (cp *CompiledPipeline[S]) next(ctx *runContext, current string, state S) (string, error) {
	if router, ok := cp.routers[current]; ok {
		to := router(ctx, state)
		if to == "" {
			return "", &RouterError{From: current, Returned: to, Err: ErrInvalidRouterResult}
		}
		if to != End && !cp.HasStage(to) {
			return "", &RouterError{From: current, Returned: to, Err: ErrRouterTargetNotFound}
		}
		return to, nil
	}

	edges := cp.edges[current]
	if len(edges) == 0 {
		return "", &StageError{Stage: current, Op: "routing", Err: fmt.Errorf("no outgoing edge from stage %s", current)}
	}
	return edges[0], nil
}
