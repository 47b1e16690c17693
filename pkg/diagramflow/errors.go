package diagramflow

import (
	"errors"
	"fmt"
)

// Compile errors.
var (
	ErrNoEntryPoint  = errors.New("entry point not set")
	ErrEntryNotFound = errors.New("entry point stage not found")
	ErrStageNotFound = errors.New("stage not found")
	// ErrNoPathToEnd means no route from the entry stage ever reaches End.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Run errors.
var (
	ErrMaxIterations        = errors.New("exceeded maximum iterations")
	ErrNilContext           = errors.New("context cannot be nil")
	ErrInvalidRouterResult  = errors.New("router returned empty string")
	ErrRouterTargetNotFound = errors.New("router returned unknown stage")
)

// StageError is a stage failure. Op is "execute", "routing" or "lookup".
type StageError struct {
	Stage string
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PanicError is a recovered stage panic with the goroutine stack at the
// point of recovery.
type PanicError struct {
	Stage string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Value)
}

// CancellationError means the run context ended before Stage started.
// State holds the last committed state; Cause is the context error.
type CancellationError struct {
	Stage string
	State any
	Cause error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before stage %s: %v", e.Stage, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// RouterError is a router that named no stage or an unknown one.
type RouterError struct {
	From     string
	Returned string
	Err      error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.From, e.Returned, e.Err)
}

func (e *RouterError) Unwrap() error { return e.Err }

// MaxIterationsError matches ErrMaxIterations under errors.Is.
type MaxIterationsError struct {
	Max       int
	LastStage string
	State     any
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at stage %s", e.Max, e.LastStage)
}

func (e *MaxIterationsError) Unwrap() error { return ErrMaxIterations }

// FailedStage returns the stage a run error points at, or "" for errors
// that did not come from a run.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.Stage
	}
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		return cancelErr.Stage
	}
	var routerErr *RouterError
	if errors.As(err, &routerErr) {
		return routerErr.From
	}
	var maxErr *MaxIterationsError
	if errors.As(err, &maxErr) {
		return maxErr.LastStage
	}
	return ""
}
