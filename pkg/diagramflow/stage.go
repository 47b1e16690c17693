package diagramflow

// End is the terminal stage identifier.
// Use this as an edge target to indicate the pipeline should finish.
const End = "__end__"

// StageFunc is the signature for pipeline stages.
// Stages receive the run context and current state and return the
// updated state and any error.
//
// The state is passed by value. Stages return a new state value rather
// than relying on pointer mutation.
type StageFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc picks the next stage based on state.
//
// The router must return a registered stage ID or End. An empty string or
// an unknown ID fails the run with a RouterError.
type RouterFunc[S any] func(ctx Context, state S) string
