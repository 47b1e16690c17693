package diagramflow

import (
	"fmt"
	"strings"
)

// Pipeline is a mutable builder for stage pipelines.
// Chain AddStage, AddEdge and SetEntry, then call Compile to obtain an
// immutable CompiledPipeline.
//
// Pipeline is not safe for concurrent building. The compiled result is.
//
//	p := diagramflow.NewPipeline[State]().
//	    AddStage("prompt", buildPrompt).
//	    AddStage("call", callModel).
//	    AddEdge("prompt", "call").
//	    AddEdge("call", diagramflow.End).
//	    SetEntry("prompt")
//
//	compiled, err := p.Compile()
type Pipeline[S any] struct {
	stages  map[string]StageFunc[S]
	order   []string
	edges   map[string][]string
	routers map[string]RouterFunc[S]
	entry   string
}

// NewPipeline creates a pipeline builder for state type S.
func NewPipeline[S any]() *Pipeline[S] {
	return &Pipeline[S]{
		stages:  make(map[string]StageFunc[S]),
		edges:   make(map[string][]string),
		routers: make(map[string]RouterFunc[S]),
	}
}

// AddStage registers a named stage.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace
//   - fn is nil
//   - id is already registered
func (p *Pipeline[S]) AddStage(id string, fn StageFunc[S]) *Pipeline[S] {
	if id == "" {
		panic("diagramflow: stage ID cannot be empty")
	}
	lower := strings.ToLower(id)
	if lower == "end" || lower == End {
		panic("diagramflow: stage ID cannot be reserved word 'END'")
	}
	if strings.ContainsAny(id, " \t\n\r") {
		panic("diagramflow: stage ID cannot contain whitespace")
	}
	if fn == nil {
		panic("diagramflow: stage function cannot be nil")
	}
	if _, exists := p.stages[id]; exists {
		panic(fmt.Sprintf("diagramflow: duplicate stage ID: %s", id))
	}

	p.stages[id] = fn
	p.order = append(p.order, id)
	return p
}

// AddEdge adds an unconditional transition. The target can be a stage ID
// or End. References are checked by Compile.
func (p *Pipeline[S]) AddEdge(from, to string) *Pipeline[S] {
	p.edges[from] = append(p.edges[from], to)
	return p
}

// AddConditionalEdge lets router choose the stage after from.
// A conditional edge takes precedence over simple edges from the same stage.
func (p *Pipeline[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Pipeline[S] {
	if router == nil {
		panic("diagramflow: router function cannot be nil")
	}
	p.routers[from] = router
	return p
}

// SetEntry sets the first stage.
func (p *Pipeline[S]) SetEntry(id string) *Pipeline[S] {
	p.entry = id
	return p
}
