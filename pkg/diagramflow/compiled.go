package diagramflow

import "slices"

// CompiledPipeline is an immutable, executable pipeline created by
// Pipeline.Compile. It is safe for concurrent Run calls.
type CompiledPipeline[S any] struct {
	stages       map[string]StageFunc[S]
	order        []string
	edges        map[string][]string
	routers      map[string]RouterFunc[S]
	entry        string
	predecessors map[string][]string
}

// EntryPoint returns the entry stage ID.
func (cp *CompiledPipeline[S]) EntryPoint() string {
	return cp.entry
}

// StageIDs returns the stage IDs in registration order.
func (cp *CompiledPipeline[S]) StageIDs() []string {
	return slices.Clone(cp.order)
}

// HasStage reports whether id is a registered stage.
func (cp *CompiledPipeline[S]) HasStage(id string) bool {
	_, ok := cp.stages[id]
	return ok
}

// Successors returns the simple edge targets of id. Router targets are
// decided at run time and are not included.
func (cp *CompiledPipeline[S]) Successors(id string) []string {
	if id == End {
		return nil
	}
	return slices.Clone(cp.edges[id])
}

// Predecessors returns the stages with a simple edge to id.
func (cp *CompiledPipeline[S]) Predecessors(id string) []string {
	return slices.Clone(cp.predecessors[id])
}

// IsConditional reports whether id has a router.
func (cp *CompiledPipeline[S]) IsConditional(id string) bool {
	_, ok := cp.routers[id]
	return ok
}
