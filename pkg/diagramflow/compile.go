package diagramflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the pipeline and returns an executable CompiledPipeline.
// All problems found are joined into one error.
//
// Checks, in order:
//  1. an entry stage is set
//  2. the entry stage exists
//  3. edge sources and targets exist (targets may be End)
//  4. conditional edge sources exist
//  5. End is reachable from the entry
//
// Stages unreachable from the entry are logged as warnings.
func (p *Pipeline[S]) Compile() (*CompiledPipeline[S], error) {
	var errs []error

	if p.entry == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, ok := p.stages[p.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, p.entry))
	}

	for _, from := range slices.Sorted(maps.Keys(p.edges)) {
		if _, ok := p.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrStageNotFound, from))
		}
		for _, to := range p.edges[from] {
			if to == End {
				continue
			}
			if _, ok := p.stages[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrStageNotFound, to))
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(p.routers)) {
		if _, ok := p.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrStageNotFound, from))
		}
	}

	if _, ok := p.stages[p.entry]; ok && !p.reachesEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	p.warnUnreachable()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p.build(), nil
}

// reachesEnd propagates "can reach End" backwards over simple edges.
// A stage with a router is assumed to be able to reach End.
func (p *Pipeline[S]) reachesEnd() bool {
	canReach := map[string]bool{End: true}
	for from := range p.routers {
		canReach[from] = true
	}

	for changed := true; changed; {
		changed = false
		for from, targets := range p.edges {
			if canReach[from] {
				continue
			}
			for _, to := range targets {
				if canReach[to] {
					canReach[from] = true
					changed = true
					break
				}
			}
		}
	}
	return canReach[p.entry]
}

func (p *Pipeline[S]) warnUnreachable() {
	if p.entry == "" {
		return
	}
	reachable := p.reachable()
	for _, id := range p.order {
		if !reachable[id] {
			slog.Warn("stage is unreachable from entry", "stage", id)
		}
	}
}

// reachable returns the stages reachable from the entry. A router can
// return any stage, so everything is reachable past one.
func (p *Pipeline[S]) reachable() map[string]bool {
	seen := map[string]bool{p.entry: true}
	queue := []string{p.entry}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next := p.edges[current]
		if _, ok := p.routers[current]; ok {
			next = p.order
		}
		for _, to := range next {
			if to != End && !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

func (p *Pipeline[S]) build() *CompiledPipeline[S] {
	edges := make(map[string][]string, len(p.edges))
	predecessors := make(map[string][]string)
	for from, targets := range p.edges {
		edges[from] = slices.Clone(targets)
		for _, to := range targets {
			if to != End {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	return &CompiledPipeline[S]{
		stages:       maps.Clone(p.stages),
		order:        slices.Clone(p.order),
		edges:        edges,
		routers:      maps.Clone(p.routers),
		entry:        p.entry,
		predecessors: predecessors,
	}
}
