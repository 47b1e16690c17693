package model

import (
	"errors"
	"fmt"
)

// Violation kinds reported by Validate.
const (
	ViolationEmptyID         = "empty_id"
	ViolationDuplicateNode   = "duplicate_node_id"
	ViolationDuplicateEdge   = "duplicate_edge_id"
	ViolationDanglingEdge    = "dangling_edge"
	ViolationMissingParent   = "missing_parent"
	ViolationParentNotFrame  = "parent_not_layer_frame"
	ViolationChildOutOfFrame = "child_out_of_frame"
)

// Violation is a single graph invariant failure.
type Violation struct {
	Kind    string `json:"kind"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v Violation) Error() string {
	return v.Kind + ": " + v.Message
}

// Violations is the result of Validate.
type Violations []Violation

// Err joins the violations into one error, or returns nil if there are none.
func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	errs := make([]error, len(vs))
	for i, v := range vs {
		errs[i] = v
	}
	return errors.Join(errs...)
}

// Validate checks the graph invariants: unique non-empty ids, edge endpoints
// that reference existing nodes, and parent frames that exist, are layer
// frames, and contain their children.
func Validate(g Graph) Violations {
	var vs Violations

	nodes := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			vs = append(vs, Violation{
				Kind:    ViolationEmptyID,
				Message: fmt.Sprintf("node at index %d has empty id", i),
			})
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			vs = append(vs, Violation{
				Kind: ViolationDuplicateNode, NodeID: n.ID,
				Message: "duplicate node id: " + n.ID,
			})
			continue
		}
		nodes[n.ID] = n
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ParentNode == "" {
			continue
		}
		parent, ok := nodes[n.ParentNode]
		if !ok {
			vs = append(vs, Violation{
				Kind: ViolationMissingParent, NodeID: n.ID,
				Message: fmt.Sprintf("parent %s of node %s not found", n.ParentNode, n.ID),
			})
			continue
		}
		if parent.Type != TypeLayerFrame {
			vs = append(vs, Violation{
				Kind: ViolationParentNotFrame, NodeID: n.ID,
				Message: fmt.Sprintf("parent %s of node %s has type %q", parent.ID, n.ID, parent.Type),
			})
			continue
		}
		if !withinFrame(*n, *parent) {
			vs = append(vs, Violation{
				Kind: ViolationChildOutOfFrame, NodeID: n.ID,
				Message: fmt.Sprintf("node %s at (%.0f,%.0f) lies outside frame %s (%.0fx%.0f)",
					n.ID, n.Position.X, n.Position.Y, parent.ID, parent.Width, parent.Height),
			})
		}
	}

	edges := make(map[string]bool, len(g.Edges))
	for i, e := range g.Edges {
		if e.ID == "" {
			vs = append(vs, Violation{
				Kind:    ViolationEmptyID,
				Message: fmt.Sprintf("edge at index %d has empty id", i),
			})
		} else if edges[e.ID] {
			vs = append(vs, Violation{
				Kind: ViolationDuplicateEdge, EdgeID: e.ID,
				Message: "duplicate edge id: " + e.ID,
			})
		} else {
			edges[e.ID] = true
		}

		if _, ok := nodes[e.Source]; !ok {
			vs = append(vs, Violation{
				Kind: ViolationDanglingEdge, EdgeID: e.ID,
				Message: "edge source node not found: " + e.Source,
			})
		}
		if _, ok := nodes[e.Target]; !ok {
			vs = append(vs, Violation{
				Kind: ViolationDanglingEdge, EdgeID: e.ID,
				Message: "edge target node not found: " + e.Target,
			})
		}
	}

	return vs
}

func withinFrame(child, frame Node) bool {
	if child.Position.X < 0 || child.Position.Y < 0 {
		return false
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return true // frame declares no box
	}
	return child.Position.X+child.Width <= frame.Width &&
		child.Position.Y+child.Height <= frame.Height
}

// DropDanglingEdges returns the edges whose endpoints both exist in nodes,
// plus the dropped ones.
func DropDanglingEdges(nodes []Node, edges []Edge) (kept, dropped []Edge) {
	ids := NodeIDs(nodes)
	kept = make([]Edge, 0, len(edges))
	for _, e := range edges {
		if ids[e.Source] && ids[e.Target] {
			kept = append(kept, e)
		} else {
			dropped = append(dropped, e)
		}
	}
	return kept, dropped
}

// DetachOrphans clears the parent of every node whose parent is missing or
// is not a layer frame, and returns the ids it detached.
func DetachOrphans(nodes []Node) []string {
	frames := make(map[string]bool)
	for _, n := range nodes {
		if n.Type == TypeLayerFrame {
			frames[n.ID] = true
		}
	}
	var detached []string
	for i := range nodes {
		if nodes[i].ParentNode == "" || frames[nodes[i].ParentNode] {
			continue
		}
		nodes[i].ParentNode = ""
		nodes[i].Extent = ""
		detached = append(detached, nodes[i].ID)
	}
	return detached
}
