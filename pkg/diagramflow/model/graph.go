// Package model defines the canonical diagram graph: nodes, edges, positions
// and the layer-frame variant used by architecture diagrams.
package model

import (
	"encoding/json"
	"sort"
)

// DiagramType selects the generation mode.
type DiagramType string

const (
	DiagramFlow         DiagramType = "flow"
	DiagramArchitecture DiagramType = "architecture"
)

// Valid reports whether t is a known diagram type.
func (t DiagramType) Valid() bool {
	return t == DiagramFlow || t == DiagramArchitecture
}

// ArchitectureType selects the layer template for architecture diagrams.
type ArchitectureType string

const (
	ArchLayered    ArchitectureType = "layered"
	ArchBusiness   ArchitectureType = "business"
	ArchTechnical  ArchitectureType = "technical"
	ArchDeployment ArchitectureType = "deployment"
	ArchDomain     ArchitectureType = "domain"
)

// ArchitectureTypes lists every supported architecture flavor.
var ArchitectureTypes = []ArchitectureType{ArchLayered, ArchBusiness, ArchTechnical, ArchDeployment, ArchDomain}

// Valid reports whether t is a known architecture type.
func (t ArchitectureType) Valid() bool {
	for _, known := range ArchitectureTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Node types with special meaning to the normalizer and validator.
const (
	TypeDefault    = "default"
	TypeLayerFrame = "layerFrame"
	TypeFrame      = "frame"
	TypeDecision   = "decision"
	TypeStartEvent = "start-event"
	TypeEndEvent   = "end-event"
	TypeTask       = "task"
	TypeAPI        = "api"
	TypeService    = "service"
	TypeDatabase   = "database"
	TypeCache      = "cache"
	TypeQueue      = "queue"
	TypeGateway    = "gateway"
	TypeClient     = "client"
	TypeStorage    = "storage"
)

// ExtentParent marks a child node whose placement is bounded by its parent frame.
const ExtentParent = "parent"

// Shapes used by the built-in flow templates.
const (
	ShapeStartEvent = "start-event"
	ShapeEndEvent   = "end-event"
	ShapeTask       = "task"
	ShapeDiamond    = "diamond"
)

// Shapes is the node-shape vocabulary.
var Shapes = []string{
	"rectangle", "rounded-rectangle", "circle", "diamond", "hexagon",
	"triangle", "parallelogram", "trapezoid", "star", "cloud", "cylinder",
	"document", "start-event", "end-event", "intermediate-event", "task",
}

// ValidShape reports whether s belongs to the shape vocabulary.
func ValidShape(s string) bool {
	for _, shape := range Shapes {
		if s == shape {
			return true
		}
	}
	return false
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData carries the label and presentation attributes of a node.
type NodeData struct {
	Label     string   `json:"label"`
	Shape     string   `json:"shape,omitempty"`
	IconType  string   `json:"iconType,omitempty"`
	Color     string   `json:"color,omitempty"`
	TechStack []string `json:"tech_stack,omitempty"`
	Note      string   `json:"note,omitempty"`
	Layer     string   `json:"layer,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// Node is a diagram vertex. Children of a layer frame carry ParentNode and
// positions relative to the frame's top-left corner.
type Node struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Position   Position `json:"position"`
	Data       NodeData `json:"data"`
	ParentNode string   `json:"parentNode,omitempty"`
	Extent     string   `json:"extent,omitempty"`
	Draggable  *bool    `json:"draggable,omitempty"`
	Width      float64  `json:"width,omitempty"`
	Height     float64  `json:"height,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Data.TechStack != nil {
		out.Data.TechStack = append([]string(nil), n.Data.TechStack...)
	}
	if n.Draggable != nil {
		d := *n.Draggable
		out.Draggable = &d
	}
	return out
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Signature identifies an edge by its endpoints.
type Signature struct {
	Source string
	Target string
}

// Signature returns the (source, target) pair of the edge.
func (e Edge) Signature() Signature {
	return Signature{Source: e.Source, Target: e.Target}
}

// Graph is the canonical diagram: ordered nodes and edges plus optional
// Mermaid text.
type Graph struct {
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
	Mermaid string `json:"mermaid_code,omitempty"`
}

// MarshalJSON encodes empty node and edge lists as [] rather than null.
func (g Graph) MarshalJSON() ([]byte, error) {
	type plain Graph
	p := plain(g)
	if p.Nodes == nil {
		p.Nodes = []Node{}
	}
	if p.Edges == nil {
		p.Edges = []Edge{}
	}
	return json.Marshal(p)
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := Graph{Mermaid: g.Mermaid}
	out.Nodes = CloneNodes(g.Nodes)
	if g.Edges != nil {
		out.Edges = append([]Edge(nil), g.Edges...)
	}
	return out
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Empty reports whether the graph has no nodes.
func (g Graph) Empty() bool {
	return len(g.Nodes) == 0
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// IndexNodes maps node id to its position in nodes. The first occurrence wins.
func IndexNodes(nodes []Node) map[string]int {
	idx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, ok := idx[n.ID]; !ok {
			idx[n.ID] = i
		}
	}
	return idx
}

// NodeIDs returns the set of node ids.
func NodeIDs(nodes []Node) map[string]bool {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	return ids
}

// Bounds is an axis-aligned box over node positions.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// NodeBounds computes the position bounds of top-level nodes. Children of
// frames are skipped since their coordinates are relative. ok is false when
// no top-level node exists.
func NodeBounds(nodes []Node) (b Bounds, ok bool) {
	for _, n := range nodes {
		if n.ParentNode != "" {
			continue
		}
		if !ok {
			b = Bounds{MinX: n.Position.X, MinY: n.Position.Y, MaxX: n.Position.X, MaxY: n.Position.Y}
			ok = true
			continue
		}
		b.MinX = min(b.MinX, n.Position.X)
		b.MinY = min(b.MinY, n.Position.Y)
		b.MaxX = max(b.MaxX, n.Position.X)
		b.MaxY = max(b.MaxY, n.Position.Y)
	}
	return b, ok
}

// TypeCounts groups node counts by type, sorted by descending count then name.
func TypeCounts(nodes []Node) []TypeCount {
	counts := make(map[string]int)
	for _, n := range nodes {
		counts[n.Type]++
	}
	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// TypeCount is one entry of TypeCounts.
type TypeCount struct {
	Type  string
	Count int
}

// Bool returns a pointer to b, for optional flags such as Draggable.
func Bool(b bool) *bool {
	return &b
}
