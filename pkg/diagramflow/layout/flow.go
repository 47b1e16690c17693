package layout

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/mermaid"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Normalizer turns parsed model output into canonical graphs.
//
// Normalization never fails on recoverable data: malformed entries are
// dropped or coerced and a warning is logged.
type Normalizer struct {
	spec   LayoutSpec
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSpec overrides the layout constants.
func WithSpec(spec LayoutSpec) Option {
	return func(n *Normalizer) {
		n.spec = spec
	}
}

// WithLogger sets the logger for normalization warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNormalizer creates a Normalizer with DefaultSpec.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		spec:   DefaultSpec(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Spec returns the layout constants in use.
func (n *Normalizer) Spec() LayoutSpec {
	return n.spec
}

type flowOptions struct {
	keepDuplicates bool
	skipAutoWire   bool
}

// FlowOption adjusts flow normalization.
type FlowOption func(*flowOptions)

// KeepDuplicateIDs leaves repeated node ids in place for a later
// reconciliation step to rename.
func KeepDuplicateIDs() FlowOption {
	return func(o *flowOptions) {
		o.keepDuplicates = true
	}
}

// SkipAutoWire disables chaining nodes when the output has no edges.
func SkipAutoWire() FlowOption {
	return func(o *flowOptions) {
		o.skipAutoWire = true
	}
}

// Flow normalizes a flow-diagram object of the form
// {nodes, edges, mermaid_code}. Mermaid text is parsed when no nodes are given.
func (n *Normalizer) Flow(raw map[string]any, opts ...FlowOption) model.Graph {
	var o flowOptions
	for _, opt := range opts {
		opt(&o)
	}

	mermaidText := getStr(raw, "mermaid_code", "mermaid", "mermaidCode")
	rawNodes, _ := getList(raw, "nodes")

	var g model.Graph
	if len(rawNodes) == 0 && mermaidText != "" {
		g = mermaid.Parse(mermaidText)
		for i := range g.Nodes {
			g.Nodes[i].Position = n.spec.GridPosition(i)
		}
	} else {
		g.Nodes = n.flowNodes(rawNodes, o.keepDuplicates)
		rawEdges, _ := getList(raw, "edges", "links", "connections")
		g.Edges = n.flowEdges(rawEdges, g.Nodes)
		g.Mermaid = mermaidText
	}

	if len(g.Nodes) == 0 {
		return model.Graph{Nodes: []model.Node{}, Edges: []model.Edge{}}
	}
	if !o.keepDuplicates {
		if ids := model.DetachOrphans(g.Nodes); len(ids) > 0 {
			n.logger.Warn("detached nodes from missing parents", "ids", ids)
		}
	}

	if len(g.Edges) == 0 && len(g.Nodes) >= 2 && !o.skipAutoWire {
		g.Edges = AutoWire(g.Nodes)
		n.logger.Debug("auto-wired flow nodes", "edges", len(g.Edges))
	}

	if g.Mermaid == "" {
		g.Mermaid = mermaid.Render(g)
	}
	return g
}

func (n *Normalizer) flowNodes(rawNodes []any, keepDuplicates bool) []model.Node {
	nodes := make([]model.Node, 0, len(rawNodes))
	seen := make(map[string]bool, len(rawNodes))

	for i, item := range rawNodes {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warn("dropping non-object node", "index", i)
			continue
		}

		id := getStr(m, "id")
		if id == "" {
			id = fmt.Sprintf("node-%d", i)
		}
		if keepDuplicates {
			seen[id] = true
		} else if seen[id] {
			renamed := uniqueID(id, seen)
			n.logger.Warn("renamed duplicate node id", "id", id, "renamed", renamed)
			id = renamed
		} else {
			seen[id] = true
		}

		data := getMap(m, "data")
		if data == nil {
			data = map[string]any{}
		}

		label := getStr(data, "label")
		if label == "" {
			label = getStr(m, "label", "name", "text", "title")
		}
		if label == "" {
			label = id
		}

		nodeType := getStr(m, "type")
		if nodeType == "" {
			nodeType = model.TypeDefault
		}

		shape := getStr(data, "shape")
		if shape == "" {
			shape = getStr(m, "shape")
		}
		if shape != "" && !model.ValidShape(shape) {
			shape = ""
		}

		node := model.Node{
			ID:       id,
			Type:     nodeType,
			Position: n.position(m, i),
			Data: model.NodeData{
				Label:     label,
				Shape:     shape,
				IconType:  getStr(data, "iconType", "icon"),
				Color:     getStr(data, "color"),
				TechStack: getStrList(data, "tech_stack", "techStack"),
				Note:      getStr(data, "note"),
				Layer:     getStr(data, "layer"),
				Category:  getStr(data, "category"),
			},
		}
		if w, ok := getNum(m["width"]); ok && w > 0 {
			node.Width = w
		}
		if h, ok := getNum(m["height"]); ok && h > 0 {
			node.Height = h
		}
		node.ParentNode = getStr(m, "parentNode", "parent_node", "parentId")
		node.Extent = getStr(m, "extent")
		if d, ok := m["draggable"].(bool); ok {
			node.Draggable = model.Bool(d)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// position reads {position:{x,y}} or legacy top-level x/y, falling back to
// the grid slot for index i.
func (n *Normalizer) position(m map[string]any, i int) model.Position {
	if pos := getMap(m, "position"); pos != nil {
		x, okX := getNum(pos["x"])
		y, okY := getNum(pos["y"])
		if okX && okY {
			return model.Position{X: x, Y: y}
		}
	}
	x, okX := getNum(m["x"])
	y, okY := getNum(m["y"])
	if okX && okY {
		return model.Position{X: x, Y: y}
	}
	return n.spec.GridPosition(i)
}

func (n *Normalizer) flowEdges(rawEdges []any, nodes []model.Node) []model.Edge {
	ids := model.NodeIDs(nodes)
	edges := make([]model.Edge, 0, len(rawEdges))
	seen := make(map[string]bool, len(rawEdges))

	for i, item := range rawEdges {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source := getStr(m, "source", "from")
		target := getStr(m, "target", "to")
		if source == "" || target == "" {
			n.logger.Warn("dropping edge without endpoints", "index", i)
			continue
		}
		if !ids[source] || !ids[target] {
			n.logger.Warn("dropping dangling edge", "source", source, "target", target)
			continue
		}

		id := getStr(m, "id")
		if id == "" {
			id = fmt.Sprintf("e-%s-%s", source, target)
		}
		edges = append(edges, model.Edge{
			ID:     uniqueID(id, seen),
			Source: source,
			Target: target,
			Label:  getStr(m, "label"),
		})
	}
	return edges
}

// AutoWire chains nodes ordered by (x, y) with edges e0, e1, ...
// Children of frames are not wired.
func AutoWire(nodes []model.Node) []model.Edge {
	ordered := make([]model.Node, 0, len(nodes))
	for _, node := range nodes {
		if node.ParentNode == "" && node.Type != model.TypeLayerFrame {
			ordered = append(ordered, node)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position.X != ordered[j].Position.X {
			return ordered[i].Position.X < ordered[j].Position.X
		}
		return ordered[i].Position.Y < ordered[j].Position.Y
	})

	edges := make([]model.Edge, 0, max(len(ordered)-1, 0))
	for i := 1; i < len(ordered); i++ {
		edges = append(edges, model.Edge{
			ID:     fmt.Sprintf("e%d", i-1),
			Source: ordered[i-1].ID,
			Target: ordered[i].ID,
		})
	}
	return edges
}
