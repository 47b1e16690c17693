package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// maxHubs is how many of the best-connected nodes Summary names.
const maxHubs = 3

// Summary describes a graph in one short paragraph: counts, node types,
// hub nodes and the number of layer frames.
func Summary(g model.Graph) string {
	if len(g.Nodes) == 0 {
		return "The diagram is empty."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The diagram has %d nodes and %d edges.", len(g.Nodes), len(g.Edges))

	var groups []string
	for _, tc := range model.TypeCounts(g.Nodes) {
		groups = append(groups, fmt.Sprintf("%d %s", tc.Count, tc.Type))
	}
	fmt.Fprintf(&b, " Node types: %s.", strings.Join(groups, ", "))

	if hubs := hubNodes(g, maxHubs); len(hubs) > 0 {
		fmt.Fprintf(&b, " Most connected: %s.", strings.Join(hubs, ", "))
	}

	layers := 0
	for _, n := range g.Nodes {
		if n.Type == model.TypeLayerFrame {
			layers++
		}
	}
	if layers > 0 {
		fmt.Fprintf(&b, " It is organized in %d layers.", layers)
	}
	return b.String()
}

// hubNodes returns up to n labels of the nodes with the highest degree,
// ties broken by graph order. Nodes without edges are skipped.
func hubNodes(g model.Graph, n int) []string {
	degree := make(map[string]int)
	for _, e := range g.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	type hub struct {
		idx    int
		label  string
		degree int
	}
	var hubs []hub
	for i, node := range g.Nodes {
		if d := degree[node.ID]; d > 0 {
			label := node.Data.Label
			if label == "" {
				label = node.ID
			}
			hubs = append(hubs, hub{idx: i, label: label, degree: d})
		}
	}
	sort.SliceStable(hubs, func(i, j int) bool {
		return hubs[i].degree > hubs[j].degree
	})

	out := make([]string, 0, n)
	for _, h := range hubs {
		if len(out) == n {
			break
		}
		out = append(out, fmt.Sprintf("%s (%d connections)", h.label, h.degree))
	}
	return out
}

// Region is the free canvas area for new nodes.
type Region struct {
	MinX float64
	MinY float64
	MaxY float64
}

// SafeRegion returns the area right of the existing top-level nodes where
// new nodes may be placed. For an empty canvas it starts at the flow origin.
func (b *Builder) SafeRegion(g model.Graph) Region {
	bounds, ok := model.NodeBounds(g.Nodes)
	if !ok {
		start := b.spec.FlowStart
		return Region{MinX: start.X, MinY: start.Y, MaxY: start.Y + 4*b.spec.FlowStepY}
	}
	return Region{
		MinX: bounds.MaxX + b.spec.IncrementalOffsetX,
		MinY: bounds.MinY,
		MaxY: bounds.MaxY,
	}
}
