package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// layerKeys are the accepted names for the layer list.
var layerKeys = []string{"layers", "sections", "architecture", "groups"}

type rawLayer struct {
	name    string
	columns int
	items   []rawItem
}

type rawItem struct {
	id        string
	label     string
	techStack []string
	note      string
	category  string
}

// Architecture normalizes a layered architecture object into layer frames
// and their child items. Frames are stacked vertically from the layout origin;
// child positions are relative to their frame. Edges are kept only when the
// template for archType allows them.
//
// Output without any layer list but with nodes is normalized as a flow.
func (n *Normalizer) Architecture(raw map[string]any, archType model.ArchitectureType) model.Graph {
	tpl := Template(archType)

	layers, ordered, found := n.readLayers(raw)
	if !found {
		if nodes, ok := getList(raw, "nodes"); ok && len(nodes) > 0 {
			n.logger.Warn("architecture output has no layers, normalizing as flow",
				"architecture_type", tpl.Type)
			return n.Flow(raw)
		}
		return model.Graph{Nodes: []model.Node{}, Edges: []model.Edge{}}
	}

	// An emitted list keeps the model's order unless every layer is one the
	// template knows. Map keys carry no order, so those always follow the
	// template with unknown layers last.
	if !ordered || tpl.Covers(layerNames(layers)) {
		sort.SliceStable(layers, func(i, j int) bool {
			return tpl.Rank(layers[i].name) < tpl.Rank(layers[j].name)
		})
	}

	g := model.Graph{Nodes: []model.Node{}, Edges: []model.Edge{}}
	seen := make(map[string]bool)
	labels := make(map[string]string)
	y := n.spec.Origin.Y

	for li, layer := range layers {
		columns := layer.columns
		if columns <= 0 {
			columns = tpl.Columns
		}
		width, height := n.spec.FrameSize(len(layer.items), columns)
		color := LayerColor(layer.name)
		if rank := tpl.Rank(layer.name); rank < len(tpl.Layers) {
			color = LayerColor(tpl.Layers[rank].Key)
		}

		frameID := uniqueID(fmt.Sprintf("layer-%d", li), seen)
		g.Nodes = append(g.Nodes, model.Node{
			ID:        frameID,
			Type:      model.TypeLayerFrame,
			Position:  model.Position{X: n.spec.Origin.X, Y: y},
			Data:      model.NodeData{Label: layer.name, Color: color, Layer: layer.name},
			Draggable: model.Bool(false),
			Width:     width,
			Height:    height,
		})

		for ii, item := range layer.items {
			id := item.id
			if id == "" {
				id = fmt.Sprintf("%s-item-%d", frameID, ii)
			}
			id = uniqueID(id, seen)
			if _, dup := labels[strings.ToLower(item.label)]; !dup {
				labels[strings.ToLower(item.label)] = id
			}

			g.Nodes = append(g.Nodes, model.Node{
				ID:         id,
				Type:       model.TypeFrame,
				Position:   n.spec.ItemPosition(ii, columns),
				ParentNode: frameID,
				Extent:     model.ExtentParent,
				Width:      n.spec.ItemWidth,
				Height:     n.spec.ItemHeight,
				Data: model.NodeData{
					Label:     item.label,
					TechStack: item.techStack,
					Note:      item.note,
					Category:  item.category,
					Layer:     layer.name,
					Color:     color,
				},
			})
		}

		y += height + n.spec.LayerSpacingY
	}

	rawEdges, _ := getList(raw, "edges", "connections", "links")
	if !tpl.Edges {
		if len(rawEdges) > 0 {
			n.logger.Debug("discarding edges for template without edges",
				"architecture_type", tpl.Type, "edges", len(rawEdges))
		}
		return g
	}
	g.Edges = n.architectureEdges(rawEdges, seen, labels)
	return g
}

func layerNames(layers []rawLayer) []string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.name
	}
	return names
}

// readLayers reports whether a layer list was found and whether it came
// with an order of its own.
func (n *Normalizer) readLayers(raw map[string]any) (layers []rawLayer, ordered, found bool) {
	for _, key := range layerKeys {
		switch v := raw[key].(type) {
		case []any:
			layers = make([]rawLayer, 0, len(v))
			for i, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name := getStr(m, "name", "title", "layer", "label")
				if name == "" {
					name = fmt.Sprintf("Layer %d", i+1)
				}
				columns := 0
				if layout := getMap(m, "layout"); layout != nil {
					if c, ok := getNum(layout["columns"]); ok {
						columns = int(c)
					}
				}
				if c, ok := getNum(m["columns"]); ok && columns == 0 {
					columns = int(c)
				}
				items, _ := getList(m, "items", "nodes", "components", "children", "elements")
				layers = append(layers, rawLayer{name: name, columns: columns, items: readItems(items)})
			}
			return layers, true, true
		case map[string]any:
			layers = make([]rawLayer, 0, len(v))
			for _, name := range sortedKeys(v) {
				var items []any
				switch body := v[name].(type) {
				case []any:
					items = body
				case map[string]any:
					items, _ = getList(body, "items", "nodes", "components")
				}
				layers = append(layers, rawLayer{name: name, items: readItems(items)})
			}
			return layers, false, true
		}
	}
	return nil, false, false
}

func readItems(items []any) []rawItem {
	out := make([]rawItem, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, rawItem{label: s})
			}
		case map[string]any:
			label := getStr(v, "label", "name", "title")
			if label == "" {
				if data := getMap(v, "data"); data != nil {
					label = getStr(data, "label")
				}
			}
			if label == "" {
				continue
			}
			out = append(out, rawItem{
				id:        getStr(v, "id"),
				label:     label,
				techStack: getStrList(v, "tech_stack", "techStack", "tech", "technologies"),
				note:      getStr(v, "note", "description"),
				category:  getStr(v, "category"),
			})
		}
	}
	return out
}

// architectureEdges resolves endpoints by node id, then by item label.
func (n *Normalizer) architectureEdges(rawEdges []any, ids map[string]bool, labels map[string]string) []model.Edge {
	resolve := func(ref string) string {
		if ids[ref] {
			return ref
		}
		return labels[strings.ToLower(ref)]
	}

	edges := make([]model.Edge, 0, len(rawEdges))
	seen := make(map[string]bool)
	for i, item := range rawEdges {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source := resolve(getStr(m, "source", "from"))
		target := resolve(getStr(m, "target", "to"))
		if source == "" || target == "" {
			n.logger.Warn("dropping unresolved architecture edge", "index", i)
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
