// Package layout normalizes parsed model output into the canonical graph and
// computes deterministic geometry: flow grids, layered architecture frames,
// collision resolution, and Excalidraw scene cleanup.
//
// All layout constants live in one LayoutSpec value, shared with the prompt
// assembler so the model is told the same numbers the normalizer enforces.
package layout

import (
	"strings"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// LayoutSpec holds every geometric constant used by prompts and normalizers.
type LayoutSpec struct {
	// Architecture frames.
	ItemWidth      float64
	ItemHeight     float64
	Padding        float64
	Gap            float64
	HeaderHeight   float64
	MinFrameWidth  float64
	MinFrameHeight float64
	LayerSpacingY  float64
	Origin         model.Position

	// Flow grid for nodes without a position.
	FlowStart   model.Position
	FlowStepX   float64
	FlowStepY   float64
	FlowColumns int
	FlowJitter  float64

	// IncrementalOffsetX is how far right of the existing canvas new nodes go.
	IncrementalOffsetX float64

	// Collision resolver.
	MinGap        float64
	CanvasWidth   float64
	CanvasMargin  float64
	WrapY         float64
	MaxIterations int
}

// DefaultSpec returns the standard layout constants.
func DefaultSpec() LayoutSpec {
	return LayoutSpec{
		ItemWidth:      240,
		ItemHeight:     100,
		Padding:        60,
		Gap:            20,
		HeaderHeight:   40,
		MinFrameWidth:  800,
		MinFrameHeight: 150,
		LayerSpacingY:  200,
		Origin:         model.Position{X: 60, Y: 100},

		FlowStart:   model.Position{X: 120, Y: 120},
		FlowStepX:   260,
		FlowStepY:   180,
		FlowColumns: 4,
		FlowJitter:  20,

		IncrementalOffsetX: 300,

		MinGap:        30,
		CanvasWidth:   1400,
		CanvasMargin:  60,
		WrapY:         200,
		MaxIterations: 50,
	}
}

// FrameSize returns the width and height of a layer frame holding items
// laid out in columns.
func (s LayoutSpec) FrameSize(items, columns int) (width, height float64) {
	if columns < 1 {
		columns = 1
	}
	rows := (items + columns - 1) / columns

	width = 2*s.Padding + float64(columns)*s.ItemWidth + float64(columns-1)*s.Gap
	height = s.HeaderHeight + 2*s.Padding
	if rows > 0 {
		height += float64(rows)*s.ItemHeight + float64(rows-1)*s.Gap
	}
	return max(width, s.MinFrameWidth), max(height, s.MinFrameHeight)
}

// ItemPosition returns the position of the i-th item relative to its frame.
func (s LayoutSpec) ItemPosition(i, columns int) model.Position {
	if columns < 1 {
		columns = 1
	}
	col, row := i%columns, i/columns
	return model.Position{
		X: s.Padding + float64(col)*(s.ItemWidth+s.Gap),
		Y: s.HeaderHeight + s.Padding + float64(row)*(s.ItemHeight+s.Gap),
	}
}

// GridPosition returns the flow grid slot for the i-th node.
func (s LayoutSpec) GridPosition(i int) model.Position {
	cols := max(s.FlowColumns, 1)
	col, row := i%cols, i/cols
	return model.Position{
		X: s.FlowStart.X + float64(col)*s.FlowStepX,
		Y: s.FlowStart.Y + float64(row)*s.FlowStepY + float64(col%2)*s.FlowJitter,
	}
}

// LayerTemplate is one layer of an architecture template.
type LayerTemplate struct {
	Key         string
	Title       string
	Description string

	// Aliases are lowercase fragments that identify this layer in model output.
	Aliases []string
}

// ArchitectureTemplate describes one architecture flavor.
type ArchitectureTemplate struct {
	Type    model.ArchitectureType
	Title   string
	Layers  []LayerTemplate
	Columns int
	Edges   bool

	// Style is guidance passed to the model.
	Style string
}

// LayerKeys returns the layer keys in order.
func (t ArchitectureTemplate) LayerKeys() []string {
	keys := make([]string, len(t.Layers))
	for i, l := range t.Layers {
		keys[i] = l.Key
	}
	return keys
}

// Rank returns the index of the template layer that name refers to, or
// len(t.Layers) if none matches.
func (t ArchitectureTemplate) Rank(name string) int {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("_", "-", " ", "-").Replace(n)
	for i, l := range t.Layers {
		if n == l.Key {
			return i
		}
	}
	for i, l := range t.Layers {
		for _, alias := range l.Aliases {
			if strings.Contains(n, alias) {
				return i
			}
		}
	}
	return len(t.Layers)
}

// Covers reports whether every name refers to some template layer.
func (t ArchitectureTemplate) Covers(names []string) bool {
	for _, name := range names {
		if t.Rank(name) == len(t.Layers) {
			return false
		}
	}
	return true
}

var architectureTemplates = map[model.ArchitectureType]ArchitectureTemplate{
	model.ArchBusiness: {
		Type:    model.ArchBusiness,
		Title:   "Business architecture",
		Columns: 4,
		Edges:   false,
		Style:   "Use business language only: capabilities, services, processes and organizations. Do not mention technologies, protocols or products.",
		Layers: []LayerTemplate{
			{Key: "capability", Title: "Business Capabilities", Description: "what the business is able to do", Aliases: []string{"capabilit", "能力"}},
			{Key: "service", Title: "Business Services", Description: "services offered to customers and partners", Aliases: []string{"service", "服务"}},
			{Key: "process", Title: "Business Processes", Description: "end-to-end processes that deliver the services", Aliases: []string{"process", "流程"}},
			{Key: "organization", Title: "Organizations", Description: "departments, roles and partners", Aliases: []string{"organi", "org", "组织", "部门"}},
		},
	},
	model.ArchTechnical: {
		Type:    model.ArchTechnical,
		Title:   "Technical architecture",
		Columns: 4,
		Edges:   true,
		Style:   "Every item must list its tech_stack. Connect items whose runtime calls cross layers.",
		Layers: []LayerTemplate{
			{Key: "presentation", Title: "Presentation Layer", Description: "web, mobile and admin front ends", Aliases: []string{"presentation", "frontend", "front-end", "表现", "展示", "前端"}},
			{Key: "application", Title: "Application Layer", Description: "business services and APIs", Aliases: []string{"application", "app", "business", "应用", "业务"}},
			{Key: "integration", Title: "Integration Layer", Description: "gateways, messaging and adapters", Aliases: []string{"integration", "gateway", "middleware", "集成", "中间件"}},
			{Key: "data", Title: "Data Layer", Description: "databases, caches and storage", Aliases: []string{"data", "storage", "数据", "存储"}},
			{Key: "infrastructure", Title: "Infrastructure Layer", Description: "compute, network and operations", Aliases: []string{"infra", "platform", "基础"}},
		},
	},
	model.ArchDeployment: {
		Type:    model.ArchDeployment,
		Title:   "Deployment architecture",
		Columns: 3,
		Edges:   true,
		Style:   "Use deployment topology terms: load balancers, clusters, replicas, zones, subnets. Connect items along network paths.",
		Layers: []LayerTemplate{
			{Key: "dmz", Title: "DMZ", Description: "edge, CDN, WAF and load balancers", Aliases: []string{"dmz", "edge", "边界"}},
			{Key: "app-tier", Title: "Application Tier", Description: "application clusters and workers", Aliases: []string{"app", "application", "应用"}},
			{Key: "data-tier", Title: "Data Tier", Description: "database clusters, caches and object storage", Aliases: []string{"data", "storage", "数据"}},
			{Key: "monitoring", Title: "Monitoring", Description: "metrics, logging, tracing and alerting", Aliases: []string{"monitor", "observab", "ops", "监控", "运维"}},
		},
	},
	model.ArchDomain: {
		Type:    model.ArchDomain,
		Title:   "Domain architecture",
		Columns: 3,
		Edges:   true,
		Style:   "Model bounded contexts as items. Connect contexts with the domain events they exchange and use the event name as the edge label.",
		Layers: []LayerTemplate{
			{Key: "bounded-context", Title: "Bounded Contexts", Description: "core and supporting subdomains", Aliases: []string{"bounded", "context", "domain", "限界", "领域"}},
			{Key: "shared-kernel", Title: "Shared Kernel", Description: "models shared between contexts", Aliases: []string{"shared", "kernel", "共享"}},
			{Key: "anti-corruption-layer", Title: "Anti-Corruption Layer", Description: "translators to external or legacy systems", Aliases: []string{"anti", "acl", "corruption", "防腐"}},
			{Key: "infrastructure", Title: "Infrastructure", Description: "persistence, messaging and integration plumbing", Aliases: []string{"infra", "基础"}},
		},
	},
	model.ArchLayered: {
		Type:    model.ArchLayered,
		Title:   "Layered architecture",
		Columns: 4,
		Edges:   true,
		Style:   "Keep each layer cohesive. Connect items that call each other.",
		Layers: []LayerTemplate{
			{Key: "presentation", Title: "Presentation", Description: "user-facing clients", Aliases: []string{"presentation", "frontend", "client", "表现", "前端"}},
			{Key: "application", Title: "Application", Description: "services and business logic", Aliases: []string{"application", "service", "business", "app", "应用", "业务"}},
			{Key: "data", Title: "Data", Description: "persistence and caches", Aliases: []string{"data", "storage", "persist", "数据"}},
			{Key: "infrastructure", Title: "Infrastructure", Description: "runtime and operations", Aliases: []string{"infra", "platform", "基础"}},
		},
	},
}

// Template returns the architecture template for t, falling back to layered.
func Template(t model.ArchitectureType) ArchitectureTemplate {
	if tpl, ok := architectureTemplates[t]; ok {
		return tpl
	}
	return architectureTemplates[model.ArchLayered]
}

var palette = []struct {
	keyword string
	color   string
}{
	{"capabilit", "#fb923c"},
	{"organi", "#f472b6"},
	{"process", "#facc15"},
	{"presentation", "#38bdf8"},
	{"dmz", "#f87171"},
	{"monitor", "#fbbf24"},
	{"integration", "#2dd4bf"},
	{"bounded", "#818cf8"},
	{"shared", "#34d399"},
	{"anti", "#fb7185"},
	{"infra", "#94a3b8"},
	{"data", "#a78bfa"},
	{"app", "#4ade80"},
	{"service", "#60a5fa"},
}

// DefaultLayerColor is used when no palette keyword matches.
const DefaultLayerColor = "#cbd5e1"

// LayerColor returns the palette color for a layer name.
func LayerColor(name string) string {
	n := strings.ToLower(name)
	for _, p := range palette {
		if strings.Contains(n, p.keyword) {
			return p.color
		}
	}
	return DefaultLayerColor
}
