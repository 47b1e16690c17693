// Package prompt assembles the model prompts for every generation mode.
//
// Assembly is pure: the same inputs always produce the same prompt. Layout
// numbers come from layout.LayoutSpec and the incremental constraint block
// from incremental.Contract, so prompts state exactly what the normalizer
// and reconciler later enforce.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/layout"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Mode identifies a prompt variant.
type Mode string

// Prompt modes.
const (
	ModeFlow         Mode = "flow"
	ModeArchitecture Mode = "architecture"
	ModeIncremental  Mode = "incremental"
	ModeExcalidraw   Mode = "excalidraw"
	ModeVision       Mode = "vision"
)

// Prompt is an assembled prompt plus the call budget it needs.
type Prompt struct {
	Mode      Mode
	System    string
	User      string
	MaxTokens int
	Timeout   time.Duration
}

// Request converts p into a completion request, attaching images if any.
func (p Prompt) Request(images ...[]byte) llm.CompletionRequest {
	var req llm.CompletionRequest
	if len(images) > 0 {
		req = llm.UserImage(p.System, p.User, images...)
	} else {
		req = llm.UserText(p.System, p.User)
	}
	req.MaxTokens = p.MaxTokens
	req.Timeout = p.Timeout
	return req
}

// Builder assembles prompts.
type Builder struct {
	spec layout.LayoutSpec
}

// Option configures a Builder.
type Option func(*Builder)

// WithSpec sets the layout constants quoted in prompts.
func WithSpec(spec layout.LayoutSpec) Option {
	return func(b *Builder) {
		b.spec = spec
	}
}

// NewBuilder creates a Builder using layout.DefaultSpec.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{spec: layout.DefaultSpec()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Flow builds a full flowchart prompt. hint names a template whose
// structure the model should follow; it may be empty.
func (b *Builder) Flow(userInput, hint string) (Prompt, error) {
	text, err := flowTemplate.Render(map[string]any{
		"user_input":    userInput,
		"template_hint": hintLine(hint),
		"shapes":        model.Shapes,
		"spine_x":       formatNum(b.spine()),
		"step_x":        formatNum(b.spec.FlowStepX),
		"step_y":        formatNum(b.spec.FlowStepY),
		"columns":       b.spec.FlowColumns,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		Mode:      ModeFlow,
		System:    systemPreamble,
		User:      text,
		MaxTokens: llm.MaxTokensDefault,
		Timeout:   llm.DefaultTimeout,
	}, nil
}

// Architecture builds a layered architecture prompt for archType.
func (b *Builder) Architecture(userInput string, archType model.ArchitectureType, hint string) (Prompt, error) {
	tpl := layout.Template(archType)

	var layers strings.Builder
	for i, l := range tpl.Layers {
		fmt.Fprintf(&layers, "%d. %s (%s): %s\n", i+1, l.Key, l.Title, l.Description)
	}

	edgeSchema := `{"source": "item id or label", "target": "item id or label", "label": "optional string"}`
	edgeRule := "Add edges between items that interact; reference items by id or exact label."
	if !tpl.Edges {
		edgeSchema = ""
		edgeRule = `Return "edges": [] because this view shows structure, not interactions.`
	}

	text, err := architectureTemplate.Render(map[string]any{
		"title":         strings.ToLower(tpl.Title),
		"user_input":    userInput,
		"template_hint": hintLine(hint),
		"layers":        strings.TrimRight(layers.String(), "\n"),
		"columns":       tpl.Columns,
		"edge_schema":   edgeSchema,
		"style":         tpl.Style,
		"edge_rule":     edgeRule,
		"item_width":    formatNum(b.spec.ItemWidth),
		"item_height":   formatNum(b.spec.ItemHeight),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		Mode:      ModeArchitecture,
		System:    systemPreamble,
		User:      text,
		MaxTokens: llm.MaxTokensDefault,
		Timeout:   llm.DefaultTimeout,
	}, nil
}

// IncrementalInput is everything an incremental prompt depends on.
type IncrementalInput struct {
	UserInput   string
	DiagramType model.DiagramType
	Existing    model.Graph

	// Stamp seeds new ids; callers pass the request time in Unix seconds.
	Stamp int64
}

// Incremental builds the edit prompt over an existing canvas.
func (b *Builder) Incremental(in IncrementalInput) (Prompt, error) {
	existing := model.Graph{Nodes: in.Existing.Nodes, Edges: in.Existing.Edges}
	graphJSON, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode existing graph: %w", err)
	}

	region := b.SafeRegion(in.Existing)
	diagramType := in.DiagramType
	if diagramType == "" {
		diagramType = model.DiagramFlow
	}

	text, err := incrementalTemplate.Render(map[string]any{
		"diagram_type": string(diagramType),
		"user_input":   in.UserInput,
		"summary":      Summary(in.Existing),
		"graph_json":   string(graphJSON),
		"constraints":  incremental.ConstraintBlock(),
		"safe_x":       formatNum(region.MinX),
		"min_y":        formatNum(region.MinY),
		"max_y":        formatNum(region.MaxY),
		"stamp":        in.Stamp,
		"example_id":   fmt.Sprintf("cache-%d-1", in.Stamp),
	})
	if err != nil {
		return Prompt{}, err
	}

	// The whole canvas comes back, so the budget grows with it. Roughly
	// four bytes of JSON per token.
	maxTokens := llm.MaxTokensDefault
	if len(graphJSON)/4 > llm.MaxTokensDefault/2 {
		maxTokens = llm.MaxTokensLong
	}
	return Prompt{
		Mode:      ModeIncremental,
		System:    systemPreamble,
		User:      text,
		MaxTokens: maxTokens,
		Timeout:   llm.DefaultTimeout,
	}, nil
}

// Excalidraw builds the Excalidraw scene prompt.
func (b *Builder) Excalidraw(userInput string) (Prompt, error) {
	text, err := excalidrawTemplate.Render(map[string]any{
		"user_input":   userInput,
		"canvas_width": formatNum(b.spec.CanvasWidth),
		"min_gap":      formatNum(b.spec.MinGap),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		Mode:      ModeExcalidraw,
		System:    systemPreamble,
		User:      text,
		MaxTokens: llm.MaxTokensLong,
		Timeout:   llm.ExcalidrawTimeout,
	}, nil
}

// Vision builds the image-to-diagram prompt. hint is optional user text.
func (b *Builder) Vision(hint string) (Prompt, error) {
	line := ""
	if strings.TrimSpace(hint) != "" {
		line = "\nCONTEXT FROM THE USER:\n" + strings.TrimSpace(hint) + "\n"
	}
	text, err := visionTemplate.Render(map[string]any{
		"hint":   line,
		"shapes": model.Shapes,
		"step_x": formatNum(b.spec.FlowStepX),
		"step_y": formatNum(b.spec.FlowStepY),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		Mode:      ModeVision,
		System:    systemPreamble,
		User:      text,
		MaxTokens: llm.MaxTokensDefault,
		Timeout:   llm.VisionTimeout,
	}, nil
}

// spine is the x of the main flow path: the middle of the flow grid.
func (b *Builder) spine() float64 {
	cols := max(b.spec.FlowColumns, 1)
	return b.spec.FlowStart.X + float64(cols-1)*b.spec.FlowStepX/2
}

func hintLine(hint string) string {
	if strings.TrimSpace(hint) == "" {
		return ""
	}
	return "\nFollow the structure of the \"" + strings.TrimSpace(hint) + "\" template.\n"
}

// formatNum prints whole numbers without a fraction.
func formatNum(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.1f", f)
}
