package api

import (
	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Nodes            []model.Node           `json:"nodes"`
	Edges            []model.Edge           `json:"edges"`
	MermaidCode      string                 `json:"mermaid_code,omitempty"`
	NodeCount        int                    `json:"node_count"`
	EdgeCount        int                    `json:"edge_count"`
	SessionID        string                 `json:"session_id,omitempty"`
	DiagramType      model.DiagramType      `json:"diagram_type"`
	ArchitectureType model.ArchitectureType `json:"architecture_type,omitempty"`
	Incremental      bool                   `json:"incremental"`
	SafeMode         bool                   `json:"safe_mode,omitempty"`
	TemplateFallback bool                   `json:"template_fallback,omitempty"`
	RunID            string                 `json:"run_id"`
	Provider         string                 `json:"provider"`
	Usage            llm.TokenUsage         `json:"usage"`
}

// NewGenerateResponse flattens a Result for the wire.
func NewGenerateResponse(res *diagramflow.Result) GenerateResponse {
	g := res.Graph.Clone()
	if g.Nodes == nil {
		g.Nodes = []model.Node{}
	}
	if g.Edges == nil {
		g.Edges = []model.Edge{}
	}
	return GenerateResponse{
		Nodes:            g.Nodes,
		Edges:            g.Edges,
		MermaidCode:      g.Mermaid,
		NodeCount:        len(g.Nodes),
		EdgeCount:        len(g.Edges),
		SessionID:        res.SessionID,
		DiagramType:      res.DiagramType,
		ArchitectureType: res.ArchitectureType,
		Incremental:      res.Incremental,
		SafeMode:         res.Report != nil && res.Report.SafeMode,
		TemplateFallback: res.TemplateFallback,
		RunID:            res.RunID,
		Provider:         res.Provider,
		Usage:            res.Usage,
	}
}

// CanvasRequest saves a client canvas.
type CanvasRequest struct {
	SessionID   string       `json:"session_id,omitempty"`
	Nodes       []model.Node `json:"nodes"`
	Edges       []model.Edge `json:"edges"`
	MermaidCode string       `json:"mermaid_code,omitempty"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Sessions int      `json:"sessions"`
	Presets  []string `json:"presets"`
	Default  string   `json:"default_preset,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
	Stage  string `json:"stage,omitempty"`
}
