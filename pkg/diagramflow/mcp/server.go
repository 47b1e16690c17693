// Package mcp exposes the generator and canvas store to agent clients over
// the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// TemplatesURI is the resource listing built-in templates.
const TemplatesURI = "diagramflow://templates"

// Server adapts a Generator to MCP.
type Server struct {
	mcpServer *server.MCPServer
	gen       *diagramflow.Generator
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server backed by gen.
func NewServer(gen *diagramflow.Generator, version string, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("diagramflow", version),
		gen:       gen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerResources()
	s.registerTools()
	return s
}

// Serve runs the server on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		TemplatesURI,
		"Diagram templates",
		mcp.WithResourceDescription("Built-in templates usable as template_id"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadTemplates)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"generate_diagram",
		mcp.WithDescription("Generate a flow or architecture diagram from a description. Returns nodes, edges and Mermaid code."),
		mcp.WithString("user_input", mcp.Required(), mcp.Description("What the diagram should show")),
		mcp.WithString("diagram_type", mcp.Description("flow or architecture")),
		mcp.WithString("architecture_type", mcp.Description("business or technical")),
		mcp.WithString("template_id", mcp.Description("Built-in template id, see "+TemplatesURI)),
		mcp.WithString("session_id", mcp.Description("Canvas session to save to or edit")),
		mcp.WithBoolean("incremental", mcp.Description("Edit the canvas in session_id instead of replacing it")),
		mcp.WithString("preset", mcp.Description("Provider preset name")),
	), s.handleGenerate)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_canvas",
		mcp.WithDescription("Load a saved canvas by session id."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Canvas session id")),
	), s.handleGetCanvas)
}

// toolOutput is the JSON text returned by generate_diagram.
type toolOutput struct {
	SessionID   string            `json:"session_id,omitempty"`
	DiagramType model.DiagramType `json:"diagram_type"`
	Incremental bool              `json:"incremental"`
	SafeMode    bool              `json:"safe_mode,omitempty"`
	Nodes       []model.Node      `json:"nodes"`
	Edges       []model.Edge      `json:"edges"`
	MermaidCode string            `json:"mermaid_code"`
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := diagramflow.Request{
		UserInput:        mcp.ParseString(request, "user_input", ""),
		DiagramType:      model.DiagramType(mcp.ParseString(request, "diagram_type", "")),
		ArchitectureType: model.ArchitectureType(mcp.ParseString(request, "architecture_type", "")),
		TemplateID:       mcp.ParseString(request, "template_id", ""),
		SessionID:        mcp.ParseString(request, "session_id", ""),
		IncrementalMode:  mcp.ParseBoolean(request, "incremental", false),
		Preset:           mcp.ParseString(request, "preset", ""),
	}

	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("mcp generate failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError(fmt.Sprintf("generate failed: %v", err)), nil
	}

	out := toolOutput{
		SessionID:   res.SessionID,
		DiagramType: res.DiagramType,
		Incremental: res.Incremental,
		SafeMode:    res.Report != nil && res.Report.SafeMode,
		Nodes:       res.Graph.Nodes,
		Edges:       res.Graph.Edges,
		MermaidCode: res.Graph.Mermaid,
	}
	return jsonResult(out)
}

func (s *Server) handleGetCanvas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "session_id", "")
	g, err := s.gen.Store().Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load canvas: %v", err)), nil
	}
	return jsonResult(g)
}

func (s *Server) handleReadTemplates(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(diagramflow.Templates(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal templates: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
