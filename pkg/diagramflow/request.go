package diagramflow

import (
	"fmt"
	"strings"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/layout"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
)

// Request is a text generation request.
type Request struct {
	UserInput        string                 `json:"user_input"`
	DiagramType      model.DiagramType      `json:"diagram_type,omitempty"`
	ArchitectureType model.ArchitectureType `json:"architecture_type,omitempty"`
	TemplateID       string                 `json:"template_id,omitempty"`
	IncrementalMode  bool                   `json:"incremental_mode,omitempty"`
	SessionID        string                 `json:"session_id,omitempty"`

	// Preset names a configured provider preset; empty means the default.
	Preset string `json:"preset,omitempty"`

	// Provider overrides the preset. A Kind with an APIKey replaces it
	// entirely; otherwise set fields refine it.
	Provider llm.ProviderConfig `json:"provider,omitempty"`
}

// Validate checks the request fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserInput) == "" {
		return &dferrors.ConfigError{Field: "user_input", Message: "must not be empty"}
	}
	if r.DiagramType != "" && !r.DiagramType.Valid() {
		return &dferrors.ConfigError{Field: "diagram_type", Message: fmt.Sprintf("unknown diagram type %q", r.DiagramType)}
	}
	if r.ArchitectureType != "" && !r.ArchitectureType.Valid() {
		return &dferrors.ConfigError{Field: "architecture_type", Message: fmt.Sprintf("unknown architecture type %q", r.ArchitectureType)}
	}
	if r.TemplateID != "" {
		if _, ok := LookupTemplate(r.TemplateID); !ok {
			return &dferrors.ConfigError{Field: "template_id", Message: fmt.Sprintf("unknown template %q", r.TemplateID)}
		}
	}
	if r.SessionID != "" {
		return session.ValidateID(r.SessionID)
	}
	return nil
}

// effectiveTypes resolves the diagram and architecture type: the explicit
// value, then the template's category, then flow.
func (r Request) effectiveTypes() (model.DiagramType, model.ArchitectureType) {
	tpl, hasTpl := LookupTemplate(r.TemplateID)

	dt := r.DiagramType
	if dt == "" && hasTpl {
		dt = tpl.Category
	}
	if dt == "" {
		dt = model.DiagramFlow
	}
	if dt != model.DiagramArchitecture {
		return dt, ""
	}

	at := r.ArchitectureType
	if at == "" && hasTpl {
		at = tpl.ArchitectureType
	}
	if at == "" {
		at = model.ArchLayered
	}
	return dt, at
}

// Mode returns the generation mode label: incremental for edits against a
// session, otherwise the effective diagram type.
func (r Request) Mode() string {
	if r.IncrementalMode && r.SessionID != "" {
		return ModeIncremental
	}
	dt, _ := r.effectiveTypes()
	return string(dt)
}

// ImageRequest is a vision generation request.
type ImageRequest struct {
	Image     []byte
	Hint      string
	SessionID string
	Preset    string
	Provider  llm.ProviderConfig
}

// Validate checks the image and session id.
func (r ImageRequest) Validate() error {
	if len(r.Image) == 0 {
		return &dferrors.ConfigError{Field: "image", Message: "must not be empty"}
	}
	if llm.DetectMIME(r.Image) == "" {
		return &dferrors.ConfigError{Field: "image", Message: "unsupported image format (want PNG, JPEG, GIF or WebP)"}
	}
	if r.SessionID != "" {
		return session.ValidateID(r.SessionID)
	}
	return nil
}

// ExcalidrawRequest is an Excalidraw scene generation request.
type ExcalidrawRequest struct {
	UserInput string             `json:"user_input"`
	Preset    string             `json:"preset,omitempty"`
	Provider  llm.ProviderConfig `json:"provider,omitempty"`
}

// Result is a generated or edited diagram.
type Result struct {
	Graph            model.Graph
	SessionID        string
	DiagramType      model.DiagramType
	ArchitectureType model.ArchitectureType

	// Incremental is true when the result was reconciled against a
	// stored canvas. Report is set in that case.
	Incremental bool
	Report      *incremental.Report

	// TemplateFallback is true when the model returned no nodes and the
	// template's exemplar was used.
	TemplateFallback bool

	RunID    string
	Provider string
	Strategy string
	Usage    llm.TokenUsage
}

// ExcalidrawResult is a generated Excalidraw scene.
type ExcalidrawResult struct {
	Scene    layout.Scene
	RunID    string
	Provider string
	Strategy string
	Usage    llm.TokenUsage
}
