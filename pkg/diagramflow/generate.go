package diagramflow

import (
	"context"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// Generation modes, used as metric and span labels.
const (
	ModeFlow         = "flow"
	ModeArchitecture = "architecture"
	ModeIncremental  = "incremental"
	ModeVision       = "vision"
	ModeExcalidraw   = "excalidraw"
)

// Generate turns a text request into a graph.
//
// Incremental requests with a live session are reconciled against the
// stored canvas; with a missing or expired session they run as full
// generations. The graph is saved when the request names a session or is
// incremental, and Result.SessionID holds the (possibly new) id.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st, err := g.run(ctx, g.text, g.textState(req))
	if err != nil {
		return nil, err
	}
	return st.result(), nil
}

// GenerateStream is Generate with a streamed model call. Events go to sink
// in order: START, CALL, TOKEN per delta, then LAYOUT_DATA, RESULT,
// NODE_SHOW and EDGE_SHOW ticks, and END. Any failure ends the stream with
// ERROR instead, and is also returned.
//
// opts adjust the emitter, for example stream.WithTimings(stream.NoPacing)
// for consumers that do not animate.
func (g *Generator) GenerateStream(ctx context.Context, req Request, sink stream.Sink, opts ...stream.EmitterOption) (*Result, error) {
	emitterOpts := append([]stream.EmitterOption{
		stream.WithTimings(g.timings),
		stream.WithLogger(g.logger),
	}, opts...)
	em := stream.NewEmitter(sink, emitterOpts...)

	st := g.textState(req)
	if err := em.Emit(ctx, stream.Start("generating "+st.mode+" diagram")); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		em.Fail(err)
		return nil, err
	}

	st.emitter = em
	st, err := g.run(ctx, g.streamed, st)
	if err != nil {
		em.Fail(err)
		return nil, err
	}

	if err := em.Reveal(ctx, st.graph); err != nil {
		return nil, err
	}
	if err := em.Emit(ctx, stream.End()); err != nil {
		return nil, err
	}
	return st.result(), nil
}

// GenerateFromImage transcribes a diagram image into a flow graph and
// resolves overlapping nodes. The graph is saved when SessionID is set.
func (g *Generator) GenerateFromImage(ctx context.Context, req ImageRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st := genState{
		job:         jobVision,
		mode:        ModeVision,
		req:         Request{Preset: req.Preset, Provider: req.Provider, SessionID: req.SessionID},
		image:       req.Image,
		hint:        req.Hint,
		diagramType: model.DiagramFlow,
		sessionID:   req.SessionID,
		persist:     req.SessionID != "",
	}
	st, err := g.run(ctx, g.vision, st)
	if err != nil {
		return nil, err
	}
	return st.result(), nil
}

// GenerateExcalidraw generates an Excalidraw scene. Scenes are not stored.
func (g *Generator) GenerateExcalidraw(ctx context.Context, req ExcalidrawRequest) (*ExcalidrawResult, error) {
	text := Request{UserInput: req.UserInput, Preset: req.Preset, Provider: req.Provider}
	if err := text.Validate(); err != nil {
		return nil, err
	}
	st := genState{job: jobExcalidraw, mode: ModeExcalidraw, req: text}
	st, err := g.run(ctx, g.excalidraw, st)
	if err != nil {
		return nil, err
	}
	return &ExcalidrawResult{
		Scene:    st.scene,
		RunID:    st.runID,
		Provider: st.provider,
		Strategy: st.strategy,
		Usage:    st.usage,
	}, nil
}

func (g *Generator) textState(req Request) genState {
	dt, at := req.effectiveTypes()
	st := genState{
		job:         jobText,
		mode:        req.Mode(),
		req:         req,
		diagramType: dt,
		archType:    at,
		sessionID:   req.SessionID,
		persist:     req.IncrementalMode || req.SessionID != "",
	}
	if tpl, ok := LookupTemplate(req.TemplateID); ok {
		st.hint = tpl.Name
	}
	return st
}

func (st genState) result() *Result {
	return &Result{
		Graph:            st.graph,
		SessionID:        st.sessionID,
		DiagramType:      st.diagramType,
		ArchitectureType: st.archType,
		Incremental:      st.prior != nil,
		Report:           st.report,
		TemplateFallback: st.fallback,
		RunID:            st.runID,
		Provider:         st.provider,
		Strategy:         st.strategy,
		Usage:            st.usage,
	}
}
