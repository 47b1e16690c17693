package diagramflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/layout"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/prompt"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// Stage identifiers.
const (
	StageResolveProvider = "resolve_provider"
	StageLoadCanvas      = "load_canvas"
	StageBuildPrompt     = "build_prompt"
	StageCallModel       = "call_model"
	StageStreamModel     = "stream_model"
	StageParse           = "parse"
	StageNormalize       = "normalize"
	StageReconcile       = "reconcile"
	StageResolveLayout   = "resolve_layout"
	StageFallback        = "fallback"
	StagePersist         = "persist"
)

// Generator is the generation orchestrator. It wires the provider presets,
// prompt builder, normalizer, reconciler and session store into compiled
// stage pipelines, one per entry point.
//
// A Generator is safe for concurrent use.
type Generator struct {
	presets    *llm.Presets
	clientOpts []llm.Option
	store      *session.Store
	prompts    *prompt.Builder
	normalizer *layout.Normalizer
	reconciler *incremental.Reconciler
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	tracer     observability.Tracer
	timings    stream.Timings
	now        func() time.Time

	text       *CompiledPipeline[genState]
	streamed   *CompiledPipeline[genState]
	vision     *CompiledPipeline[genState]
	excalidraw *CompiledPipeline[genState]
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithPresets sets the provider presets.
func WithPresets(p *llm.Presets) GeneratorOption {
	return func(g *Generator) {
		if p != nil {
			g.presets = p
		}
	}
}

// WithClientOptions sets the options for clients built from per-request
// provider overrides.
func WithClientOptions(opts ...llm.Option) GeneratorOption {
	return func(g *Generator) {
		g.clientOpts = append(g.clientOpts, opts...)
	}
}

// WithStore sets the canvas session store.
func WithStore(s *session.Store) GeneratorOption {
	return func(g *Generator) {
		if s != nil {
			g.store = s
		}
	}
}

// WithPromptBuilder sets the prompt builder.
func WithPromptBuilder(b *prompt.Builder) GeneratorOption {
	return func(g *Generator) {
		if b != nil {
			g.prompts = b
		}
	}
}

// WithNormalizer sets the graph normalizer.
func WithNormalizer(n *layout.Normalizer) GeneratorOption {
	return func(g *Generator) {
		if n != nil {
			g.normalizer = n
		}
	}
}

// WithReconciler sets the incremental reconciler.
func WithReconciler(r *incremental.Reconciler) GeneratorOption {
	return func(g *Generator) {
		if r != nil {
			g.reconciler = r
		}
	}
}

// WithLogger sets the logger. Components created by the Generator share it.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetricsRecorder records stage and generation metrics.
func WithMetricsRecorder(m observability.MetricsRecorder) GeneratorOption {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithTracer traces generations.
func WithTracer(t observability.Tracer) GeneratorOption {
	return func(g *Generator) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithTimings sets the progressive reveal pacing of streamed generations.
func WithTimings(t stream.Timings) GeneratorOption {
	return func(g *Generator) {
		g.timings = t
	}
}

// WithClock sets the time source for incremental id stamps.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator creates a Generator. Unset collaborators get defaults: an
// empty preset set, an in-memory session store, and the default prompt
// builder, normalizer and reconciler.
func NewGenerator(opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		tracer:  observability.NoopTracer{},
		timings: stream.DefaultTimings(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.presets == nil {
		g.presets = llm.NewPresets(llm.WithLogger(g.logger))
	}
	if g.store == nil {
		g.store = session.NewStore(session.WithLogger(g.logger))
	}
	if g.prompts == nil {
		g.prompts = prompt.NewBuilder()
	}
	if g.normalizer == nil {
		g.normalizer = layout.NewNormalizer(layout.WithLogger(g.logger))
	}
	if g.reconciler == nil {
		g.reconciler = incremental.New(
			incremental.WithLogger(g.logger),
			incremental.WithClock(g.now),
			incremental.WithLayoutSpec(g.normalizer.Spec()),
		)
	}

	var err error
	if g.text, err = g.textPipeline().Compile(); err != nil {
		return nil, fmt.Errorf("compile text pipeline: %w", err)
	}
	if g.streamed, err = g.streamPipeline().Compile(); err != nil {
		return nil, fmt.Errorf("compile stream pipeline: %w", err)
	}
	if g.vision, err = g.visionPipeline().Compile(); err != nil {
		return nil, fmt.Errorf("compile vision pipeline: %w", err)
	}
	if g.excalidraw, err = g.excalidrawPipeline().Compile(); err != nil {
		return nil, fmt.Errorf("compile excalidraw pipeline: %w", err)
	}
	return g, nil
}

// Store returns the session store.
func (g *Generator) Store() *session.Store {
	return g.store
}

// Presets returns the provider presets.
func (g *Generator) Presets() *llm.Presets {
	return g.presets
}

// textPipeline: provider, canvas, prompt, model call, parse, normalize,
// then reconcile (incremental) or fallback (full), then persist.
func (g *Generator) textPipeline() *Pipeline[genState] {
	return NewPipeline[genState]().
		AddStage(StageResolveProvider, g.resolveProvider).
		AddStage(StageLoadCanvas, g.loadCanvas).
		AddStage(StageBuildPrompt, g.buildPrompt).
		AddStage(StageCallModel, g.callModel).
		AddStage(StageParse, g.parse).
		AddStage(StageNormalize, g.normalize).
		AddStage(StageReconcile, g.reconcile).
		AddStage(StageFallback, g.fallback).
		AddStage(StagePersist, g.persist).
		AddEdge(StageResolveProvider, StageLoadCanvas).
		AddEdge(StageLoadCanvas, StageBuildPrompt).
		AddEdge(StageBuildPrompt, StageCallModel).
		AddEdge(StageCallModel, StageParse).
		AddEdge(StageParse, StageNormalize).
		AddConditionalEdge(StageNormalize, routeIncremental).
		AddEdge(StageReconcile, StagePersist).
		AddEdge(StageFallback, StagePersist).
		AddEdge(StagePersist, End).
		SetEntry(StageResolveProvider)
}

// streamPipeline streams the model call and retries once without
// streaming when the streamed text cannot be parsed.
func (g *Generator) streamPipeline() *Pipeline[genState] {
	return NewPipeline[genState]().
		AddStage(StageResolveProvider, g.resolveProvider).
		AddStage(StageLoadCanvas, g.loadCanvas).
		AddStage(StageBuildPrompt, g.buildPrompt).
		AddStage(StageStreamModel, g.streamModel).
		AddStage(StageCallModel, g.callModel).
		AddStage(StageParse, g.parse).
		AddStage(StageNormalize, g.normalize).
		AddStage(StageReconcile, g.reconcile).
		AddStage(StageFallback, g.fallback).
		AddStage(StagePersist, g.persist).
		AddEdge(StageResolveProvider, StageLoadCanvas).
		AddEdge(StageLoadCanvas, StageBuildPrompt).
		AddEdge(StageBuildPrompt, StageStreamModel).
		AddEdge(StageStreamModel, StageParse).
		AddEdge(StageCallModel, StageParse).
		AddConditionalEdge(StageParse, routeAfterParse).
		AddConditionalEdge(StageNormalize, routeIncremental).
		AddEdge(StageReconcile, StagePersist).
		AddEdge(StageFallback, StagePersist).
		AddEdge(StagePersist, End).
		SetEntry(StageResolveProvider)
}

// visionPipeline normalizes an image transcription as a flow and resolves
// overlapping nodes.
func (g *Generator) visionPipeline() *Pipeline[genState] {
	return NewPipeline[genState]().
		AddStage(StageResolveProvider, g.resolveProvider).
		AddStage(StageBuildPrompt, g.buildPrompt).
		AddStage(StageCallModel, g.callModel).
		AddStage(StageParse, g.parse).
		AddStage(StageNormalize, g.normalize).
		AddStage(StageResolveLayout, g.resolveLayout).
		AddStage(StageFallback, g.fallback).
		AddStage(StagePersist, g.persist).
		AddEdge(StageResolveProvider, StageBuildPrompt).
		AddEdge(StageBuildPrompt, StageCallModel).
		AddEdge(StageCallModel, StageParse).
		AddEdge(StageParse, StageNormalize).
		AddEdge(StageNormalize, StageResolveLayout).
		AddEdge(StageResolveLayout, StageFallback).
		AddEdge(StageFallback, StagePersist).
		AddEdge(StagePersist, End).
		SetEntry(StageResolveProvider)
}

func (g *Generator) excalidrawPipeline() *Pipeline[genState] {
	return NewPipeline[genState]().
		AddStage(StageResolveProvider, g.resolveProvider).
		AddStage(StageBuildPrompt, g.buildPrompt).
		AddStage(StageCallModel, g.callModel).
		AddStage(StageParse, g.parse).
		AddStage(StageNormalize, g.normalize).
		AddEdge(StageResolveProvider, StageBuildPrompt).
		AddEdge(StageBuildPrompt, StageCallModel).
		AddEdge(StageCallModel, StageParse).
		AddEdge(StageParse, StageNormalize).
		AddEdge(StageNormalize, End).
		SetEntry(StageResolveProvider)
}

func routeIncremental(_ Context, st genState) string {
	if st.prior != nil {
		return StageReconcile
	}
	return StageFallback
}

func routeAfterParse(_ Context, st genState) string {
	if st.retryCompletion {
		return StageCallModel
	}
	return StageNormalize
}

// run executes pipeline with generation-level logging around it.
func (g *Generator) run(ctx context.Context, p *CompiledPipeline[genState], st genState) (genState, error) {
	rctx := NewContext(ctx, WithContextLogger(g.logger))
	st.runID = rctx.RunID()

	observability.LogGenerationStart(g.logger, st.runID, st.mode, st.providerHint())
	elapsed := observability.TimedOperation()

	out, err := p.Run(rctx, st,
		WithMode(st.mode),
		WithMetrics(g.metrics),
		WithRunTracer(g.tracer),
	)
	if err != nil {
		observability.LogGenerationError(g.logger, st.runID, err, elapsed(), FailedStage(err))
		return out, err
	}
	observability.LogGenerationComplete(g.logger, st.runID, out.sessionID, elapsed(), len(out.graph.Nodes), len(out.graph.Edges))
	return out, nil
}
