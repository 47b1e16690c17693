package diagramflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/jsonrepair"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/layout"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/mermaid"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/observability"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/prompt"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// job is the kind of generation a state belongs to.
type job int

const (
	jobText job = iota
	jobVision
	jobExcalidraw
)

// genState flows through the generation pipelines.
type genState struct {
	job   job
	mode  string
	runID string

	req         Request
	image       []byte
	hint        string
	diagramType model.DiagramType
	archType    model.ArchitectureType

	// provider
	provider string
	client   llm.Client
	cfg      llm.ProviderConfig

	// canvas
	sessionID string
	persist   bool
	prior     *model.Graph

	// model call
	prompt          prompt.Prompt
	text            string
	truncated       bool
	streamedCall    bool
	completed       bool
	retryCompletion bool
	usage           llm.TokenUsage
	emitter         *stream.Emitter

	// output
	parsed   map[string]any
	strategy string
	graph    model.Graph
	scene    layout.Scene
	report   *incremental.Report
	fallback bool
}

func (st genState) providerHint() string {
	if st.req.Provider.Kind != "" {
		return string(st.req.Provider.Kind)
	}
	return st.req.Preset
}

// resolveProvider picks the client: a complete override builds its own,
// otherwise the named or default preset is used.
func (g *Generator) resolveProvider(ctx Context, st genState) (genState, error) {
	override := st.req.Provider
	cfg, err := g.presets.Resolve(st.req.Preset, override)
	if err != nil {
		return st, err
	}
	st.cfg = cfg
	st.provider = string(cfg.Kind)

	complete := override.Kind != "" && override.APIKey != ""
	if complete || override.BaseURL != "" {
		st.client, err = llm.New(cfg, g.clientOpts...)
		return st, err
	}

	name := st.req.Preset
	if name == "" {
		name = g.presets.Default()
	}
	st.client, err = g.presets.Client(name)
	if err != nil {
		return st, err
	}
	ctx.Logger().Debug("provider resolved", "preset", name, "provider", st.provider)
	return st, nil
}

// loadCanvas fetches the prior graph for incremental requests. A missing
// or expired session downgrades the request to full generation.
func (g *Generator) loadCanvas(ctx Context, st genState) (genState, error) {
	if !st.req.IncrementalMode {
		return st, nil
	}
	if st.sessionID == "" {
		ctx.Logger().Info("incremental request without session, generating full diagram")
		return st, nil
	}

	prior, err := g.store.Get(ctx, st.sessionID)
	if errors.Is(err, dferrors.ErrSessionNotFound) {
		ctx.Logger().Info("session missing or expired, generating full diagram", "session_id", st.sessionID)
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.prior = &prior
	return st, nil
}

func (g *Generator) buildPrompt(ctx Context, st genState) (genState, error) {
	var (
		p   prompt.Prompt
		err error
	)
	switch {
	case st.job == jobVision:
		p, err = g.prompts.Vision(st.hint)
	case st.job == jobExcalidraw:
		p, err = g.prompts.Excalidraw(st.req.UserInput)
	case st.prior != nil:
		p, err = g.prompts.Incremental(prompt.IncrementalInput{
			UserInput:   st.req.UserInput,
			DiagramType: st.diagramType,
			Existing:    *st.prior,
			Stamp:       g.now().Unix(),
		})
	case st.diagramType == model.DiagramArchitecture:
		p, err = g.prompts.Architecture(st.req.UserInput, st.archType, st.hint)
	default:
		p, err = g.prompts.Flow(st.req.UserInput, st.hint)
	}
	if err != nil {
		return st, err
	}
	st.prompt = p
	ctx.Logger().Debug("prompt built", "mode", string(p.Mode), "max_tokens", p.MaxTokens)
	return st, nil
}

// request converts the prompt into a completion request with the call
// timeout and model override applied.
func (st genState) request() llm.CompletionRequest {
	var req llm.CompletionRequest
	if st.image != nil {
		req = st.prompt.Request(st.image)
	} else {
		req = st.prompt.Request()
	}
	req.Model = st.req.Provider.Model
	req.Timeout = callTimeout(st.cfg.Timeout, st.prompt.Timeout)
	return req
}

// callTimeout lets a configured provider timeout govern ordinary calls and
// only raises it for workloads that need longer (vision, Excalidraw).
func callTimeout(configured, workload time.Duration) time.Duration {
	if configured <= 0 {
		return workload
	}
	if workload > llm.DefaultTimeout {
		return max(configured, workload)
	}
	return configured
}

func (g *Generator) callModel(ctx Context, st genState) (genState, error) {
	if st.emitter != nil {
		if err := st.emitter.Emit(ctx, stream.Call("calling "+st.provider)); err != nil {
			return st, err
		}
	}

	resp, err := st.client.Complete(ctx, st.request())
	if err != nil {
		return st, err
	}
	st.text = resp.Content
	st.truncated = truncatedFinish(resp.FinishReason)
	st.usage.Add(resp.Usage)
	st.completed = true
	st.retryCompletion = false
	ctx.Logger().Debug("model responded",
		"chars", len(resp.Content),
		"finish_reason", resp.FinishReason,
		"duration_ms", resp.Duration.Milliseconds())
	return st, nil
}

// streamModel forwards every delta as a TOKEN event while accumulating the
// response. Leaving early cancels the upstream call.
func (g *Generator) streamModel(ctx Context, st genState) (genState, error) {
	if err := st.emitter.Emit(ctx, stream.Call("streaming from "+st.provider)); err != nil {
		return st, err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := st.client.Stream(sctx, st.request())
	if err != nil {
		return st, err
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return st, chunk.Error
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			if err := st.emitter.Emit(ctx, stream.Token(chunk.Content)); err != nil {
				return st, err
			}
		}
		if chunk.Usage != nil {
			st.usage.Add(*chunk.Usage)
		}
		if chunk.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}

	st.text = text.String()
	st.streamedCall = true
	return st, nil
}

// parse extracts the JSON object. Unparseable streamed text is retried once
// as a single-shot call instead of failing.
func (g *Generator) parse(ctx Context, st genState) (genState, error) {
	var opts []jsonrepair.Option
	if st.truncated {
		opts = append(opts, jsonrepair.WithTruncated())
	}

	res, err := jsonrepair.Extract(st.text, opts...)
	if err != nil {
		if st.streamedCall && !st.completed {
			ctx.Logger().Warn("streamed output could not be parsed, retrying without streaming", "error", err)
			st.retryCompletion = true
			return st, nil
		}
		return st, err
	}
	st.retryCompletion = false
	st.parsed = res.Value
	st.strategy = res.Strategy
	if res.Strategy != jsonrepair.StrategyWhole {
		ctx.Logger().Info("model output repaired", "strategy", res.Strategy)
	}
	return st, nil
}

func (g *Generator) normalize(ctx Context, st genState) (genState, error) {
	switch {
	case st.job == jobExcalidraw:
		st.scene = g.normalizer.Excalidraw(st.parsed)
		ctx.Logger().Debug("scene normalized", "elements", len(st.scene.Elements))
		return st, nil
	case st.prior != nil:
		st.graph = g.normalizer.Flow(st.parsed, layout.KeepDuplicateIDs(), layout.SkipAutoWire())
	case st.diagramType == model.DiagramArchitecture:
		st.graph = g.normalizer.Architecture(st.parsed, st.archType)
	default:
		st.graph = g.normalizer.Flow(st.parsed)
	}
	ctx.Logger().Debug("graph normalized", "nodes", len(st.graph.Nodes), "edges", len(st.graph.Edges))
	return st, nil
}

// reconcile repairs the model's edit against the stored canvas.
func (g *Generator) reconcile(ctx Context, st genState) (genState, error) {
	graph, report := g.reconciler.Reconcile(*st.prior, st.graph)
	if ids := model.DetachOrphans(graph.Nodes); len(ids) > 0 {
		ctx.Logger().Warn("detached nodes from missing parents", "ids", ids)
	}
	if vs := model.Validate(graph); len(vs) > 0 {
		ctx.Logger().Warn("reconciled graph has invariant violations", "error", vs.Err())
	}
	if st.diagramType == model.DiagramFlow {
		graph.Mermaid = mermaid.Render(graph)
	}
	st.graph = graph
	st.report = &report

	if report.SafeMode {
		observability.LogSafeMode(ctx.Logger(), st.sessionID, report.SafeModeReason, report.LostConcepts)
		g.metrics.RecordSafeMode(ctx, report.SafeModeReason)
		observability.Event(ctx, "safe_mode",
			attribute.String("reason", report.SafeModeReason),
			attribute.Int("lost", len(report.LostConcepts)),
		)
	}
	return st, nil
}

// resolveLayout pushes overlapping vision nodes apart.
func (g *Generator) resolveLayout(ctx Context, st genState) (genState, error) {
	nodes, report := g.normalizer.ResolveCollisions(st.graph.Nodes)
	st.graph.Nodes = nodes
	if report.Moved > 0 {
		ctx.Logger().Debug("resolved overlapping nodes", "moved", report.Moved, "unresolved", report.Unresolved)
	}
	return st, nil
}

// fallback handles a full generation that produced no nodes. Only flows
// have a fallback: a template's exemplar stands in, otherwise the caller is
// asked to retry. An empty architecture is returned as is.
func (g *Generator) fallback(ctx Context, st genState) (genState, error) {
	if len(st.graph.Nodes) > 0 {
		if vs := model.Validate(st.graph); len(vs) > 0 {
			ctx.Logger().Warn("normalized graph has invariant violations", "error", vs.Err())
		}
		return st, nil
	}
	if st.diagramType != model.DiagramFlow {
		ctx.Logger().Warn("model returned no nodes", "diagram_type", st.diagramType)
		return st, nil
	}

	if st.job == jobText {
		if tpl, ok := LookupTemplate(st.req.TemplateID); ok && tpl.HasExemplar() {
			ctx.Logger().Warn("model returned no nodes, using template exemplar", "template_id", tpl.ID)
			st.graph = tpl.Exemplar()
			st.fallback = true
			return st, nil
		}
	}
	return st, &dferrors.BadResponseError{Provider: st.provider, Reason: "model returned no nodes, retry the request"}
}

// persist saves the graph when the request is tied to a session.
func (g *Generator) persist(ctx Context, st genState) (genState, error) {
	if !st.persist {
		return st, nil
	}
	res, err := g.store.Save(ctx, st.sessionID, st.graph)
	if err != nil {
		return st, err
	}
	st.sessionID = res.SessionID
	g.metrics.RecordSessionSize(ctx, int64(res.Bytes))
	return st, nil
}

// truncatedFinish reports whether a finish reason means the output hit the
// token limit.
func truncatedFinish(reason string) bool {
	switch strings.ToLower(reason) {
	case "length", "max_tokens", "max_output_tokens":
		return true
	}
	return false
}
