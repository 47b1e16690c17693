package diagramflow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/jsonrepair"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGenerator(t *testing.T, client llm.Client, opts ...GeneratorOption) *Generator {
	t.Helper()
	presets := llm.NewPresets()
	presets.Use("mock", client)

	base := []GeneratorOption{
		WithPresets(presets),
		WithLogger(discardLogger()),
		WithTimings(stream.NoPacing),
		WithClock(fixedNow),
	}
	g, err := NewGenerator(append(base, opts...)...)
	require.NoError(t, err)
	return g
}

// requestText joins everything a request sends to the model.
func requestText(req *llm.CompletionRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	for _, m := range req.Messages {
		b.WriteString("\n")
		b.WriteString(m.Content)
	}
	return b.String()
}

const oomFlow = `Here is the diagram:
{"nodes": [
	{"id": "start", "type": "start-event", "position": {"x": 300, "y": 50}, "data": {"label": "OOM alert", "shape": "start-event"}},
	{"id": "dump", "type": "task", "position": {"x": 300, "y": 190}, "data": {"label": "Capture heap dump", "shape": "task"}},
	{"id": "growing", "type": "decision", "position": {"x": 300, "y": 330}, "data": {"label": "Heap growing?", "shape": "diamond"}},
	{"id": "leak", "type": "task", "position": {"x": 100, "y": 470}, "data": {"label": "Find leak", "shape": "task"}},
	{"id": "spike", "type": "task", "position": {"x": 500, "y": 470}, "data": {"label": "Check traffic spike", "shape": "task"}},
	{"id": "fix", "type": "task", "position": {"x": 100, "y": 610}, "data": {"label": "Patch code", "shape": "task"}},
	{"id": "scale", "type": "task", "position": {"x": 500, "y": 610}, "data": {"label": "Scale out", "shape": "task"}},
	{"id": "verify", "type": "task", "position": {"x": 300, "y": 750}, "data": {"label": "Verify", "shape": "task"}},
	{"id": "end", "type": "end-event", "position": {"x": 300, "y": 890}, "data": {"label": "Closed", "shape": "end-event"}}
],
"edges": [
	{"source": "start", "target": "dump"},
	{"source": "dump", "target": "growing"},
	{"source": "growing", "target": "leak", "label": "yes"},
	{"source": "growing", "target": "spike", "label": "no"},
	{"source": "leak", "target": "fix"},
	{"source": "spike", "target": "scale"},
	{"source": "fix", "target": "verify"},
	{"source": "scale", "target": "verify"},
	{"source": "verify", "target": "end"}
]}`

func TestGenerate_Flow(t *testing.T) {
	mock := llm.NewMockClient(oomFlow)
	g := newTestGenerator(t, mock)

	res, err := g.Generate(context.Background(), Request{UserInput: "OOM investigation", DiagramType: model.DiagramFlow})
	require.NoError(t, err)

	assert.Equal(t, model.DiagramFlow, res.DiagramType)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, jsonrepair.StrategyBraces, res.Strategy)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.SessionID, "nothing persisted without a session")
	assert.False(t, res.Incremental)

	require.GreaterOrEqual(t, len(res.Graph.Nodes), 8)
	types := map[string]int{}
	for _, n := range res.Graph.Nodes {
		types[n.Type]++
	}
	assert.Equal(t, 1, types[model.TypeStartEvent])
	assert.Equal(t, 1, types[model.TypeEndEvent])
	assert.GreaterOrEqual(t, types[model.TypeDecision], 1)
	assert.Len(t, res.Graph.Edges, 9)
	assert.NotEmpty(t, res.Graph.Mermaid)
	assert.Empty(t, model.Validate(res.Graph))

	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, requestText(mock.LastCall()), "OOM investigation")
	assert.Positive(t, res.Usage.TotalTokens)
}

func TestGenerate_BusinessArchitecture(t *testing.T) {
	mock := llm.NewMockClient(`{
		"layers": [
			{"name": "组织层", "items": [{"label": "运营中心"}, {"label": "物业公司"}]},
			{"name": "业务能力层", "items": [{"label": "安防管理"}, {"label": "能源管理"}]},
			{"name": "流程层", "items": ["访客预约", "设备巡检"]},
			{"name": "服务层", "items": [{"label": "停车服务"}]}
		],
		"edges": [{"source": "运营中心", "target": "物业公司"}]
	}`)
	g := newTestGenerator(t, mock)

	res, err := g.Generate(context.Background(), Request{
		UserInput:        "智慧园区",
		DiagramType:      model.DiagramArchitecture,
		ArchitectureType: model.ArchBusiness,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ArchBusiness, res.ArchitectureType)
	assert.Empty(t, res.Graph.Edges)

	var frames []model.Node
	frameIDs := map[string]model.Node{}
	for _, n := range res.Graph.Nodes {
		if n.Type == model.TypeLayerFrame {
			frames = append(frames, n)
			frameIDs[n.ID] = n
		}
	}
	require.Len(t, frames, 4)

	y := 100.0
	for _, f := range frames {
		assert.InDelta(t, y, f.Position.Y, 0.001)
		y += f.Height + 200
	}

	for _, n := range res.Graph.Nodes {
		if n.Type == model.TypeLayerFrame {
			continue
		}
		parent, ok := frameIDs[n.ParentNode]
		require.True(t, ok, "item %s has no frame", n.ID)
		assert.Less(t, n.Position.X, parent.Width)
		assert.Less(t, n.Position.Y, parent.Height)
	}
}

func TestGenerate_TemplateImpliesArchitecture(t *testing.T) {
	mock := llm.NewMockClient(`{"layers": [{"name": "Gateway", "items": ["Kong"]}, {"name": "Services", "items": ["Orders"]}]}`)
	g := newTestGenerator(t, mock)

	res, err := g.Generate(context.Background(), Request{UserInput: "shop backend", TemplateID: "microservices"})
	require.NoError(t, err)
	assert.Equal(t, model.DiagramArchitecture, res.DiagramType)
	assert.Equal(t, model.ArchTechnical, res.ArchitectureType)
	assert.Contains(t, requestText(mock.LastCall()), "Microservices")
}

func priorChain() model.Graph {
	return model.Graph{
		Nodes: []model.Node{
			{ID: "api-1", Type: model.TypeAPI, Position: model.Position{X: 100, Y: 100}, Data: model.NodeData{Label: "User API"}},
			{ID: "service-1", Type: model.TypeService, Position: model.Position{X: 400, Y: 100}, Data: model.NodeData{Label: "Order Service"}},
			{ID: "db-1", Type: model.TypeDatabase, Position: model.Position{X: 700, Y: 250}, Data: model.NodeData{Label: "Orders DB"}},
		},
		Edges: []model.Edge{
			{ID: "e0", Source: "api-1", Target: "service-1"},
			{ID: "e1", Source: "service-1", Target: "db-1"},
		},
	}
}

func TestGenerate_IncrementalAddCache(t *testing.T) {
	mock := llm.NewMockClient(`{"nodes": [
		{"id": "api-1", "type": "api", "position": {"x": 100, "y": 100}, "data": {"label": "User Gateway"}},
		{"id": "db-1", "type": "database", "position": {"x": 700, "y": 250}, "data": {"label": "Orders DB"}},
		{"id": "cache-1700000000-1", "type": "cache", "position": {"x": 550, "y": 180}, "data": {"label": "Order Cache"}}
	], "edges": [
		{"id": "e0", "source": "api-1", "target": "service-1"},
		{"source": "service-1", "target": "cache-1700000000-1"},
		{"source": "cache-1700000000-1", "target": "db-1"}
	]}`)

	var logs bytes.Buffer
	g := newTestGenerator(t, mock, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()

	_, err := g.Store().Save(ctx, "canvas-1", priorChain())
	require.NoError(t, err)

	res, err := g.Generate(ctx, Request{
		UserInput:       "add redis cache between service and db",
		IncrementalMode: true,
		SessionID:       "canvas-1",
	})
	require.NoError(t, err)

	assert.True(t, res.Incremental)
	require.NotNil(t, res.Report)
	assert.Equal(t, []string{"service-1"}, res.Report.Restored)
	assert.False(t, res.Report.SafeMode)
	assert.Contains(t, logs.String(), "AI deleted 1 nodes")

	byID := map[string]model.Node{}
	for _, n := range res.Graph.Nodes {
		byID[n.ID] = n
	}
	require.Contains(t, byID, "service-1")
	assert.Equal(t, "User API", byID["api-1"].Data.Label)
	cache, ok := byID["cache-1700000000-1"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, cache.Position.X, 700.0+300)
	assert.NotEmpty(t, res.Graph.Mermaid)

	assert.Contains(t, requestText(mock.LastCall()), "service-1", "existing canvas is sent to the model")

	stored, err := g.Store().Get(ctx, "canvas-1")
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 4)
	assert.Equal(t, "canvas-1", res.SessionID)
}

func TestGenerate_IncrementalSafeMode(t *testing.T) {
	prior := model.Graph{Nodes: []model.Node{
		{ID: "n1", Type: model.TypeService, Position: model.Position{X: 0, Y: 0}, Data: model.NodeData{Label: "Order Service"}},
		{ID: "n2", Type: model.TypeService, Position: model.Position{X: 300, Y: 0}, Data: model.NodeData{Label: "Payment Service"}},
		{ID: "n3", Type: model.TypeService, Position: model.Position{X: 600, Y: 0}, Data: model.NodeData{Label: "User Service"}},
		{ID: "n4", Type: model.TypeGateway, Position: model.Position{X: 0, Y: 300}, Data: model.NodeData{Label: "Edge Gateway"}},
		{ID: "n5", Type: model.TypeDatabase, Position: model.Position{X: 300, Y: 300}, Data: model.NodeData{Label: "MySQL Cluster"}},
		{ID: "n6", Type: model.TypeCache, Position: model.Position{X: 600, Y: 300}, Data: model.NodeData{Label: "Redis Cache"}},
	}}
	mock := llm.NewMockClient(`{"nodes": [
		{"id": "n1", "type": "service", "position": {"x": 0, "y": 0}, "data": {"label": "Service A"}},
		{"id": "n2", "type": "service", "position": {"x": 300, "y": 0}, "data": {"label": "Service B"}},
		{"id": "n3", "type": "service", "position": {"x": 600, "y": 0}, "data": {"label": "User Service"}},
		{"id": "n4", "type": "gateway", "position": {"x": 0, "y": 300}, "data": {"label": "Edge Gateway"}},
		{"id": "n5", "type": "database", "position": {"x": 300, "y": 300}, "data": {"label": "MySQL Cluster"}},
		{"id": "n6", "type": "cache", "position": {"x": 600, "y": 300}, "data": {"label": "Redis Cache"}},
		{"id": "n7", "type": "queue", "position": {"x": 1200, "y": 100}, "data": {"label": "Kafka Bus"}}
	]}`)

	metrics := &recordingMetrics{}
	g := newTestGenerator(t, mock, WithMetricsRecorder(metrics))
	ctx := context.Background()
	_, err := g.Store().Save(ctx, "arch-1", prior)
	require.NoError(t, err)

	res, err := g.Generate(ctx, Request{UserInput: "add a message bus", IncrementalMode: true, SessionID: "arch-1"})
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.True(t, res.Report.SafeMode)
	assert.Equal(t, incremental.ReasonSemanticLoss, res.Report.SafeModeReason)
	require.Len(t, res.Graph.Nodes, 7)
	for i, n := range prior.Nodes {
		assert.Equal(t, n.ID, res.Graph.Nodes[i].ID)
		assert.Equal(t, n.Data.Label, res.Graph.Nodes[i].Data.Label)
		assert.Equal(t, n.Position, res.Graph.Nodes[i].Position)
	}
	assert.Equal(t, []string{string(incremental.ReasonSemanticLoss)}, metrics.safeModes)
	assert.Len(t, metrics.sizes, 1)
	assert.Equal(t, []string{ModeIncremental}, metrics.generations)
}

func TestGenerate_IncrementalArchitectureKeepsItemsInFrame(t *testing.T) {
	prior := model.Graph{Nodes: []model.Node{
		{ID: "layer-0", Type: model.TypeLayerFrame, Position: model.Position{X: 60, Y: 100}, Width: 1160, Height: 260, Data: model.NodeData{Label: "Service Layer"}},
		{ID: "orders", Type: model.TypeFrame, ParentNode: "layer-0", Extent: model.ExtentParent, Position: model.Position{X: 60, Y: 100}, Width: 240, Height: 100, Data: model.NodeData{Label: "Orders"}},
		{ID: "billing", Type: model.TypeFrame, ParentNode: "layer-0", Extent: model.ExtentParent, Position: model.Position{X: 320, Y: 100}, Width: 240, Height: 100, Data: model.NodeData{Label: "Billing"}},
		{ID: "search", Type: model.TypeFrame, ParentNode: "layer-0", Extent: model.ExtentParent, Position: model.Position{X: 580, Y: 100}, Width: 240, Height: 100, Data: model.NodeData{Label: "Search"}},
		{ID: "auth", Type: model.TypeFrame, ParentNode: "layer-0", Extent: model.ExtentParent, Position: model.Position{X: 840, Y: 100}, Width: 240, Height: 100, Data: model.NodeData{Label: "Auth"}},
	}}
	mock := llm.NewMockClient(`{"nodes": [
		{"id": "layer-0", "type": "layerFrame", "position": {"x": 60, "y": 100}, "width": 1160, "height": 260, "data": {"label": "Service Layer"}},
		{"id": "orders", "type": "frame", "parentNode": "layer-0", "extent": "parent", "position": {"x": 60, "y": 100}, "data": {"label": "Orders"}},
		{"id": "billing", "type": "frame", "parentNode": "layer-0", "extent": "parent", "position": {"x": 320, "y": 100}, "data": {"label": "Billing"}},
		{"id": "search", "type": "frame", "parentNode": "layer-0", "extent": "parent", "position": {"x": 580, "y": 100}, "data": {"label": "Search"}},
		{"id": "auth", "type": "frame", "parentNode": "layer-0", "extent": "parent", "position": {"x": 840, "y": 100}, "data": {"label": "Auth"}},
		{"id": "notify", "type": "frame", "parentNode": "layer-0", "extent": "parent", "position": {"x": 60, "y": 100}, "data": {"label": "Notifications"}}
	]}`)

	g := newTestGenerator(t, mock)
	ctx := context.Background()
	_, err := g.Store().Save(ctx, "arch-2", prior)
	require.NoError(t, err)

	res, err := g.Generate(ctx, Request{
		UserInput:       "add a notification service",
		DiagramType:     model.DiagramArchitecture,
		IncrementalMode: true,
		SessionID:       "arch-2",
	})
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.Equal(t, []string{"notify"}, res.Report.Slotted)
	assert.Empty(t, model.Validate(res.Graph))

	stored, err := g.Store().Get(ctx, "arch-2")
	require.NoError(t, err)
	assert.Empty(t, model.Validate(stored))
	assert.Len(t, stored.Nodes, 6)
}

func TestGenerate_MissingSessionDowngrades(t *testing.T) {
	mock := llm.NewMockClient(oomFlow)
	g := newTestGenerator(t, mock)
	ctx := context.Background()

	res, err := g.Generate(ctx, Request{UserInput: "OOM investigation", IncrementalMode: true, SessionID: "gone-1"})
	require.NoError(t, err)
	assert.False(t, res.Incremental)
	assert.Nil(t, res.Report)
	assert.Equal(t, "gone-1", res.SessionID)

	stored, err := g.Store().Get(ctx, "gone-1")
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, len(res.Graph.Nodes))
}

func TestGenerate_TruncatedOutputRepaired(t *testing.T) {
	mock := llm.NewMockClient("").WithCompleteFunc(func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Content:      `{"nodes":[{"id":"a","data":{"label":"Start"}},{"id":"b","data":{"label":"Next"`,
			FinishReason: "length",
		}, nil
	})
	g := newTestGenerator(t, mock)

	res, err := g.Generate(context.Background(), Request{UserInput: "two steps"})
	require.NoError(t, err)
	assert.Equal(t, jsonrepair.StrategyTruncation, res.Strategy)
	assert.Len(t, res.Graph.Nodes, 2)
}

func TestGenerate_TemplateFallback(t *testing.T) {
	mock := llm.NewMockClient(`{"nodes": []}`)
	g := newTestGenerator(t, mock)

	res, err := g.Generate(context.Background(), Request{UserInput: "OOM", TemplateID: "oom-investigation"})
	require.NoError(t, err)
	assert.True(t, res.TemplateFallback)
	tpl, _ := LookupTemplate("oom-investigation")
	assert.Equal(t, tpl.Exemplar().Nodes, res.Graph.Nodes)

	_, err = g.Generate(context.Background(), Request{UserInput: "OOM"})
	var badResp *dferrors.BadResponseError
	require.ErrorAs(t, err, &badResp)
	assert.Equal(t, StageFallback, FailedStage(err))
}

func TestGenerate_EmptyArchitectureIsReturned(t *testing.T) {
	g := newTestGenerator(t, llm.NewMockClient(`{"layers": []}`))

	res, err := g.Generate(context.Background(), Request{
		UserInput:        "empty landscape",
		DiagramType:      model.DiagramArchitecture,
		ArchitectureType: model.ArchLayered,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Graph.Nodes)
	assert.False(t, res.TemplateFallback)
}

func TestGenerate_UnparseableOutput(t *testing.T) {
	g := newTestGenerator(t, llm.NewMockClient("I cannot draw that."))

	_, err := g.Generate(context.Background(), Request{UserInput: "something"})
	var parseErr *dferrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, StageParse, FailedStage(err))
}

func TestGenerate_Validation(t *testing.T) {
	mock := llm.NewMockClient(oomFlow)
	g := newTestGenerator(t, mock)

	tests := map[string]Request{
		"empty input":      {UserInput: "  "},
		"bad diagram type": {UserInput: "x", DiagramType: "sequence"},
		"bad arch type":    {UserInput: "x", ArchitectureType: "cosmic"},
		"unknown template": {UserInput: "x", TemplateID: "nope"},
		"bad session id":   {UserInput: "x", SessionID: "../etc"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), req)
			var cfgErr *dferrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
	assert.Zero(t, mock.CallCount())
}

func TestGenerate_NoProviderConfigured(t *testing.T) {
	g, err := NewGenerator(WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{UserInput: "anything"})
	var cfgErr *dferrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, StageResolveProvider, FailedStage(err))
}

func TestGenerate_ModelOverride(t *testing.T) {
	mock := llm.NewMockClient(oomFlow)
	g := newTestGenerator(t, mock)

	_, err := g.Generate(context.Background(), Request{
		UserInput: "OOM",
		Provider:  llm.ProviderConfig{Model: "bigger-model"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bigger-model", mock.LastCall().Model)
}

func TestGenerate_ProviderError(t *testing.T) {
	upstream := &dferrors.ProviderError{Provider: "mock", StatusCode: 503, Message: "overloaded"}
	g := newTestGenerator(t, llm.NewMockClient("").WithError(upstream))

	_, err := g.Generate(context.Background(), Request{UserInput: "OOM"})
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, StageCallModel, FailedStage(err))
}

const threeNodes = `{"nodes": [
	{"id": "a", "position": {"x": 0, "y": 0}, "data": {"label": "A"}},
	{"id": "b", "position": {"x": 0, "y": 200}, "data": {"label": "B"}},
	{"id": "c", "position": {"x": 0, "y": 400}, "data": {"label": "C"}}
], "edges": [
	{"id": "ab", "source": "a", "target": "b"},
	{"id": "bc", "source": "b", "target": "c"}
]}`

func TestGenerateStream_RevealOrder(t *testing.T) {
	third := len(threeNodes) / 3
	mock := llm.NewMockClient("").WithStreamChunks(threeNodes[:third], threeNodes[third:2*third], threeNodes[2*third:])
	g := newTestGenerator(t, mock)

	rec := &stream.Recorder{}
	res, err := g.GenerateStream(context.Background(), Request{UserInput: "abc"}, rec)
	require.NoError(t, err)
	require.Len(t, res.Graph.Nodes, 3)

	assert.Equal(t, []stream.Tag{
		stream.TagStart, stream.TagCall,
		stream.TagToken, stream.TagToken, stream.TagToken,
		stream.TagLayoutData, stream.TagResult,
		stream.TagNodeShow, stream.TagNodeShow, stream.TagNodeShow,
		stream.TagEdgeShow, stream.TagEdgeShow,
		stream.TagEnd,
	}, rec.Tags())

	events := rec.Events()
	assert.Equal(t, "nodes=3, edges=2", events[6].Payload)
	assert.Equal(t, []string{"a", "b", "c"}, []string{events[7].Payload, events[8].Payload, events[9].Payload})
	assert.Equal(t, []string{"ab", "bc"}, []string{events[10].Payload, events[11].Payload})
	assert.Equal(t, "done", events[12].Payload)

	var tokens strings.Builder
	for _, ev := range events[2:5] {
		tokens.WriteString(ev.Payload)
	}
	assert.Equal(t, threeNodes, tokens.String())
}

func TestGenerateStream_RetriesUnparseableStream(t *testing.T) {
	mock := llm.NewMockClient("").WithResponses("not json at all", threeNodes)
	g := newTestGenerator(t, mock)

	rec := &stream.Recorder{}
	res, err := g.GenerateStream(context.Background(), Request{UserInput: "abc"}, rec)
	require.NoError(t, err)
	assert.Len(t, res.Graph.Nodes, 3)
	assert.Equal(t, 2, mock.CallCount())

	tags := rec.Tags()
	assert.Equal(t, stream.TagEnd, tags[len(tags)-1])
	calls := 0
	for _, tag := range tags {
		if tag == stream.TagCall {
			calls++
		}
	}
	assert.Equal(t, 2, calls)
}

func TestGenerateStream_UpstreamErrorEndsWithError(t *testing.T) {
	mock := llm.NewMockClient("").
		WithStreamChunks(`{"nodes": [`).
		WithStreamError(errors.New("connection reset"))
	g := newTestGenerator(t, mock)

	rec := &stream.Recorder{}
	_, err := g.GenerateStream(context.Background(), Request{UserInput: "abc"}, rec)
	require.Error(t, err)

	tags := rec.Tags()
	assert.Equal(t, []stream.Tag{stream.TagStart, stream.TagCall, stream.TagToken, stream.TagError}, tags)
	assert.Contains(t, rec.Events()[3].Payload, "connection reset")
}

func TestGenerateStream_InvalidRequest(t *testing.T) {
	mock := llm.NewMockClient(threeNodes)
	g := newTestGenerator(t, mock)

	rec := &stream.Recorder{}
	_, err := g.GenerateStream(context.Background(), Request{}, rec)
	require.Error(t, err)
	assert.Equal(t, []stream.Tag{stream.TagStart, stream.TagError}, rec.Tags())
	assert.Zero(t, mock.CallCount())
}

func TestGenerateStream_Cancelled(t *testing.T) {
	mock := llm.NewMockClient(threeNodes)
	g := newTestGenerator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &stream.Recorder{}
	_, err := g.GenerateStream(ctx, Request{UserInput: "abc"}, rec)
	require.ErrorIs(t, err, context.Canceled)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestGenerateFromImage(t *testing.T) {
	mock := llm.NewMockClient(`{"nodes": [
		{"id": "a", "position": {"x": 100, "y": 100}, "data": {"label": "Login"}},
		{"id": "b", "position": {"x": 100, "y": 100}, "data": {"label": "Check"}},
		{"id": "c", "position": {"x": 100, "y": 100}, "data": {"label": "Done"}}
	], "edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "c"}]}`)
	g := newTestGenerator(t, mock)

	res, err := g.GenerateFromImage(context.Background(), ImageRequest{Image: pngHeader, Hint: "login flow", SessionID: "img-1"})
	require.NoError(t, err)
	require.Len(t, res.Graph.Nodes, 3)
	assert.Equal(t, "img-1", res.SessionID)

	seen := map[model.Position]bool{}
	for _, n := range res.Graph.Nodes {
		assert.False(t, seen[n.Position], "overlapping node %s", n.ID)
		seen[n.Position] = true
	}

	require.NotNil(t, mock.LastCall())
	assert.True(t, mock.LastCall().HasImages())
}

func TestGenerateFromImage_Invalid(t *testing.T) {
	g := newTestGenerator(t, llm.NewMockClient("{}"))

	for _, img := range [][]byte{nil, []byte("plain text")} {
		_, err := g.GenerateFromImage(context.Background(), ImageRequest{Image: img})
		var cfgErr *dferrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	}
}

func TestGenerateFromImage_NoNodes(t *testing.T) {
	g := newTestGenerator(t, llm.NewMockClient(`{"nodes": []}`))

	_, err := g.GenerateFromImage(context.Background(), ImageRequest{Image: pngHeader})
	var badResp *dferrors.BadResponseError
	require.ErrorAs(t, err, &badResp)
}

func TestGenerateExcalidraw(t *testing.T) {
	mock := llm.NewMockClient(`{"elements": [
		{"id": "r1", "type": "rectangle", "x": 10, "y": 20},
		{"id": "t1", "type": "text", "x": 20, "y": 30, "text": "Hello"}
	]}`)
	g := newTestGenerator(t, mock)

	res, err := g.GenerateExcalidraw(context.Background(), ExcalidrawRequest{UserInput: "a box"})
	require.NoError(t, err)
	assert.Equal(t, "excalidraw", res.Scene.Type)
	assert.Len(t, res.Scene.Elements, 2)
	assert.Equal(t, "mock", res.Provider)

	_, err = g.GenerateExcalidraw(context.Background(), ExcalidrawRequest{})
	var cfgErr *dferrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestTemplates(t *testing.T) {
	all := Templates()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	for _, tpl := range all {
		if !tpl.HasExemplar() {
			assert.Equal(t, model.DiagramArchitecture, tpl.Category, tpl.ID)
			assert.Empty(t, tpl.Exemplar().Nodes)
			continue
		}
		g := tpl.Exemplar()
		assert.Empty(t, model.Validate(g), tpl.ID)
		assert.NotEmpty(t, g.Mermaid, tpl.ID)
	}

	oom := templates["oom-investigation"].Exemplar()
	assert.GreaterOrEqual(t, len(oom.Nodes), 8)
	assert.Equal(t, model.TypeStartEvent, oom.Nodes[0].Type)
	assert.Equal(t, model.TypeEndEvent, oom.Nodes[len(oom.Nodes)-1].Type)
}

func TestCallTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, callTimeout(0, 10*time.Second))
	assert.Equal(t, 5*time.Second, callTimeout(5*time.Second, llm.DefaultTimeout))
	assert.Equal(t, 3*llm.DefaultTimeout, callTimeout(5*time.Second, 3*llm.DefaultTimeout))
}

func TestTruncatedFinish(t *testing.T) {
	for _, r := range []string{"length", "MAX_TOKENS", "max_output_tokens"} {
		assert.True(t, truncatedFinish(r), r)
	}
	assert.False(t, truncatedFinish("stop"))
}
