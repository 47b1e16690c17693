package incremental_test

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/incremental"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func newReconciler(logger *slog.Logger) *incremental.Reconciler {
	return incremental.New(incremental.WithLogger(logger), incremental.WithClock(fixedNow))
}

func node(id, typ, label string, x, y float64) model.Node {
	return model.Node{ID: id, Type: typ, Position: model.Position{X: x, Y: y}, Data: model.NodeData{Label: label}}
}

func priorChain() model.Graph {
	return model.Graph{
		Nodes: []model.Node{
			node("api-1", model.TypeAPI, "User API", 100, 100),
			node("service-1", model.TypeService, "Order Service", 400, 100),
			node("db-1", model.TypeDatabase, "Orders DB", 700, 250),
		},
		Edges: []model.Edge{
			{ID: "e0", Source: "api-1", Target: "service-1"},
			{ID: "e1", Source: "service-1", Target: "db-1"},
		},
	}
}

func TestContract(t *testing.T) {
	block := incremental.ConstraintBlock()
	for _, title := range []string{
		"DO NOT SIMPLIFY", "PRESERVE COMPLEXITY", "NO DELETION", "NO MODIFICATION",
		"NO MERGE", "NO REARRANGEMENT", "ONLY ADD",
	} {
		assert.Contains(t, block, title)
	}
	assert.True(t, strings.HasPrefix(block, "NON-NEGOTIABLE CONSTRAINTS:\n1. DO NOT SIMPLIFY"))

	rule, ok := incremental.RuleByKey(incremental.RuleNoDeletion)
	require.True(t, ok)
	assert.Equal(t, "NO DELETION", rule.Title)
	_, ok = incremental.RuleByKey("NOPE")
	assert.False(t, ok)
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		label    string
		expected []string
	}{
		{"Order Service", []string{"order"}},
		{"User API Gateway", []string{"user", "gateway"}},
		{"DB", nil},
		{"订单服务", []string{"订单"}},
		{"支付系统层", []string{"支付"}},
		{"Redis 缓存", []string{"redis", "缓存"}},
		{"ＯＲＤＥＲ", []string{"order"}},
		{"k8s on", []string{"k8s"}},
		{"单", nil},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := incremental.Keywords(tt.label)
			assert.Len(t, got, len(tt.expected))
			for _, k := range tt.expected {
				assert.True(t, got[k], "missing %q", k)
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	prior := priorChain()
	out, report := newReconciler(discardLogger()).Reconcile(prior, prior.Clone())

	assert.Equal(t, prior.Nodes, out.Nodes)
	assert.Equal(t, prior.Edges, out.Edges)
	assert.False(t, report.SafeMode)
	assert.Empty(t, report.Added)
	assert.InDelta(t, 1.0, report.Coverage, 0.0001)
}

func TestReconcile_AddCacheScenario(t *testing.T) {
	prior := priorChain()
	ai := model.Graph{
		Nodes: []model.Node{
			node("api-1", model.TypeAPI, "User Gateway", 100, 100),
			node("db-1", model.TypeDatabase, "Orders DB", 700, 250),
			node("cache-1700000000", model.TypeCache, "Order Cache", 550, 180),
		},
		Edges: []model.Edge{
			{ID: "e0", Source: "api-1", Target: "service-1"},
			{ID: "e-new", Source: "service-1", Target: "cache-1700000000"},
			{ID: "e-new2", Source: "cache-1700000000", Target: "db-1"},
		},
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	out, report := newReconciler(logger).Reconcile(prior, ai)

	assert.Contains(t, buf.String(), "AI deleted 1 nodes")
	assert.Equal(t, []string{"service-1"}, report.Restored)
	assert.False(t, report.SafeMode)
	assert.Equal(t, 1, report.LabelReverts)

	byID := map[string]model.Node{}
	for _, n := range out.Nodes {
		byID[n.ID] = n
	}
	require.Contains(t, byID, "service-1")
	assert.Equal(t, "User API", byID["api-1"].Data.Label)

	cache, ok := byID["cache-1700000000"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, cache.Position.X, 700.0+300)
	assert.GreaterOrEqual(t, cache.Position.Y, 100.0)
	assert.LessOrEqual(t, cache.Position.Y, 250.0)
	assert.Equal(t, []string{"cache-1700000000"}, report.Added)

	assert.Len(t, out.Edges, 4)
	assert.Equal(t, prior.Edges, out.Edges[:2])
	assert.Empty(t, model.Validate(out))
}

func TestReconcile_SemanticCoverageFallback(t *testing.T) {
	prior := model.Graph{Nodes: []model.Node{
		node("n1", "service", "Order Service", 0, 0),
		node("n2", "service", "Payment Service", 300, 0),
		node("n3", "service", "User Service", 600, 0),
		node("n4", "gateway", "Edge Gateway", 0, 300),
		node("n5", "database", "MySQL Cluster", 300, 300),
		node("n6", "cache", "Redis Cache", 600, 300),
	}}

	ai := model.Graph{Nodes: []model.Node{
		node("n1", "service", "Service A", 0, 0),
		node("n2", "service", "Service B", 300, 0),
		node("n3", "service", "User Service", 600, 0),
		node("n4", "gateway", "Edge Gateway", 0, 300),
		node("n5", "database", "MySQL Cluster", 300, 300),
		node("n6", "cache", "Redis Cache", 600, 300),
		node("n7", "queue", "Kafka Bus", 1200, 100),
	}}

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.True(t, report.SafeMode)
	assert.Equal(t, incremental.ReasonSemanticLoss, report.SafeModeReason)
	assert.ElementsMatch(t, []string{"n1", "n2"}, report.LostConcepts)

	require.Len(t, out.Nodes, 7)
	assert.Equal(t, prior.Nodes, out.Nodes[:6])
	assert.Equal(t, "n7", out.Nodes[6].ID)
}

func TestReconcile_LowCoverage(t *testing.T) {
	prior := model.Graph{Nodes: []model.Node{
		node("a", "service", "Order Billing Shipping Refund Audit", 0, 0),
	}}
	ai := model.Graph{Nodes: []model.Node{
		node("a", "service", "Order Notes", 0, 0),
		node("b", "service", "Search", 400, 0),
	}}

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.True(t, report.SafeMode)
	assert.Equal(t, incremental.ReasonLowCoverage, report.SafeModeReason)
	assert.InDelta(t, 0.2, report.Coverage, 0.0001)
	assert.Equal(t, prior.Nodes[0], out.Nodes[0])
	assert.Len(t, out.Nodes, 2)
}

func TestReconcile_ZeroNodeOutputReturnsOriginal(t *testing.T) {
	prior := priorChain()
	out, report := newReconciler(discardLogger()).Reconcile(prior, model.Graph{})

	assert.True(t, report.SafeMode)
	assert.Equal(t, prior.Nodes, out.Nodes)
	assert.Equal(t, prior.Edges, out.Edges)
	assert.Empty(t, report.Added)
}

func TestReconcile_AttributeReverts(t *testing.T) {
	prior := priorChain()
	ai := prior.Clone()
	ai.Nodes[0].Type = "gateway"
	ai.Nodes[1].Position.X += 3 // within tolerance
	ai.Nodes[2].Position.Y += 40

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.Equal(t, 1, report.TypeReverts)
	assert.Equal(t, 1, report.PositionReverts)
	assert.True(t, report.Relayout, "1 of 3 nodes exceeds the 30% relayout ratio")

	assert.Equal(t, model.TypeAPI, out.Nodes[0].Type)
	assert.InDelta(t, 403, out.Nodes[1].Position.X, 0.0001)
	assert.Equal(t, prior.Nodes[2].Position, out.Nodes[2].Position)
}

func TestReconcile_DuplicateIDs(t *testing.T) {
	prior := priorChain()
	ai := prior.Clone()
	ai.Nodes = append(ai.Nodes, node("db-1", model.TypeCache, "Orders Cache", 1200, 100))

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	require.Len(t, report.Renamed, 1)
	assert.Equal(t, incremental.Rename{From: "db-1", To: "db-1-dup-1700000000000"}, report.Renamed[0])
	assert.Equal(t, []string{"db-1-dup-1700000000000"}, report.Added)

	assert.Equal(t, prior.Nodes[2], out.Nodes[2], "first occurrence keeps the original attributes")
	assert.Empty(t, model.Validate(out))
}

func TestReconcile_OverlappingNewNodesAreShifted(t *testing.T) {
	prior := priorChain()
	ai := prior.Clone()
	ai.Nodes = append(ai.Nodes,
		node("new-1", model.TypeCache, "Orders Cache", 1000, 150),
		node("new-2", model.TypeQueue, "Orders Queue", 1010, 160),
	)

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.Equal(t, []string{"new-2"}, report.Shifted)
	assert.InDelta(t, 1000, out.Nodes[3].Position.X, 0.0001)
	assert.InDelta(t, 1310, out.Nodes[4].Position.X, 0.0001)
}

// fullLayer is a layer frame whose first row holds four items.
func fullLayer() model.Graph {
	g := model.Graph{Nodes: []model.Node{{
		ID: "layer-0", Type: model.TypeLayerFrame,
		Position: model.Position{X: 60, Y: 100},
		Width:    1160, Height: 260,
		Data:     model.NodeData{Label: "Application Layer"},
	}}}
	for i, label := range []string{"Order Service", "Billing Service", "Search Service", "Auth Service"} {
		g.Nodes = append(g.Nodes, model.Node{
			ID: fmt.Sprintf("item-%d", i), Type: model.TypeFrame,
			Position:   model.Position{X: 60 + float64(i)*260, Y: 100},
			Width:      240, Height: 100,
			ParentNode: "layer-0", Extent: model.ExtentParent,
			Data:       model.NodeData{Label: label},
		})
	}
	return g
}

func TestReconcile_NewLayerItemStaysInFrame(t *testing.T) {
	prior := fullLayer()
	require.Empty(t, model.Validate(prior))

	ai := prior.Clone()
	ai.Nodes = append(ai.Nodes, model.Node{
		ID: "new", Type: model.TypeFrame,
		Position:   model.Position{X: 60, Y: 100},
		ParentNode: "layer-0", Extent: model.ExtentParent,
		Data:       model.NodeData{Label: "Notification Service"},
	})

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.Empty(t, model.Validate(out))
	assert.Equal(t, []string{"new"}, report.Slotted)
	assert.Equal(t, []string{"layer-0"}, report.FramesGrown)
	assert.Empty(t, report.Shifted)

	byID := model.IndexNodes(out.Nodes)
	added := out.Nodes[byID["new"]]
	assert.Equal(t, model.Position{X: 60, Y: 220}, added.Position)
	frame := out.Nodes[byID["layer-0"]]
	assert.InDelta(t, 1160, frame.Width, 0.0001)
	assert.InDelta(t, 380, frame.Height, 0.0001)
	for i := range 4 {
		id := fmt.Sprintf("item-%d", i)
		assert.Equal(t, prior.Nodes[i+1].Position, out.Nodes[byID[id]].Position)
	}
}

func TestReconcile_NewLayerItemInFreeSpotIsKept(t *testing.T) {
	prior := fullLayer()
	prior.Nodes[0].Height = 380

	ai := prior.Clone()
	ai.Nodes = append(ai.Nodes, model.Node{
		ID: "new", Type: model.TypeFrame,
		Position:   model.Position{X: 320, Y: 220},
		Width:      240, Height: 100,
		ParentNode: "layer-0", Extent: model.ExtentParent,
		Data:       model.NodeData{Label: "Notification Service"},
	})

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.Empty(t, report.Slotted)
	assert.Empty(t, report.FramesGrown)
	assert.Equal(t, model.Position{X: 320, Y: 220}, out.Nodes[len(out.Nodes)-1].Position)
	assert.Empty(t, model.Validate(out))
}

func TestReconcile_SeveralNewLayerItems(t *testing.T) {
	prior := fullLayer()
	ai := prior.Clone()
	for i := range 6 {
		ai.Nodes = append(ai.Nodes, model.Node{
			ID: fmt.Sprintf("new-%d", i), Type: model.TypeFrame,
			Position:   model.Position{X: 2000, Y: 100},
			Width:      240, Height: 100,
			ParentNode: "layer-0", Extent: model.ExtentParent,
			Data:       model.NodeData{Label: fmt.Sprintf("Worker %d", i)},
		})
	}

	out, report := newReconciler(discardLogger()).Reconcile(prior, ai)
	assert.Len(t, report.Slotted, 6)
	assert.Empty(t, model.Validate(out))

	byID := model.IndexNodes(out.Nodes)
	assert.Equal(t, model.Position{X: 60, Y: 340}, out.Nodes[byID["new-4"]].Position)
	assert.InDelta(t, 500, out.Nodes[byID["layer-0"]].Height, 0.0001)
}

func TestReconcile_PlacementDisabled(t *testing.T) {
	opts := incremental.DefaultOptions()
	opts.EnforcePlacement = false
	r := incremental.New(incremental.WithOptions(opts), incremental.WithLogger(discardLogger()))

	prior := priorChain()
	ai := prior.Clone()
	ai.Nodes = append(ai.Nodes, node("new", model.TypeCache, "Orders Cache", 100, 600))

	out, report := r.Reconcile(prior, ai)
	assert.Empty(t, report.Placed)
	assert.Equal(t, model.Position{X: 100, Y: 600}, out.Nodes[3].Position)
}

func TestMergeEdges(t *testing.T) {
	prior := priorChain()
	nodes := append(model.CloneNodes(prior.Nodes), node("x", "default", "X", 0, 0))

	ai := []model.Edge{
		{ID: "e0", Source: "api-1", Target: "service-1", Label: "calls"},
		{ID: "e1", Source: "db-1", Target: "x"},
		{ID: "", Source: "x", Target: "api-1"},
		{ID: "e9", Source: "x", Target: "ghost"},
		{ID: "dup", Source: "db-1", Target: "x"},
	}

	var buf bytes.Buffer
	r := incremental.New(incremental.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	merged, report := r.MergeEdges(prior.Edges, ai, nodes)

	require.Len(t, merged, 4)
	assert.Equal(t, prior.Edges[0], merged[0], "original label wins")
	assert.Equal(t, model.Edge{ID: "e-db-1-x", Source: "db-1", Target: "x"}, merged[2], "id collision renamed")
	assert.Equal(t, "e-x-api-1", merged[3].ID)
	assert.Equal(t, incremental.EdgeReport{Added: 3, LabelConflicts: 1, Dropped: 1}, report)
	assert.Contains(t, buf.String(), "AI changed edge label")
}
