package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/layout"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Options tunes the reconciliation thresholds.
type Options struct {
	// PositionTolerance is the Manhattan distance beyond which a moved
	// existing node is put back.
	PositionTolerance float64

	// SignificantDrift is the Manhattan distance at which a revert is
	// logged as a warning rather than at debug level.
	SignificantDrift float64

	// RelayoutRatio is the share of existing nodes whose position reverts
	// mark the whole canvas as re-laid out.
	RelayoutRatio float64

	// OverlapDistance and OverlapShift control how new nodes that land on
	// top of another node are moved right.
	OverlapDistance float64
	OverlapShift    float64

	// CoverageThreshold is the minimum share of existing keywords the
	// model output must still mention before safe mode is used.
	CoverageThreshold float64

	// EnforcePlacement moves new top-level nodes into the free region to
	// the right of the existing canvas.
	EnforcePlacement bool

	// SafeOffsetX is the distance from the rightmost existing node to the
	// free region.
	SafeOffsetX float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		PositionTolerance: 5,
		SignificantDrift:  20,
		RelayoutRatio:     0.3,
		OverlapDistance:   100,
		OverlapShift:      300,
		CoverageThreshold: 0.8,
		EnforcePlacement:  true,
		SafeOffsetX:       300,
	}
}

// maxOverlapShifts bounds how often one new node is pushed right.
const maxOverlapShifts = 20

// Reconciler enforces the edit contract on model output.
//
// Every step is best effort: violations are repaired and logged, never
// returned as errors.
type Reconciler struct {
	opts   Options
	spec   layout.LayoutSpec
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithOptions replaces the thresholds.
func WithOptions(opts Options) Option {
	return func(r *Reconciler) {
		r.opts = opts
	}
}

// WithLogger sets the logger for repair warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLayoutSpec sets the frame geometry new layer children are slotted
// into.
func WithLayoutSpec(spec layout.LayoutSpec) Option {
	return func(r *Reconciler) {
		r.spec = spec
	}
}

// WithClock sets the time source used for duplicate-id suffixes.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reconciler with DefaultOptions.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		opts:   DefaultOptions(),
		spec:   layout.DefaultSpec(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rename records a duplicate id that was given a new one.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Report describes what reconciliation repaired.
type Report struct {
	Restored        []string `json:"restored,omitempty"`
	LabelReverts    int      `json:"label_reverts"`
	TypeReverts     int      `json:"type_reverts"`
	PositionReverts int      `json:"position_reverts"`
	Relayout        bool     `json:"relayout"`
	Renamed         []Rename `json:"renamed,omitempty"`
	Placed          []string `json:"placed,omitempty"`
	Shifted         []string `json:"shifted,omitempty"`
	Slotted         []string `json:"slotted,omitempty"`
	FramesGrown     []string `json:"frames_grown,omitempty"`
	LostConcepts    []string `json:"lost_concepts,omitempty"`
	Coverage        float64  `json:"coverage"`
	SafeMode        bool     `json:"safe_mode"`
	SafeModeReason  string   `json:"safe_mode_reason,omitempty"`
	Added           []string `json:"added,omitempty"`

	EdgesAdded         int `json:"edges_added"`
	EdgeLabelConflicts int `json:"edge_label_conflicts"`
	EdgesDropped       int `json:"edges_dropped"`
}

// Safe-mode reasons.
const (
	ReasonSemanticLoss = "semantic_loss"
	ReasonLowCoverage  = "low_coverage"
)

// Reconcile validates the model's nodes against the original canvas and
// merges edges. The result always contains every original node.
func (r *Reconciler) Reconcile(original, ai model.Graph) (model.Graph, Report) {
	nodes, report := r.ValidateNodes(original.Nodes, ai.Nodes)
	edges, edgeReport := r.MergeEdges(original.Edges, ai.Edges, nodes)
	report.EdgesAdded = edgeReport.Added
	report.EdgeLabelConflicts = edgeReport.LabelConflicts
	report.EdgesDropped = edgeReport.Dropped
	return model.Graph{Nodes: nodes, Edges: edges}, report
}

// ValidateNodes applies deletion repair, attribute preservation, id
// de-duplication, placement of new nodes and the semantic coverage check.
func (r *Reconciler) ValidateNodes(original, ai []model.Node) ([]model.Node, Report) {
	var report Report
	origIndex := model.IndexNodes(original)
	aiReturned := model.CloneNodes(ai)
	nodes := model.CloneNodes(ai)
	if nodes == nil {
		nodes = []model.Node{}
	}

	// 1. deletion repair
	aiIDs := model.NodeIDs(nodes)
	for _, o := range original {
		if !aiIDs[o.ID] {
			nodes = append(nodes, o.Clone())
			aiIDs[o.ID] = true
			report.Restored = append(report.Restored, o.ID)
		}
	}
	if len(report.Restored) > 0 {
		r.logger.Warn(fmt.Sprintf("AI deleted %d nodes", len(report.Restored)),
			"rule", RuleNoDeletion, "restored", report.Restored)
	}

	// 2. attribute preservation, first occurrence of each id only
	seen := make(map[string]bool, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		oi, isOriginal := origIndex[n.ID]
		if !isOriginal || seen[n.ID] {
			seen[n.ID] = true
			continue
		}
		seen[n.ID] = true
		r.preserve(n, original[oi], &report)
	}
	if len(original) > 0 && float64(report.PositionReverts) > r.opts.RelayoutRatio*float64(len(original)) {
		report.Relayout = true
		r.logger.Warn("AI re-laid out the canvas",
			"rule", RuleNoRearrangement,
			"position_reverts", report.PositionReverts,
			"original_nodes", len(original))
	}

	// 3. id de-duplication
	stamp := r.now().UnixMilli()
	ids := make(map[string]bool, len(nodes))
	for i := range nodes {
		id := nodes[i].ID
		if !ids[id] {
			ids[id] = true
			continue
		}
		renamed := fmt.Sprintf("%s-dup-%d", id, stamp)
		for n := 2; ids[renamed]; n++ {
			renamed = fmt.Sprintf("%s-dup-%d-%d", id, stamp, n)
		}
		ids[renamed] = true
		nodes[i].ID = renamed
		report.Renamed = append(report.Renamed, Rename{From: id, To: renamed})
		r.logger.Warn("renamed duplicate node id", "rule", RuleNoMerge, "id", id, "renamed", renamed)
	}

	// 4. placement and overlap resolution of new nodes
	r.placeNew(nodes, original, origIndex, &report)

	// 5. semantic coverage against what the model actually returned
	origKeywords := keywordUnion(original)
	aiKeywords := keywordUnion(aiReturned)
	for _, o := range original {
		kw := Keywords(o.Data.Label)
		if len(kw) > 0 && disjoint(kw, aiKeywords) {
			report.LostConcepts = append(report.LostConcepts, o.ID)
		}
	}
	report.Coverage = coverage(origKeywords, aiKeywords)

	switch {
	case len(report.LostConcepts) > 0:
		report.SafeMode, report.SafeModeReason = true, ReasonSemanticLoss
	case report.Coverage < r.opts.CoverageThreshold:
		report.SafeMode, report.SafeModeReason = true, ReasonLowCoverage
	}
	if report.SafeMode {
		r.logger.Warn("semantic loss detected, keeping original nodes",
			"rule", RulePreserveComplexity,
			"reason", report.SafeModeReason,
			"lost", report.LostConcepts,
			"coverage", report.Coverage)
		nodes = safeMerge(original, nodes, renamedSet(report.Renamed))
	}

	// 6. new layer children go into free slots of their frame
	r.fitChildren(nodes, origIndex, &report)

	// 7. added-node check
	for _, n := range nodes {
		if _, ok := origIndex[n.ID]; !ok {
			report.Added = append(report.Added, n.ID)
		}
	}
	if len(report.Added) == 0 {
		r.logger.Warn("AI added no nodes", "rule", RuleOnlyAdd, "original_nodes", len(original))
	}

	return nodes, report
}

// preserve reverts label, type and position drift of an existing node.
func (r *Reconciler) preserve(n *model.Node, o model.Node, report *Report) {
	if n.Data.Label != o.Data.Label {
		r.logger.Warn("reverted node label", "rule", RuleNoModification,
			"id", n.ID, "ai_label", n.Data.Label, "label", o.Data.Label)
		n.Data.Label = o.Data.Label
		report.LabelReverts++
	}
	if n.Type != o.Type {
		r.logger.Warn("reverted node type", "rule", RuleNoModification,
			"id", n.ID, "ai_type", n.Type, "type", o.Type)
		n.Type = o.Type
		report.TypeReverts++
	}

	// frame structure is not part of the model's edit surface
	n.ParentNode, n.Extent, n.Draggable = o.ParentNode, o.Extent, o.Clone().Draggable
	if o.Width > 0 || o.Height > 0 {
		n.Width, n.Height = o.Width, o.Height
	}

	drift := math.Abs(n.Position.X-o.Position.X) + math.Abs(n.Position.Y-o.Position.Y)
	if drift > r.opts.PositionTolerance {
		level := slog.LevelDebug
		if drift >= r.opts.SignificantDrift {
			level = slog.LevelWarn
		}
		r.logger.Log(context.Background(), level, "reverted node position",
			"rule", RuleNoRearrangement, "id", n.ID, "drift", drift)
		n.Position = o.Position
		report.PositionReverts++
	}
}

// placeNew moves new nodes into the free region right of the existing
// canvas and pushes them off any node they land on. Existing nodes never move.
func (r *Reconciler) placeNew(nodes, original []model.Node, origIndex map[string]int, report *Report) {
	bounds, hasBounds := model.NodeBounds(original)
	safeX := bounds.MaxX + r.opts.SafeOffsetX

	var processed []model.Node
	for _, n := range nodes {
		if _, ok := origIndex[n.ID]; ok {
			processed = append(processed, n)
		}
	}

	for i := range nodes {
		n := &nodes[i]
		if _, ok := origIndex[n.ID]; ok {
			continue
		}

		if r.opts.EnforcePlacement && hasBounds && n.ParentNode == "" && n.Position.X < safeX {
			n.Position.X = safeX
			n.Position.Y = min(max(n.Position.Y, bounds.MinY), bounds.MaxY)
			report.Placed = append(report.Placed, n.ID)
		}

		shifted := false
		for k := 0; k < maxOverlapShifts && n.ParentNode == "" && r.overlapsAny(*n, processed); k++ {
			n.Position.X += r.opts.OverlapShift
			shifted = true
		}
		if shifted {
			report.Shifted = append(report.Shifted, n.ID)
		}
		processed = append(processed, *n)
	}

	if len(report.Placed) > 0 {
		r.logger.Info("placed new nodes in free region",
			"rule", RuleNoRearrangement, "nodes", report.Placed, "x", safeX)
	}
}

func (r *Reconciler) overlapsAny(n model.Node, others []model.Node) bool {
	for _, o := range others {
		if o.ParentNode != n.ParentNode {
			continue
		}
		if math.Hypot(n.Position.X-o.Position.X, n.Position.Y-o.Position.Y) < r.opts.OverlapDistance {
			return true
		}
	}
	return false
}

// safeMerge keeps every original node verbatim and appends only nodes the
// model genuinely added. Renamed duplicates of existing ids are dropped.
func safeMerge(original, nodes []model.Node, renamed map[string]bool) []model.Node {
	origIDs := model.NodeIDs(original)
	out := model.CloneNodes(original)
	if out == nil {
		out = []model.Node{}
	}
	for _, n := range nodes {
		if origIDs[n.ID] || renamed[n.ID] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func renamedSet(renames []Rename) map[string]bool {
	out := make(map[string]bool, len(renames))
	for _, rn := range renames {
		out[rn.To] = true
	}
	return out
}
