package incremental

import (
	"fmt"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// EdgeReport describes an edge merge.
type EdgeReport struct {
	Added          int
	LabelConflicts int
	Dropped        int
}

// MergeEdges keeps every original edge and appends model edges whose
// (source, target) pair is new. When the model relabels an existing pair the
// original label wins. Edges whose endpoints are not in nodes are dropped.
func (r *Reconciler) MergeEdges(original, ai []model.Edge, nodes []model.Node) ([]model.Edge, EdgeReport) {
	var report EdgeReport

	merged := make([]model.Edge, 0, len(original)+len(ai))
	merged = append(merged, original...)

	bySignature := make(map[model.Signature]model.Edge, len(merged))
	ids := make(map[string]bool, len(merged))
	for _, e := range merged {
		if _, ok := bySignature[e.Signature()]; !ok {
			bySignature[e.Signature()] = e
		}
		ids[e.ID] = true
	}

	for _, e := range ai {
		sig := e.Signature()
		if existing, ok := bySignature[sig]; ok {
			if e.Label != existing.Label {
				report.LabelConflicts++
				r.logger.Warn("AI changed edge label, keeping original",
					"rule", RuleNoModification,
					"source", sig.Source, "target", sig.Target,
					"label", existing.Label, "ai_label", e.Label)
			}
			continue
		}

		id := e.ID
		if id == "" || ids[id] {
			id = fmt.Sprintf("e-%s-%s", e.Source, e.Target)
		}
		for n := 2; ids[id]; n++ {
			id = fmt.Sprintf("e-%s-%s-%d", e.Source, e.Target, n)
		}
		ids[id] = true

		e.ID = id
		bySignature[sig] = e
		merged = append(merged, e)
		report.Added++
	}

	kept, dropped := model.DropDanglingEdges(nodes, merged)
	for _, e := range dropped {
		r.logger.Warn("dropping edge with missing endpoint",
			"id", e.ID, "source", e.Source, "target", e.Target)
	}
	report.Dropped = len(dropped)
	return kept, report
}
