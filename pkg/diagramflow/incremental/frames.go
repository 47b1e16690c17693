package incremental

import (
	"math"
	"slices"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// maxFrameSlots bounds the slot search in one frame.
const maxFrameSlots = 1000

type box struct{ x, y, w, h float64 }

func (b box) overlaps(o box) bool {
	return b.x < o.x+o.w && o.x < b.x+b.w && b.y < o.y+o.h && o.y < b.y+b.h
}

// fitChildren moves each new child of a layer frame that leaves the frame or
// covers a sibling into the first free item slot of that frame, then grows
// the frame to hold it. Existing nodes keep their positions.
func (r *Reconciler) fitChildren(nodes []model.Node, origIndex map[string]int, report *Report) {
	frames := make(map[string]int)
	for i, n := range nodes {
		if n.Type == model.TypeLayerFrame {
			if _, dup := frames[n.ID]; !dup {
				frames[n.ID] = i
			}
		}
	}

	// children already settled in each frame, existing ones first
	placed := make(map[string][]box)
	var pending []int
	for i, n := range nodes {
		if _, ok := frames[n.ParentNode]; !ok || n.ParentNode == "" {
			continue
		}
		if _, existing := origIndex[n.ID]; existing {
			placed[n.ParentNode] = append(placed[n.ParentNode], r.boxOf(n))
			continue
		}
		pending = append(pending, i)
	}

	for _, i := range pending {
		n := &nodes[i]
		frame := &nodes[frames[n.ParentNode]]
		b := r.boxOf(*n)
		if r.inside(b, *frame) && !overlapsBox(b, placed[frame.ID]) {
			placed[frame.ID] = append(placed[frame.ID], b)
			continue
		}

		b = r.freeSlot(b, *frame, placed[frame.ID])
		n.Position = model.Position{X: b.x, Y: b.y}
		placed[frame.ID] = append(placed[frame.ID], b)
		report.Slotted = append(report.Slotted, n.ID)

		if r.grow(frame, b) && !slices.Contains(report.FramesGrown, frame.ID) {
			report.FramesGrown = append(report.FramesGrown, frame.ID)
		}
	}

	if len(report.Slotted) > 0 {
		r.logger.Info("placed new layer items in free frame slots",
			"rule", RuleNoRearrangement, "nodes", report.Slotted, "frames_grown", report.FramesGrown)
	}
}

// boxOf is the node's box relative to its parent. Unsized nodes take the
// item size.
func (r *Reconciler) boxOf(n model.Node) box {
	w, h := n.Width, n.Height
	if w <= 0 {
		w = r.spec.ItemWidth
	}
	if h <= 0 {
		h = r.spec.ItemHeight
	}
	return box{x: n.Position.X, y: n.Position.Y, w: w, h: h}
}

func (r *Reconciler) inside(b box, frame model.Node) bool {
	if b.x < 0 || b.y < 0 {
		return false
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return true
	}
	return b.x+b.w <= frame.Width && b.y+b.h <= frame.Height
}

// frameColumns is how many item columns fit across the frame's width.
func (r *Reconciler) frameColumns(frame model.Node) int {
	if frame.Width <= 0 {
		return 1
	}
	inner := frame.Width - 2*r.spec.Padding + r.spec.Gap
	return max(int(math.Floor(inner/(r.spec.ItemWidth+r.spec.Gap))), 1)
}

func (r *Reconciler) freeSlot(b box, frame model.Node, taken []box) box {
	cols := r.frameColumns(frame)
	for i := 0; i < maxFrameSlots; i++ {
		p := r.spec.ItemPosition(i, cols)
		slot := box{x: p.X, y: p.Y, w: b.w, h: b.h}
		if !overlapsBox(slot, taken) {
			return slot
		}
	}
	p := r.spec.ItemPosition(maxFrameSlots, cols)
	return box{x: p.X, y: p.Y, w: b.w, h: b.h}
}

// grow extends the frame so b fits with the usual bottom and right padding.
func (r *Reconciler) grow(frame *model.Node, b box) bool {
	if frame.Width <= 0 || frame.Height <= 0 {
		return false
	}
	grown := false
	if need := b.x + b.w + r.spec.Padding; need > frame.Width {
		frame.Width = need
		grown = true
	}
	if need := b.y + b.h + r.spec.Padding; need > frame.Height {
		frame.Height = need
		grown = true
	}
	return grown
}

func overlapsBox(b box, others []box) bool {
	for _, o := range others {
		if b.overlaps(o) {
			return true
		}
	}
	return false
}
