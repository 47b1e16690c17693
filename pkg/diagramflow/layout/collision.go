package layout

import (
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// halfSizes maps a shape or node type to half its rendered width and height.
var halfSizes = map[string][2]float64{
	"circle":             {40, 40},
	"start-event":        {30, 30},
	"end-event":          {30, 30},
	"intermediate-event": {30, 30},
	"diamond":            {70, 70},
	"decision":           {70, 70},
	"hexagon":            {80, 45},
	"cylinder":           {60, 50},
	"database":           {60, 50},
	"cloud":              {100, 60},
	"star":               {50, 50},
	"triangle":           {60, 55},
	"document":           {90, 50},
}

var defaultHalfSize = [2]float64{90, 40}

// HalfSize returns half the width and height used for collision checks.
// Explicit node dimensions take precedence over the shape table.
func HalfSize(n model.Node) (float64, float64) {
	if n.Width > 0 && n.Height > 0 {
		return n.Width / 2, n.Height / 2
	}
	if hs, ok := halfSizes[n.Data.Shape]; ok {
		return hs[0], hs[1]
	}
	if hs, ok := halfSizes[n.Type]; ok {
		return hs[0], hs[1]
	}
	return defaultHalfSize[0], defaultHalfSize[1]
}

type box struct {
	x1, y1, x2, y2 float64
}

func boxOf(n model.Node) box {
	hw, hh := HalfSize(n)
	return box{x1: n.Position.X, y1: n.Position.Y, x2: n.Position.X + 2*hw, y2: n.Position.Y + 2*hh}
}

func (b box) overlaps(o box, gap float64) bool {
	return b.x1 < o.x2+gap && b.x2+gap > o.x1 && b.y1 < o.y2+gap && b.y2+gap > o.y1
}

// CollisionReport summarizes a ResolveCollisions pass.
type CollisionReport struct {
	Moved      int
	Unresolved int
}

// ResolveCollisions places nodes greedily in order: a node overlapping any
// already placed box (padded by MinGap) is pushed right past the rightmost
// conflict, wrapping to the next row at the canvas edge. Nodes inside frames
// are left alone since their coordinates are relative. The input is not
// modified.
func (n *Normalizer) ResolveCollisions(nodes []model.Node) ([]model.Node, CollisionReport) {
	out := model.CloneNodes(nodes)
	var report CollisionReport
	s := n.spec
	placed := make([]box, 0, len(out))

	for i := range out {
		node := &out[i]
		if node.ParentNode != "" {
			continue
		}
		start := node.Position

		resolved := false
		for iter := 0; iter < s.MaxIterations; iter++ {
			b := boxOf(*node)
			rightmost, conflict := 0.0, false
			for _, p := range placed {
				if b.overlaps(p, s.MinGap) {
					if !conflict || p.x2 > rightmost {
						rightmost = p.x2
					}
					conflict = true
				}
			}
			if !conflict {
				resolved = true
				break
			}

			hw, _ := HalfSize(*node)
			node.Position.X = rightmost + s.MinGap
			if node.Position.X+2*hw > s.CanvasWidth-s.CanvasMargin {
				node.Position.X = s.CanvasMargin
				node.Position.Y += s.WrapY
			}
		}

		if !resolved {
			report.Unresolved++
			n.logger.Warn("collision unresolved after max iterations",
				"node_id", node.ID, "iterations", s.MaxIterations)
		}
		if node.Position != start {
			report.Moved++
		}
		placed = append(placed, boxOf(*node))
	}
	return out, report
}
