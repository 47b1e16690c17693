package diagramflow

import (
	"sort"
	"strconv"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/mermaid"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

// Template is a built-in diagram template. Its category decides the
// diagram type when a request names the template but no type, and flow
// templates carry an exemplar graph used when the model returns nothing.
type Template struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Category         model.DiagramType      `json:"category"`
	ArchitectureType model.ArchitectureType `json:"architecture_type,omitempty"`
	Description      string                 `json:"description"`

	steps []step
	links [][3]string
}

// step is one exemplar node on a column/row grid.
type step struct {
	id, typ, shape, label string
	col, row              int
}

var templates = map[string]Template{
	"oom-investigation": {
		ID:          "oom-investigation",
		Name:        "OOM investigation",
		Category:    model.DiagramFlow,
		Description: "Troubleshooting an out-of-memory failure from alert to fix.",
		steps: []step{
			{"start", model.TypeStartEvent, model.ShapeStartEvent, "OOM alert received", 1, 0},
			{"collect", model.TypeTask, model.ShapeTask, "Collect heap dump and GC logs", 1, 1},
			{"leak", model.TypeDecision, model.ShapeDiamond, "Heap keeps growing?", 1, 2},
			{"analyze", model.TypeTask, model.ShapeTask, "Analyze dominator tree", 0, 3},
			{"fix-leak", model.TypeTask, model.ShapeTask, "Fix leaking references", 0, 4},
			{"spike", model.TypeDecision, model.ShapeDiamond, "Traffic spike?", 2, 3},
			{"scale", model.TypeTask, model.ShapeTask, "Scale out instances", 2, 4},
			{"tune", model.TypeTask, model.ShapeTask, "Tune heap and container limits", 3, 4},
			{"verify", model.TypeTask, model.ShapeTask, "Load test and verify", 1, 5},
			{"end", model.TypeEndEvent, model.ShapeEndEvent, "Incident closed", 1, 6},
		},
		links: [][3]string{
			{"start", "collect", ""},
			{"collect", "leak", ""},
			{"leak", "analyze", "yes"},
			{"leak", "spike", "no"},
			{"analyze", "fix-leak", ""},
			{"spike", "scale", "yes"},
			{"spike", "tune", "no"},
			{"fix-leak", "verify", ""},
			{"scale", "verify", ""},
			{"tune", "verify", ""},
			{"verify", "end", ""},
		},
	},
	"user-login": {
		ID:          "user-login",
		Name:        "User login",
		Category:    model.DiagramFlow,
		Description: "Credential login with lockout and MFA.",
		steps: []step{
			{"start", model.TypeStartEvent, model.ShapeStartEvent, "Open login page", 1, 0},
			{"submit", model.TypeTask, model.ShapeTask, "Submit credentials", 1, 1},
			{"valid", model.TypeDecision, model.ShapeDiamond, "Credentials valid?", 1, 2},
			{"fail", model.TypeTask, model.ShapeTask, "Increment failed attempts", 0, 3},
			{"locked", model.TypeDecision, model.ShapeDiamond, "Account locked?", 0, 4},
			{"mfa", model.TypeTask, model.ShapeTask, "Verify MFA code", 2, 3},
			{"session", model.TypeTask, model.ShapeTask, "Issue session token", 2, 4},
			{"end", model.TypeEndEvent, model.ShapeEndEvent, "Logged in", 2, 5},
		},
		links: [][3]string{
			{"start", "submit", ""},
			{"submit", "valid", ""},
			{"valid", "fail", "no"},
			{"valid", "mfa", "yes"},
			{"fail", "locked", ""},
			{"locked", "submit", "no"},
			{"mfa", "session", ""},
			{"session", "end", ""},
		},
	},
	"ci-cd-pipeline": {
		ID:          "ci-cd-pipeline",
		Name:        "CI/CD pipeline",
		Category:    model.DiagramFlow,
		Description: "Build, test and deploy with a rollback path.",
		steps: []step{
			{"start", model.TypeStartEvent, model.ShapeStartEvent, "Push to main", 1, 0},
			{"build", model.TypeTask, model.ShapeTask, "Build and lint", 1, 1},
			{"test", model.TypeTask, model.ShapeTask, "Run test suite", 1, 2},
			{"green", model.TypeDecision, model.ShapeDiamond, "Tests pass?", 1, 3},
			{"notify", model.TypeTask, model.ShapeTask, "Notify author", 0, 4},
			{"deploy", model.TypeTask, model.ShapeTask, "Deploy to staging", 2, 4},
			{"healthy", model.TypeDecision, model.ShapeDiamond, "Health checks pass?", 2, 5},
			{"rollback", model.TypeTask, model.ShapeTask, "Roll back release", 3, 6},
			{"promote", model.TypeTask, model.ShapeTask, "Promote to production", 1, 6},
			{"end", model.TypeEndEvent, model.ShapeEndEvent, "Released", 1, 7},
		},
		links: [][3]string{
			{"start", "build", ""},
			{"build", "test", ""},
			{"test", "green", ""},
			{"green", "notify", "no"},
			{"green", "deploy", "yes"},
			{"deploy", "healthy", ""},
			{"healthy", "promote", "yes"},
			{"healthy", "rollback", "no"},
			{"promote", "end", ""},
		},
	},
	"microservices": {
		ID:               "microservices",
		Name:             "Microservices",
		Category:         model.DiagramArchitecture,
		ArchitectureType: model.ArchTechnical,
		Description:      "Gateway, services, messaging and data stores.",
	},
	"layered-web": {
		ID:               "layered-web",
		Name:             "Layered web application",
		Category:         model.DiagramArchitecture,
		ArchitectureType: model.ArchLayered,
		Description:      "Classic presentation, business and data tiers.",
	},
}

// Templates returns the built-in templates ordered by id.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupTemplate returns the template with the given id.
func LookupTemplate(id string) (Template, bool) {
	t, ok := templates[id]
	return t, ok
}

// HasExemplar reports whether the template carries a fallback graph.
func (t Template) HasExemplar() bool {
	return len(t.steps) > 0
}

// Exemplar builds the template's fallback graph, or an empty graph.
func (t Template) Exemplar() model.Graph {
	const (
		originX = 120
		originY = 80
		stepX   = 260
		stepY   = 140
	)

	g := model.Graph{
		Nodes: make([]model.Node, 0, len(t.steps)),
		Edges: make([]model.Edge, 0, len(t.links)),
	}
	for _, s := range t.steps {
		g.Nodes = append(g.Nodes, model.Node{
			ID:       s.id,
			Type:     s.typ,
			Position: model.Position{X: originX + float64(s.col)*stepX, Y: originY + float64(s.row)*stepY},
			Data:     model.NodeData{Label: s.label, Shape: s.shape},
		})
	}
	for i, l := range t.links {
		g.Edges = append(g.Edges, model.Edge{
			ID:     "e" + strconv.Itoa(i),
			Source: l[0],
			Target: l[1],
			Label:  l[2],
		})
	}
	if len(g.Nodes) > 0 {
		g.Mermaid = mermaid.Render(g)
	}
	return g
}
