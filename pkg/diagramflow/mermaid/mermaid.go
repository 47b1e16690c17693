// Package mermaid converts between Mermaid flowchart text and the canonical
// graph model.
//
// Ingress understands node declarations such as id["label"], id[("label")]
// and id[["label"]], and edges of the form a --> b or a -->|label| b.
// Egress emits "graph TD" with the inverse shape rules.
package mermaid

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

const arrow = "-->"

// bracket pairs in match order; longer openers first.
var brackets = []struct {
	open, close string
	shape       string
	typ         string
}{
	{"[(", ")]", "cylinder", model.TypeDatabase},
	{"[[", "]]", "rectangle", model.TypeService},
	{"((", "))", "circle", ""},
	{"{{", "}}", "hexagon", ""},
	{"{", "}", "diamond", model.TypeDecision},
	{"(", ")", "rounded-rectangle", ""},
	{"[", "]", "rectangle", ""},
}

// keywordTypes infers a node type from its label when the shape does not.
var keywordTypes = []struct {
	keyword string
	typ     string
}{
	{"gateway", model.TypeGateway},
	{"api", model.TypeAPI},
	{"cache", model.TypeCache},
	{"redis", model.TypeCache},
	{"queue", model.TypeQueue},
	{"kafka", model.TypeQueue},
	{"storage", model.TypeStorage},
	{"client", model.TypeClient},
	{"database", model.TypeDatabase},
}

// Parse reads Mermaid flowchart text into a graph. Nodes appear in order of
// first mention; positions are left at the origin for the caller to lay out.
// Unknown lines are ignored.
func Parse(src string) model.Graph {
	p := &parser{index: make(map[string]int)}
	for _, line := range strings.Split(src, "\n") {
		p.line(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";")))
	}
	return model.Graph{Nodes: p.nodes, Edges: p.edges, Mermaid: strings.TrimSpace(src)}
}

type parser struct {
	nodes []model.Node
	edges []model.Edge
	index map[string]int
}

func (p *parser) line(line string) {
	if line == "" || skipLine(line) {
		return
	}

	if !strings.Contains(line, arrow) {
		p.node(line)
		return
	}

	// a --> b -->|x| c is a chain of edges
	rest := line
	src, ok := p.node(before(rest, arrow))
	if !ok {
		return
	}
	rest = after(rest, arrow)
	for {
		label := ""
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "|") {
			end := strings.Index(rest[1:], "|")
			if end < 0 {
				return
			}
			label = strings.TrimSpace(trimQuotes(rest[1 : end+1]))
			rest = rest[end+2:]
		}

		targetText := rest
		more := strings.Contains(rest, arrow)
		if more {
			targetText = before(rest, arrow)
		}
		tgt, ok := p.node(targetText)
		if !ok {
			return
		}
		p.edges = append(p.edges, model.Edge{
			ID:     fmt.Sprintf("e%d", len(p.edges)),
			Source: src,
			Target: tgt,
			Label:  label,
		})
		if !more {
			return
		}
		src = tgt
		rest = after(rest, arrow)
	}
}

// node parses a node token, registers it, and returns its id.
func (p *parser) node(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	id, label, shape, typ := token, "", "", ""
	if i := strings.IndexAny(token, "[({"); i > 0 {
		id = strings.TrimSpace(token[:i])
		body := token[i:]
		for _, b := range brackets {
			if strings.HasPrefix(body, b.open) && strings.HasSuffix(body, b.close) &&
				len(body) >= len(b.open)+len(b.close) {
				label = trimQuotes(strings.TrimSpace(body[len(b.open) : len(body)-len(b.close)]))
				shape, typ = b.shape, b.typ
				break
			}
		}
	}
	if strings.ContainsAny(id, " \t") {
		return "", false
	}

	if idx, ok := p.index[id]; ok {
		// later declarations fill in what a bare mention left out
		n := &p.nodes[idx]
		if label != "" && n.Data.Label == n.ID {
			n.Data.Label = label
			n.Data.Shape = shape
			n.Type = inferType(typ, label)
		}
		return id, true
	}

	if label == "" {
		label = id
	}
	p.index[id] = len(p.nodes)
	p.nodes = append(p.nodes, model.Node{
		ID:   id,
		Type: inferType(typ, label),
		Data: model.NodeData{Label: label, Shape: shape},
	})
	return id, true
}

func inferType(fromShape, label string) string {
	if fromShape != "" {
		return fromShape
	}
	lower := strings.ToLower(label)
	for _, kt := range keywordTypes {
		if strings.Contains(lower, kt.keyword) {
			return kt.typ
		}
	}
	return model.TypeDefault
}

func skipLine(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range []string{"graph ", "graph\t", "flowchart", "subgraph", "%%", "classdef", "class ", "style ", "linkstyle", "direction "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return lower == "end" || lower == "graph"
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func before(s, sep string) string {
	b, _, _ := strings.Cut(s, sep)
	return b
}

func after(s, sep string) string {
	_, a, _ := strings.Cut(s, sep)
	return a
}

// Render emits the graph as a top-down Mermaid flowchart.
func Render(g model.Graph) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, n := range g.Nodes {
		open, closing := shapeBrackets(n)
		label := n.Data.Label
		if label == "" {
			label = n.ID
		}
		fmt.Fprintf(&b, "    %s%s\"%s\"%s\n", safeID(n.ID), open, label, closing)
	}
	for _, e := range g.Edges {
		if e.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", safeID(e.Source), e.Label, safeID(e.Target))
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", safeID(e.Source), safeID(e.Target))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func shapeBrackets(n model.Node) (string, string) {
	switch {
	case n.Type == model.TypeDatabase || n.Data.Shape == "cylinder":
		return "[(", ")]"
	case n.Type == model.TypeService:
		return "[[", "]]"
	case n.Type == model.TypeDecision || n.Data.Shape == "diamond":
		return "{", "}"
	case n.Data.Shape == "circle", n.Data.Shape == "start-event", n.Data.Shape == "end-event",
		n.Type == model.TypeStartEvent, n.Type == model.TypeEndEvent:
		return "((", "))"
	case n.Data.Shape == "hexagon":
		return "{{", "}}"
	case n.Data.Shape == "rounded-rectangle":
		return "(", ")"
	default:
		return "[", "]"
	}
}

// safeID replaces characters Mermaid cannot carry in a node id.
func safeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '[', ']', '(', ')', '{', '}', '|', '"', ';':
			return '_'
		}
		return r
	}, id)
}
