package layout

import (
	"fmt"
)

// Scene is an Excalidraw document.
type Scene struct {
	Type     string           `json:"type"`
	Version  int              `json:"version"`
	Source   string           `json:"source"`
	Elements []map[string]any `json:"elements"`
	AppState map[string]any   `json:"appState"`
	Files    map[string]any   `json:"files"`
}

// SceneSource is written into Scene.Source.
const SceneSource = "diagramflow"

var elementDefaults = map[string]any{
	"angle":           0.0,
	"strokeColor":     "#1e1e1e",
	"backgroundColor": "transparent",
	"fillStyle":       "solid",
	"strokeWidth":     2.0,
	"strokeStyle":     "solid",
	"roughness":       1.0,
	"opacity":         100.0,
	"isDeleted":       false,
	"locked":          false,
}

func isLinear(kind string) bool {
	return kind == "arrow" || kind == "line" || kind == "freedraw"
}

// Excalidraw normalizes a parsed {elements, appState, files} object. Every
// element gets a unique id, numeric geometry and the standard style
// defaults. Linear elements get a points array of at least two pairs,
// shifted so the first point is [0,0]. Bindings to unknown elements are
// removed.
func (n *Normalizer) Excalidraw(raw map[string]any) Scene {
	scene := Scene{
		Type:     "excalidraw",
		Version:  2,
		Source:   SceneSource,
		Elements: []map[string]any{},
		AppState: getMap(raw, "appState"),
		Files:    getMap(raw, "files"),
	}
	if scene.AppState == nil {
		scene.AppState = map[string]any{}
	}
	if _, ok := scene.AppState["viewBackgroundColor"]; !ok {
		scene.AppState["viewBackgroundColor"] = "#ffffff"
	}
	if scene.Files == nil {
		scene.Files = map[string]any{}
	}

	rawElements, _ := getList(raw, "elements")
	seen := make(map[string]bool, len(rawElements))
	for i, item := range rawElements {
		m, ok := item.(map[string]any)
		if !ok {
			n.logger.Warn("dropping non-object element", "index", i)
			continue
		}
		el := make(map[string]any, len(m)+len(elementDefaults))
		for k, v := range elementDefaults {
			el[k] = v
		}
		for k, v := range m {
			el[k] = v
		}

		kind := getStr(m, "type")
		if kind == "" {
			kind = "rectangle"
		}
		el["type"] = kind

		id := getStr(m, "id")
		if id == "" {
			id = fmt.Sprintf("el-%d", i)
		}
		el["id"] = uniqueID(id, seen)

		for _, key := range []string{"x", "y"} {
			v, _ := getNum(m[key])
			el[key] = v
		}
		w, okW := getNum(m["width"])
		h, okH := getNum(m["height"])
		if !okW || w < 0 {
			w = 0
		}
		if !okH || h < 0 {
			h = 0
		}
		if !isLinear(kind) && kind != "text" {
			if w == 0 {
				w = 160
			}
			if h == 0 {
				h = 80
			}
		}
		el["width"], el["height"] = w, h

		if isLinear(kind) {
			n.normalizePoints(el, m)
		}
		if kind == "text" {
			if getStr(m, "text") == "" {
				el["text"] = getStr(m, "label", "originalText")
			}
			if _, ok := getNum(m["fontSize"]); !ok {
				el["fontSize"] = 20.0
			}
			if _, ok := getNum(m["fontFamily"]); !ok {
				el["fontFamily"] = 1.0
			}
		}
		scene.Elements = append(scene.Elements, el)
	}

	for _, el := range scene.Elements {
		for _, key := range []string{"startBinding", "endBinding"} {
			b, ok := el[key].(map[string]any)
			if !ok {
				continue
			}
			if target := getStr(b, "elementId"); !seen[target] {
				el[key] = nil
			}
		}
	}
	return scene
}

func (n *Normalizer) normalizePoints(el, m map[string]any) {
	var points [][2]float64
	if rawPoints, ok := m["points"].([]any); ok {
		for _, rp := range rawPoints {
			pair, ok := rp.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			px, okX := getNum(pair[0])
			py, okY := getNum(pair[1])
			if okX && okY {
				points = append(points, [2]float64{px, py})
			}
		}
	}

	w, _ := el["width"].(float64)
	h, _ := el["height"].(float64)
	if len(points) < 2 {
		if w == 0 && h == 0 {
			w = 100
		}
		points = [][2]float64{{0, 0}, {w, h}}
	}

	x0, y0 := points[0][0], points[0][1]
	if x0 != 0 || y0 != 0 {
		x, _ := el["x"].(float64)
		y, _ := el["y"].(float64)
		el["x"], el["y"] = x+x0, y+y0
	}

	out := make([]any, len(points))
	minX, minY, maxX, maxY := 0.0, 0.0, 0.0, 0.0
	for i, p := range points {
		px, py := p[0]-x0, p[1]-y0
		out[i] = []any{px, py}
		minX, maxX = min(minX, px), max(maxX, px)
		minY, maxY = min(minY, py), max(maxY, py)
	}
	el["points"] = out
	el["width"] = maxX - minX
	el["height"] = maxY - minY
}
