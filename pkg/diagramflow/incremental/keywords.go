package incremental

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
)

var (
	asciiWord = regexp.MustCompile(`[a-z0-9]+`)
	hanRun    = regexp.MustCompile(`\p{Han}+`)
)

// noiseWords carry no concept of their own.
var noiseWords = map[string]bool{
	"service": true, "module": true, "layer": true, "system": true, "component": true,
	"api": true, "db": true, "database": true, "server": true,
}

// noiseHan are stripped from runs of Han characters before splitting.
var noiseHan = []string{"服务", "模块", "系统", "组件", "层"}

// Keywords extracts the semantic keyword set of a label: lowercase ASCII
// words longer than two characters and runs of at least two Han characters,
// with generic noise terms removed. The label is NFKC-normalized first so
// full-width forms match their ASCII counterparts.
func Keywords(label string) map[string]bool {
	s := strings.ToLower(norm.NFKC.String(label))
	out := make(map[string]bool)

	for _, w := range asciiWord.FindAllString(s, -1) {
		if len(w) > 2 && !noiseWords[w] {
			out[w] = true
		}
	}

	for _, run := range hanRun.FindAllString(s, -1) {
		for _, noise := range noiseHan {
			run = strings.ReplaceAll(run, noise, " ")
		}
		for _, part := range strings.Fields(run) {
			if len([]rune(part)) >= 2 {
				out[part] = true
			}
		}
	}
	return out
}

// keywordUnion returns the union of the keyword sets of the node labels.
func keywordUnion(nodes []model.Node) map[string]bool {
	out := make(map[string]bool)
	for _, n := range nodes {
		for k := range Keywords(n.Data.Label) {
			out[k] = true
		}
	}
	return out
}

func disjoint(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return false
		}
	}
	return true
}

// coverage is |final ∩ original| / |original|, or 1 when original is empty.
func coverage(original, final map[string]bool) float64 {
	if len(original) == 0 {
		return 1
	}
	hit := 0
	for k := range original {
		if final[k] {
			hit++
		}
	}
	return float64(hit) / float64(len(original))
}
