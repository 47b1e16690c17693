package jsonrepair

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseWhole parses the entire input as JSON.
func ParseWhole(text string) (map[string]any, bool) {
	return decode(text)
}

// ParseFenced parses the first ```json fenced block that holds an object.
func ParseFenced(text string) (map[string]any, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if v, ok := decode(m[1]); ok {
			return v, true
		}
	}
	return nil, false
}

// ParseBraces parses the span from the first '{' to the last '}'.
func ParseBraces(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	return decode(text[start : end+1])
}

// scanState is the result of walking a JSON prefix.
type scanState struct {
	// closers still owed at the end of input, innermost last
	stack    []byte
	inString bool

	// structural commas, with the closers owed at each
	cuts []cutPoint
}

type cutPoint struct {
	pos   int
	stack []byte
}

func scan(s string) scanState {
	var st scanState
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{':
			st.stack = append(st.stack, '}')
		case '[':
			st.stack = append(st.stack, ']')
		case '}', ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == c {
				st.stack = st.stack[:n-1]
			}
		case ',':
			st.cuts = append(st.cuts, cutPoint{pos: i, stack: append([]byte(nil), st.stack...)})
		}
	}
	return st
}

// closeOff appends the owed closers to a prefix after tidying its tail.
func closeOff(prefix string, stack []byte) string {
	prefix = strings.TrimRight(prefix, " \t\r\n")
	prefix = strings.TrimSuffix(prefix, ",")
	if strings.HasSuffix(prefix, ":") {
		prefix += "null"
	}
	var b strings.Builder
	b.Grow(len(prefix) + len(stack))
	b.WriteString(prefix)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// maxCutBacks bounds how many earlier commas truncation repair retries from.
const maxCutBacks = 8

// RepairTruncation closes a JSON object that was cut off mid-stream: an open
// string is terminated, then every unclosed container is closed in order. If
// the result still fails to parse, the text is cut back to earlier
// structural commas and closed again.
func RepairTruncation(text string) (map[string]any, bool) {
	s := objectStart(text)
	if s == "" {
		return nil, false
	}

	st := scan(s)
	candidate := s
	if st.inString {
		candidate += `"`
	}
	if v, ok := decode(closeOff(candidate, st.stack)); ok {
		return v, true
	}

	for i, tries := len(st.cuts)-1, 0; i >= 0 && tries < maxCutBacks; i, tries = i-1, tries+1 {
		cut := st.cuts[i]
		if v, ok := decode(closeOff(s[:cut.pos], cut.stack)); ok {
			return v, true
		}
	}
	return nil, false
}

var commaFixes = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\}\s*\{`), "},{"},
	{regexp.MustCompile(`\]\s*\[`), "],["},
	{regexp.MustCompile(`"(\s*\n\s*)"`), `",$1"`},
	{regexp.MustCompile(`(\d|true|false|null)(\s*\n\s*)"`), `$1,$2"`},
	{regexp.MustCompile(`([}\]])(\s*\n\s*)"`), `$1,$2"`},
}

// RepairCommas inserts commas the model left out between objects, between
// quoted strings on adjacent lines, and between a literal and a following
// key. The repaired text is parsed, then closed off if it is also truncated.
func RepairCommas(text string) (map[string]any, bool) {
	s := objectStart(text)
	if s == "" {
		return nil, false
	}
	for _, fix := range commaFixes {
		s = fix.pattern.ReplaceAllString(s, fix.replace)
	}
	if v, ok := ParseBraces(s); ok {
		return v, true
	}
	return RepairTruncation(s)
}

// SalvageArray recovers the complete objects of an "elements" or "nodes"
// array that was cut off, and wraps them in a minimal envelope. An "edges"
// array next to "nodes" is salvaged the same way.
func SalvageArray(text string) (map[string]any, bool) {
	if items, ok := salvageItems(text, "elements"); ok {
		return decode(`{"elements":[` + items + `],"appState":{},"files":{}}`)
	}
	if items, ok := salvageItems(text, "nodes"); ok {
		edges, _ := salvageItems(text, "edges")
		return decode(`{"nodes":[` + items + `],"edges":[` + edges + `]}`)
	}
	return nil, false
}

// salvageItems returns the comma-joined complete objects of the array under
// key. ok is false when the key or its array is absent.
func salvageItems(text, key string) (string, bool) {
	k := strings.Index(text, `"`+key+`"`)
	if k < 0 {
		return "", false
	}
	open := strings.IndexByte(text[k:], '[')
	if open < 0 {
		return "", false
	}
	start := k + open + 1

	var items []string
	depth := 0
	objStart := -1
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			if depth == 0 && c == '{' {
				objStart = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				// end of the array itself
				return strings.Join(items, ","), true
			}
			depth--
			if depth == 0 && c == '}' && objStart >= 0 {
				obj := text[objStart : i+1]
				if _, ok := decode(obj); ok {
					items = append(items, obj)
				}
				objStart = -1
			}
		}
	}
	return strings.Join(items, ","), true
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoted  = regexp.MustCompile(`'([^'\\\n]*)'`)
	pythonTrue    = regexp.MustCompile(`\bTrue\b`)
	pythonFalse   = regexp.MustCompile(`\bFalse\b`)
	pythonNone    = regexp.MustCompile(`\bNone\b`)
)

// NormalizeSyntax strips trailing commas, turns single-quoted strings into
// double-quoted ones, and collapses newlines before parsing.
func NormalizeSyntax(text string) (map[string]any, bool) {
	s := objectStart(text)
	if s == "" {
		return nil, false
	}
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	s = singleQuoted.ReplaceAllString(s, `"$1"`)
	s = pythonTrue.ReplaceAllString(s, "true")
	s = pythonFalse.ReplaceAllString(s, "false")
	s = pythonNone.ReplaceAllString(s, "null")
	if v, ok := ParseBraces(s); ok {
		return v, true
	}
	return RepairTruncation(s)
}
