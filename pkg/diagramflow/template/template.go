package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// UndefinedVariableError reports placeholders that had no value.
type UndefinedVariableError struct {
	Template string
	Names    []string
}

func (e *UndefinedVariableError) Error() string {
	noun := "variable"
	if len(e.Names) > 1 {
		noun = "variables"
	}
	return fmt.Sprintf("template %s: undefined %s: %s", e.Template, noun, strings.Join(e.Names, ", "))
}

// Template is a named prompt text with ${var} placeholders. A Template is
// immutable and safe for concurrent use.
type Template struct {
	name string
	text string
	vars []string
}

// Parse creates a template. It fails if text has no content.
func Parse(name, text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("template %s: empty text", name)
	}
	return &Template{name: name, text: text, vars: Variables(text)}, nil
}

// Must is like Parse but panics on error.
func Must(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

// Vars returns the placeholder names in order of first use.
func (t *Template) Vars() []string {
	return append([]string(nil), t.vars...)
}

// Render substitutes vars in a single pass. Every placeholder must have a
// value; substituted text is never scanned again.
func (t *Template) Render(vars map[string]any) (string, error) {
	var missing []string
	for _, name := range t.vars {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &UndefinedVariableError{Template: t.name, Names: missing}
	}

	out := placeholder.ReplaceAllStringFunc(t.text, func(m string) string {
		return format(vars[m[2:len(m)-1]])
	})
	return out, nil
}

// Variables returns the distinct ${var} names in s, in order of first use.
func Variables(s string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
