/*
Package template renders the prompt texts sent to providers.

Texts use ${var} placeholders and are rendered with a variable map:

	t := template.Must("greeting", "Hello ${name}")
	out, err := t.Render(map[string]any{"name": "World"})
	// out: "Hello World"

Strings are inserted verbatim, string slices are joined with ", " and
anything else goes through fmt. Rendering fails with an
*UndefinedVariableError naming every placeholder left without a value.
Substituted values are never expanded again, so user input containing
"${x}" passes through untouched. A bare "$" or JSON braces in the text are
left alone.
*/
package template
