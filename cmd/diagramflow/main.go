// Command diagramflow generates diagrams from natural language.
//
//	diagramflow serve --config diagramflow.yaml
//	diagramflow generate "user signup with email verification"
//	diagramflow mcp
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand(&rootOptions{})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
