package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
)

// Exit codes.
const (
	exitFailure      = 1
	exitCommandError = 2
)

// exitError carries a process exit code.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func wrapExit(code int, msg string, err error) *exitError {
	return &exitError{code: code, msg: msg, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

var validFormats = []string{"text", "json"}

// rootOptions holds global flags.
type rootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool

	// Presets replaces the configured providers. Tests set it.
	Presets *llm.Presets
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagramflow",
		Short: "Generate flow and architecture diagrams with LLMs",
		Long: `diagramflow turns natural-language descriptions into positioned
flow and architecture diagrams, keeps canvases in sessions, and edits them
incrementally. It runs as an HTTP service, an MCP server or a one-shot CLI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return wrapExit(exitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newMCPCommand(opts))
	return cmd
}
