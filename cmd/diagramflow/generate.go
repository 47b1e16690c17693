package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/model"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

type generateOptions struct {
	*rootOptions
	DiagramType      string
	ArchitectureType string
	TemplateID       string
	SessionID        string
	Incremental      bool
	Preset           string
	Stream           bool
	Image            string
}

func newGenerateCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &generateOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate [description]",
		Short: "Generate one diagram and print it",
		Long: `Generate a diagram from a description, or from an image with --image.
The description is read from stdin when no argument is given.

Text output is Mermaid; json output is the full node and edge graph.
--stream prints the protocol events as server-sent frames instead.

Example:
  diagramflow generate "password reset flow"
  diagramflow generate --type architecture --arch technical "checkout service"
  echo "add a cache" | diagramflow generate --session canvas-1 --incremental`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.DiagramType, "type", "", "diagram type (flow|architecture)")
	cmd.Flags().StringVar(&opts.ArchitectureType, "arch", "", "architecture type (business|technical)")
	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "built-in template id")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "canvas session id")
	cmd.Flags().BoolVar(&opts.Incremental, "incremental", false, "edit the canvas in --session")
	cmd.Flags().StringVar(&opts.Preset, "preset", "", "provider preset")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "print streamed protocol events")
	cmd.Flags().StringVar(&opts.Image, "image", "", "generate from an image file")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, opts.rootOptions, appOptions{})
	if err != nil {
		return err
	}
	defer closeQuietly(a)

	out := cmd.OutOrStdout()

	if opts.Image != "" {
		data, err := os.ReadFile(opts.Image)
		if err != nil {
			return wrapExit(exitCommandError, "failed to read image", err)
		}
		hint := ""
		if len(args) == 1 {
			hint = args[0]
		}
		res, err := a.gen.GenerateFromImage(ctx, diagramflow.ImageRequest{
			Image:     data,
			Hint:      hint,
			SessionID: opts.SessionID,
			Preset:    opts.Preset,
		})
		if err != nil {
			return wrapExit(exitFailure, "generation failed", err)
		}
		return printResult(out, opts.Format, res)
	}

	input, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	req := diagramflow.Request{
		UserInput:        input,
		DiagramType:      model.DiagramType(opts.DiagramType),
		ArchitectureType: model.ArchitectureType(opts.ArchitectureType),
		TemplateID:       opts.TemplateID,
		SessionID:        opts.SessionID,
		IncrementalMode:  opts.Incremental,
		Preset:           opts.Preset,
	}

	if opts.Stream {
		_, err := a.gen.GenerateStream(ctx, req, stream.NewWriterSink(out), stream.WithTimings(stream.NoPacing))
		if err != nil {
			return wrapExit(exitFailure, "generation failed", err)
		}
		return nil
	}

	res, err := a.gen.Generate(ctx, req)
	if err != nil {
		return wrapExit(exitFailure, "generation failed", err)
	}
	return printResult(out, opts.Format, res)
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", wrapExit(exitCommandError, "failed to read stdin", err)
	}
	input := strings.TrimSpace(string(data))
	if input == "" {
		return "", wrapExit(exitCommandError, "no description given", nil)
	}
	return input, nil
}

// cliResult is the json output of generate.
type cliResult struct {
	SessionID   string            `json:"session_id,omitempty"`
	DiagramType model.DiagramType `json:"diagram_type"`
	Incremental bool              `json:"incremental"`
	Nodes       []model.Node      `json:"nodes"`
	Edges       []model.Edge      `json:"edges"`
	MermaidCode string            `json:"mermaid_code"`
}

func printResult(w io.Writer, format string, res *diagramflow.Result) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cliResult{
			SessionID:   res.SessionID,
			DiagramType: res.DiagramType,
			Incremental: res.Incremental,
			Nodes:       res.Graph.Nodes,
			Edges:       res.Graph.Edges,
			MermaidCode: res.Graph.Mermaid,
		})
	}

	fmt.Fprintln(w, res.Graph.Mermaid)
	if res.SessionID != "" {
		fmt.Fprintf(w, "%%%% session: %s\n", res.SessionID)
	}
	return nil
}
