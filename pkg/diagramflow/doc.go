/*
Package diagramflow turns natural-language descriptions, diagram images and
edit requests into validated node/edge diagrams.

# Overview

A Generator runs each request through a compiled stage pipeline:

	resolve_provider -> load_canvas -> build_prompt -> call_model
	    -> parse -> normalize -> reconcile | fallback -> persist

The model's text is repaired into JSON (package jsonrepair), normalized
into a graph with positions, handles and a Mermaid rendering (package
layout), and, for edits against a stored canvas, reconciled so that nodes
the model forgot are put back (package incremental).

# Basic Usage

	presets := llm.NewPresets()
	presets.Register("default", llm.ProviderConfig{
	    Kind:   llm.KindOpenAI,
	    APIKey: os.Getenv("OPENAI_API_KEY"),
	    Model:  "gpt-4o-mini",
	})

	gen, err := diagramflow.NewGenerator(diagramflow.WithPresets(presets))
	if err != nil {
	    log.Fatal(err)
	}

	res, err := gen.Generate(ctx, diagramflow.Request{
	    UserInput: "user signs up, verifies email, lands on dashboard",
	})
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(res.Graph.Mermaid)

# Incremental Edits

Set IncrementalMode and a SessionID to edit the stored canvas. The first
request with a new session id stores the generated graph; later requests
send the model a summary of that canvas and reconcile its answer:

	res, err := gen.Generate(ctx, diagramflow.Request{
	    UserInput:       "add a cache between the API and the database",
	    IncrementalMode: true,
	    SessionID:       res.SessionID,
	})

If the reconciled graph lost concepts the user asked to keep, the original
canvas is returned unchanged and res.Report.SafeMode is set.

# Streaming

GenerateStream forwards model deltas as TOKEN events and then reveals the
finished graph node by node:

	rec := &stream.Recorder{}
	_, err := gen.GenerateStream(ctx, req, rec, stream.WithTimings(stream.NoPacing))

Write the events to an HTTP response with stream.NewWriterSink.

# Pipelines

The stage engine is exported for callers that compose their own flows.
Stages are StageFunc values over a state type; routers choose the next
stage at run time:

	p := diagramflow.NewPipeline[State]().
	    AddStage("draft", draft).
	    AddStage("check", check).
	    AddEdge("draft", "check").
	    AddConditionalEdge("check", func(ctx diagramflow.Context, s State) string {
	        if s.OK {
	            return diagramflow.End
	        }
	        return "draft"
	    }).
	    SetEntry("draft")

Compile reports every structural problem at once. Run recovers stage
panics, stops on cancellation between stages and bounds router loops with
WithMaxIterations.
*/
package diagramflow
