// Package jsonrepair extracts a JSON object from noisy model output.
//
// Extraction folds an ordered list of strategies over the input; the first
// strategy that yields an object wins. Strategies are pure: they never panic
// and report false when they do not apply.
package jsonrepair

import (
	"encoding/json"
	"strings"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// Strategy is one extraction attempt.
type Strategy struct {
	Name  string
	Apply func(text string) (map[string]any, bool)
}

// Strategy names.
const (
	StrategyWhole      = "whole"
	StrategyFenced     = "fenced"
	StrategyBraces     = "braces"
	StrategyTruncation = "truncation"
	StrategyCommas     = "commas"
	StrategySalvage    = "salvage"
	StrategyNormalize  = "normalize"
)

// DefaultStrategies is the standard extraction order.
var DefaultStrategies = []Strategy{
	{Name: StrategyWhole, Apply: ParseWhole},
	{Name: StrategyFenced, Apply: ParseFenced},
	{Name: StrategyBraces, Apply: ParseBraces},
	{Name: StrategyTruncation, Apply: RepairTruncation},
	{Name: StrategyCommas, Apply: RepairCommas},
	{Name: StrategySalvage, Apply: SalvageArray},
	{Name: StrategyNormalize, Apply: NormalizeSyntax},
}

// Result is a successful extraction.
type Result struct {
	Value map[string]any

	// Strategy names the strategy that produced Value.
	Strategy string
}

type options struct {
	strategies []Strategy
	truncated  bool
}

// Option configures Extract.
type Option func(*options)

// WithTruncated marks the input as known to be cut off, so truncation repair
// runs right after the plain parse.
func WithTruncated() Option {
	return func(o *options) {
		o.truncated = true
	}
}

// WithStrategies replaces the strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(o *options) {
		o.strategies = strategies
	}
}

// Extract returns the first object any strategy recovers from text, or a
// *errors.ParseError when every strategy fails.
func Extract(text string, opts ...Option) (Result, error) {
	o := options{strategies: DefaultStrategies}
	for _, opt := range opts {
		opt(&o)
	}

	strategies := o.strategies
	if o.truncated {
		strategies = truncationFirst(strategies)
	}

	tried := make([]string, 0, len(strategies))
	for _, s := range strategies {
		tried = append(tried, s.Name)
		if v, ok := safeApply(s, text); ok {
			return Result{Value: v, Strategy: s.Name}, nil
		}
	}

	return Result{}, &dferrors.ParseError{
		Input:   preview(text, 200),
		Tried:   tried,
		Message: "no strategy produced a JSON object",
	}
}

func safeApply(s Strategy, text string) (v map[string]any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()
	return s.Apply(text)
}

func truncationFirst(in []Strategy) []Strategy {
	out := make([]Strategy, 0, len(in))
	var trunc *Strategy
	for i := range in {
		if in[i].Name == StrategyTruncation {
			trunc = &in[i]
			continue
		}
		out = append(out, in[i])
	}
	if trunc == nil || len(out) == 0 {
		return in
	}
	// keep the plain parse first, then truncation
	return append([]Strategy{out[0], *trunc}, out[1:]...)
}

func decode(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// objectStart returns text from the first '{' with any trailing code fence
// removed, or "" if there is no '{'.
func objectStart(text string) string {
	i := strings.IndexByte(text, '{')
	if i < 0 {
		return ""
	}
	s := strings.TrimSpace(text[i:])
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
