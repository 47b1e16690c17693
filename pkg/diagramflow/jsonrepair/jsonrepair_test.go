package jsonrepair_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/jsonrepair"
)

func TestExtract_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		strategy string
		check    func(t *testing.T, v map[string]any)
	}{
		{
			name:     "plain json",
			input:    `{"nodes":[],"edges":[]}`,
			strategy: jsonrepair.StrategyWhole,
			check: func(t *testing.T, v map[string]any) {
				assert.Contains(t, v, "nodes")
			},
		},
		{
			name:     "fenced block",
			input:    "Here you go:\n```json\n{\"nodes\":[{\"id\":\"a\"}]}\n```\nEnjoy.",
			strategy: jsonrepair.StrategyFenced,
			check: func(t *testing.T, v map[string]any) {
				assert.Len(t, v["nodes"], 1)
			},
		},
		{
			name:     "fence without language tag",
			input:    "```\n{\"a\":1}\n```",
			strategy: jsonrepair.StrategyFenced,
			check: func(t *testing.T, v map[string]any) {
				assert.InDelta(t, 1.0, v["a"], 0.0001)
			},
		},
		{
			name:     "prose around braces",
			input:    `Sure! {"a": {"b": 2}} Let me know.`,
			strategy: jsonrepair.StrategyBraces,
			check: func(t *testing.T, v map[string]any) {
				assert.Equal(t, map[string]any{"b": 2.0}, v["a"])
			},
		},
		{
			name:     "truncated mid object",
			input:    `{"elements":[{"id":"1","type":"rect"`,
			strategy: jsonrepair.StrategyTruncation,
			check: func(t *testing.T, v map[string]any) {
				assert.Equal(t, []any{map[string]any{"id": "1", "type": "rect"}}, v["elements"])
			},
		},
		{
			name:     "truncated inside string",
			input:    `{"nodes":[{"id":"a","data":{"label":"Load bal`,
			strategy: jsonrepair.StrategyTruncation,
			check: func(t *testing.T, v map[string]any) {
				node := v["nodes"].([]any)[0].(map[string]any)
				assert.Equal(t, "Load bal", node["data"].(map[string]any)["label"])
			},
		},
		{
			name:     "truncated after key",
			input:    `{"a":1,"b":`,
			strategy: jsonrepair.StrategyTruncation,
			check: func(t *testing.T, v map[string]any) {
				assert.Contains(t, v, "b")
				assert.Nil(t, v["b"])
			},
		},
		{
			name:     "truncated dangling key cuts back",
			input:    `{"a":1,"bee`,
			strategy: jsonrepair.StrategyTruncation,
			check: func(t *testing.T, v map[string]any) {
				assert.Equal(t, map[string]any{"a": 1.0}, v)
			},
		},
		{
			name:     "missing commas between objects",
			input:    `{"nodes":[{"id":"a"} {"id":"b"}]}`,
			strategy: jsonrepair.StrategyCommas,
			check: func(t *testing.T, v map[string]any) {
				assert.Len(t, v["nodes"], 2)
			},
		},
		{
			name:     "missing commas between lines",
			input:    "{\n\"a\": \"x\"\n\"b\": 2\n\"c\": true\n}",
			strategy: jsonrepair.StrategyCommas,
			check: func(t *testing.T, v map[string]any) {
				assert.Equal(t, "x", v["a"])
				assert.InDelta(t, 2.0, v["b"], 0.0001)
				assert.Equal(t, true, v["c"])
			},
		},
		{
			name:     "trailing commas and single quotes",
			input:    "{'a': 'x', 'list': [1, 2,],}",
			strategy: jsonrepair.StrategyNormalize,
			check: func(t *testing.T, v map[string]any) {
				assert.Equal(t, "x", v["a"])
				assert.Len(t, v["list"], 2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := jsonrepair.Extract(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, res.Strategy)
			tt.check(t, res.Value)
		})
	}
}

func TestExtract_Exhausted(t *testing.T) {
	_, err := jsonrepair.Extract("no json here at all")
	require.Error(t, err)

	var parseErr *dferrors.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Len(t, parseErr.Tried, len(jsonrepair.DefaultStrategies))
	assert.Equal(t, "no json here at all", parseErr.Input)
}

func TestExtract_TopLevelArrayRejected(t *testing.T) {
	_, err := jsonrepair.Extract(`[1,2,3]`)
	assert.Error(t, err)
}

func TestExtract_WithTruncated(t *testing.T) {
	input := `{"nodes":[{"id":"a"},{"id":"b"`
	res, err := jsonrepair.Extract(input, jsonrepair.WithTruncated())
	require.NoError(t, err)
	assert.Equal(t, jsonrepair.StrategyTruncation, res.Strategy)
	assert.Len(t, res.Value["nodes"], 2)
}

func TestExtract_WithStrategies(t *testing.T) {
	called := false
	custom := jsonrepair.Strategy{Name: "custom", Apply: func(string) (map[string]any, bool) {
		called = true
		return map[string]any{"ok": true}, true
	}}
	res, err := jsonrepair.Extract("garbage", jsonrepair.WithStrategies(custom))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "custom", res.Strategy)
}

func TestExtract_PanickingStrategyIsSkipped(t *testing.T) {
	bad := jsonrepair.Strategy{Name: "bad", Apply: func(string) (map[string]any, bool) {
		panic("boom")
	}}
	good := jsonrepair.Strategy{Name: "whole", Apply: jsonrepair.ParseWhole}
	res, err := jsonrepair.Extract(`{"a":1}`, jsonrepair.WithStrategies(bad, good))
	require.NoError(t, err)
	assert.Equal(t, "whole", res.Strategy)
}

func TestSalvageArray(t *testing.T) {
	t.Run("elements prefix", func(t *testing.T) {
		input := `{"elements":[{"id":"1","x":0},{"id":"2","x":10},{"id":"3","lab`
		v, ok := jsonrepair.SalvageArray(input)
		require.True(t, ok)
		assert.Len(t, v["elements"], 2)
		assert.Equal(t, map[string]any{}, v["appState"])
		assert.Equal(t, map[string]any{}, v["files"])
	})

	t.Run("nodes with edges", func(t *testing.T) {
		input := `{"nodes":[{"id":"a"},{"id":"b"}],"edges":[{"id":"e0","source":"a","target":"b"},{"id":"e1","sou`
		v, ok := jsonrepair.SalvageArray(input)
		require.True(t, ok)
		assert.Len(t, v["nodes"], 2)
		assert.Len(t, v["edges"], 1)
	})

	t.Run("no complete element yields empty envelope", func(t *testing.T) {
		v, ok := jsonrepair.SalvageArray(`{"elements":[{"id":"1","type":"re`)
		require.True(t, ok)
		assert.Empty(t, v["elements"])
	})

	t.Run("braces inside strings are ignored", func(t *testing.T) {
		v, ok := jsonrepair.SalvageArray(`{"nodes":[{"id":"a","data":{"label":"x}]{"}},{"id":"b`)
		require.True(t, ok)
		require.Len(t, v["nodes"], 1)
	})

	t.Run("no array", func(t *testing.T) {
		_, ok := jsonrepair.SalvageArray(`{"layers":[]}`)
		assert.False(t, ok)
	})
}

func TestRepairTruncation_NoObject(t *testing.T) {
	_, ok := jsonrepair.RepairTruncation("plain text")
	assert.False(t, ok)
}

func TestRepairTruncation_EscapedQuote(t *testing.T) {
	v, ok := jsonrepair.RepairTruncation(`{"label":"say \"hi`)
	require.True(t, ok)
	assert.Equal(t, `say "hi`, v["label"])
}

func TestRepairTruncation_TrailingFence(t *testing.T) {
	v, ok := jsonrepair.RepairTruncation("```json\n{\"a\":[1,2")
	require.True(t, ok)
	assert.Equal(t, []any{1.0, 2.0}, v["a"])
}
