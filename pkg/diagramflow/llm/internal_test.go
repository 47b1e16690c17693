package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// Internal tests for private functions

func TestReadSSE(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"event: content_block_delta",
		"data: {\"a\":1}",
		"",
		"data: line one",
		"data: line two",
		"",
		"data: tail",
	}, "\r\n")

	var events []sseEvent
	err := readSSE(context.Background(), strings.NewReader(input), func(ev sseEvent) error {
		events = append(events, ev)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []sseEvent{
		{Name: "content_block_delta", Data: `{"a":1}`},
		{Data: "line one\nline two"},
		{Data: "tail"},
	}, events)
}

func TestReadSSE_DoneSentinel(t *testing.T) {
	input := "data: one\n\ndata: [DONE]\n\ndata: never\n\n"

	var got []string
	err := readSSE(context.Background(), strings.NewReader(input), func(ev sseEvent) error {
		got = append(got, ev.Data)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, got)
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classify(ctx, "gemini", time.Second, context.DeadlineExceeded)
	var te *dferrors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "gemini", te.Operation)

	plain := &dferrors.ProviderError{Provider: "x", StatusCode: 500}
	assert.Same(t, plain, classify(context.Background(), "x", time.Second, plain))
	assert.Nil(t, classify(context.Background(), "x", time.Second, nil))
}

func TestProviderConfig_Retries(t *testing.T) {
	two, many, neg := 2, 9, -1

	assert.Equal(t, 1, ProviderConfig{}.retries(true))
	assert.Equal(t, 0, ProviderConfig{}.retries(false))
	assert.Equal(t, 2, ProviderConfig{MaxRetries: &two}.retries(false))
	assert.Equal(t, 2, ProviderConfig{MaxRetries: &many}.retries(true))
	assert.Equal(t, 0, ProviderConfig{MaxRetries: &neg}.retries(true))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}
