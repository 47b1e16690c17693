package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	Name string
	Data string
}

// maxSSELine bounds a single SSE line; structured output can arrive as one
// large data line.
const maxSSELine = 4 << 20

// readSSE scans r as a server-sent event stream and calls fn for every
// event. Multiple data lines are joined with "\n". A "[DONE]" payload ends
// the stream.
func readSSE(ctx context.Context, r io.Reader, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var (
		name string
		data []string
	)
	dispatch := func() error {
		if len(data) == 0 {
			name = ""
			return nil
		}
		ev := sseEvent{Name: name, Data: strings.Join(data, "\n")}
		name, data = "", nil
		return fn(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if payload == "[DONE]" {
				return nil
			}
			data = append(data, payload)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	return dispatch()
}

// streamCall carries the contexts of one streamed completion. parent is
// the caller's context; ctx adds the total timeout and is cancelled when
// the producer goroutine exits.
type streamCall struct {
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	provider string
	timeout  time.Duration
}

func beginStream(parent context.Context, cfg ProviderConfig, req CompletionRequest) *streamCall {
	ctx, cancel, timeout := withTimeout(parent, cfg, req)
	return &streamCall{
		parent:   parent,
		ctx:      ctx,
		cancel:   cancel,
		provider: string(cfg.Kind),
		timeout:  timeout,
	}
}

// fail releases the call and returns err classified for the caller.
func (s *streamCall) fail(err error) error {
	defer s.cancel()
	return classify(s.ctx, s.provider, s.timeout, err)
}

// pump runs produce on its own goroutine, forwarding every emitted delta
// into a bounded channel. The channel always ends with a Done chunk or an
// Error chunk unless the caller's context is cancelled first.
func (s *streamCall) pump(buf int, produce func(ctx context.Context, emit func(string) error) (*TokenUsage, error)) <-chan StreamChunk {
	ch := make(chan StreamChunk, buf)

	go func() {
		defer close(ch)
		defer s.cancel()

		emit := func(text string) error {
			if text == "" {
				return nil
			}
			select {
			case ch <- StreamChunk{Content: text}:
				return nil
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
		}

		usage, err := produce(s.ctx, emit)
		final := StreamChunk{Done: true, Usage: usage}
		if err != nil {
			final = StreamChunk{Error: classify(s.ctx, s.provider, s.timeout, err)}
		}
		select {
		case ch <- final:
		case <-s.parent.Done():
		}
	}()

	return ch
}

// Collect drains a stream into a single response.
func Collect(ch <-chan StreamChunk) (*CompletionResponse, error) {
	var (
		b     strings.Builder
		usage TokenUsage
	)
	for chunk := range ch {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		b.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage.Add(*chunk.Usage)
		}
	}
	return &CompletionResponse{Content: b.String(), Usage: usage, FinishReason: "stop"}, nil
}
