package llm

import (
	"context"
	"sync"
)

// MockClient is a Client for tests. It returns fixed or sequential
// responses and records every request.
type MockClient struct {
	mu sync.Mutex

	response     string
	responses    []string
	index        int
	chunks       []string
	err          error
	streamErr    error
	completeFunc func(context.Context, CompletionRequest) (*CompletionResponse, error)

	// Calls records every request in call order.
	Calls []CompletionRequest
}

// NewMockClient creates a mock that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the mock cycle through responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithStreamChunks makes Stream emit these deltas instead of one chunk
// holding the whole response.
func (m *MockClient) WithStreamChunks(chunks ...string) *MockClient {
	m.chunks = chunks
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithStreamError makes Stream deliver err as its terminal chunk after
// the configured deltas.
func (m *MockClient) WithStreamError(err error) *MockClient {
	m.streamErr = err
	return m
}

// WithCompleteFunc delegates Complete to fn.
func (m *MockClient) WithCompleteFunc(fn func(context.Context, CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.completeFunc = fn
	return m
}

// Kind implements Client.
func (m *MockClient) Kind() Kind { return KindMock }

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn, err := m.completeFunc, m.err
	content := m.next()
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return &CompletionResponse{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
		Usage:        mockUsage(req, content),
	}, nil
}

// Stream implements Client.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	err, streamErr := m.err, m.streamErr
	chunks := m.chunks
	content := m.next()
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		chunks = []string{content}
	}

	full := ""
	for _, c := range chunks {
		full += c
	}
	usage := mockUsage(req, full)

	ch := make(chan StreamChunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for i, c := range chunks {
			chunk := StreamChunk{Content: c}
			if i == len(chunks)-1 && streamErr == nil {
				chunk.Done, chunk.Usage = true, &usage
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case ch <- StreamChunk{Error: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// next returns the next configured response. Callers hold mu.
func (m *MockClient) next() string {
	if len(m.responses) == 0 {
		return m.response
	}
	r := m.responses[m.index%len(m.responses)]
	m.index++
	return r
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears recorded calls and rewinds sequential responses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}

// mockUsage approximates token counts at four characters per token.
func mockUsage(req CompletionRequest, content string) TokenUsage {
	in := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		in += len(msg.Content)
	}
	u := TokenUsage{InputTokens: in/4 + 1, OutputTokens: len(content)/4 + 1}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}
