package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Anthropic implements Client over the Messages API with raw HTTP. It also
// serves custom endpoints that speak the same wire format.
type Anthropic struct {
	cfg  ProviderConfig
	opts clientOptions
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg ProviderConfig, opts ...Option) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	if cfg.Kind == "" {
		cfg.Kind = KindAnthropic
	}
	return &Anthropic{cfg: cfg.WithDefaults(), opts: buildOptions(opts)}
}

// Kind implements Client.
func (a *Anthropic) Kind() Kind { return a.cfg.Kind }

// Complete implements Client.
func (a *Anthropic) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := a.buildBody(req, false)
	if err != nil {
		return nil, err
	}
	provider := string(a.cfg.Kind)

	return completeWithRetry(ctx, a.cfg, a.opts.logger, req, false, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := a.post(ctx, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &dferrors.BadResponseError{Provider: provider, Reason: "decode: " + err.Error()}
		}
		var text strings.Builder
		for _, block := range out.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return &CompletionResponse{
			Content:      text.String(),
			Model:        out.Model,
			FinishReason: out.StopReason,
			Usage: TokenUsage{
				InputTokens:  out.Usage.InputTokens,
				OutputTokens: out.Usage.OutputTokens,
				TotalTokens:  out.Usage.InputTokens + out.Usage.OutputTokens,
			},
		}, nil
	})
}

// Stream implements Client. Only text_delta payloads of content_block_delta
// events are forwarded.
func (a *Anthropic) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	body, err := a.buildBody(req, true)
	if err != nil {
		return nil, err
	}

	call := beginStream(ctx, a.cfg, req)
	resp, err := a.post(call.ctx, body)
	if err != nil {
		return nil, call.fail(err)
	}
	provider := string(a.cfg.Kind)

	return call.pump(a.opts.streamBuf, func(ctx context.Context, emit func(string) error) (*TokenUsage, error) {
		defer resp.Body.Close()
		var usage TokenUsage
		err := readSSE(ctx, resp.Body, func(ev sseEvent) error {
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				return &dferrors.BadResponseError{Provider: provider, Reason: "decode event: " + err.Error()}
			}
			name := ev.Name
			if name == "" {
				name = event.Type
			}

			switch name {
			case "message_start":
				if event.Message != nil {
					usage.InputTokens = event.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" {
					return emit(event.Delta.Text)
				}
			case "message_delta":
				if event.Usage != nil {
					usage.OutputTokens = event.Usage.OutputTokens
				}
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Type + ": " + event.Error.Message
				}
				status := http.StatusBadGateway
				if event.Error != nil && event.Error.Type == "overloaded_error" {
					status = 529
				}
				return &dferrors.ProviderError{Provider: provider, StatusCode: status, Message: msg}
			}
			return nil
		})
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		return &usage, err
	}), nil
}

func (a *Anthropic) post(ctx context.Context, body []byte) (*http.Response, error) {
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/")
	if !strings.HasSuffix(endpoint, "/v1") {
		endpoint += "/v1"
	}
	endpoint += "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(string(a.cfg.Kind), err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(string(a.cfg.Kind), resp)
	}
	return resp, nil
}

func (a *Anthropic) buildBody(req CompletionRequest, stream bool) ([]byte, error) {
	body := anthropicRequest{
		Model:       modelFor(a.cfg, req),
		MaxTokens:   maxTokensFor(req),
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Stream:      stream,
	}

	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			body.System = strings.TrimSpace(body.System + "\n" + m.Content)
			continue
		}
		msg := anthropicMessage{Role: string(m.Role)}
		for _, img := range m.Images {
			mime, b64, err := img.encoded()
			if err != nil {
				return nil, err
			}
			msg.Content = append(msg.Content, anthropicBlock{
				Type:   "image",
				Source: &anthropicSource{Type: "base64", MediaType: mime, Data: b64},
			})
		}
		if m.Content != "" {
			msg.Content = append(msg.Content, anthropicBlock{Type: "text", Text: m.Content})
		}
		body.Messages = append(body.Messages, msg)
	}
	return json.Marshal(body)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
