package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// OpenAI implements Client over OpenAI-compatible chat completions.
type OpenAI struct {
	cfg    ProviderConfig
	opts   clientOptions
	client *openai.Client
}

// NewOpenAI creates an OpenAI-compatible client. A BaseURL in cfg points
// the SDK at a compatible endpoint.
func NewOpenAI(cfg ProviderConfig, opts ...Option) *OpenAI {
	if cfg.Kind == "" {
		cfg.Kind = KindOpenAI
	}
	cfg = cfg.WithDefaults()
	o := buildOptions(opts)

	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	sdkCfg.HTTPClient = o.httpClient

	return &OpenAI{cfg: cfg, opts: o, client: openai.NewClientWithConfig(sdkCfg)}
}

// Kind implements Client.
func (c *OpenAI) Kind() Kind { return c.cfg.Kind }

// Complete implements Client.
func (c *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	return completeWithRetry(ctx, c.cfg, c.opts.logger, req, true, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, c.mapError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, &dferrors.BadResponseError{Provider: string(c.cfg.Kind), Reason: "no choices"}
		}
		return &CompletionResponse{
			Content:      resp.Choices[0].Message.Content,
			Model:        resp.Model,
			FinishReason: string(resp.Choices[0].FinishReason),
			Usage: TokenUsage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			},
		}, nil
	})
}

// Stream implements Client.
func (c *OpenAI) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true

	call := beginStream(ctx, c.cfg, req)
	stream, err := c.client.CreateChatCompletionStream(call.ctx, chatReq)
	if err != nil {
		return nil, call.fail(c.mapError(err))
	}

	return call.pump(c.opts.streamBuf, func(ctx context.Context, emit func(string) error) (*TokenUsage, error) {
		defer stream.Close()
		var usage *TokenUsage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return usage, nil
			}
			if err != nil {
				return usage, c.mapError(err)
			}
			if resp.Usage != nil {
				usage = &TokenUsage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
			for _, choice := range resp.Choices {
				if err := emit(choice.Delta.Content); err != nil {
					return usage, err
				}
			}
		}
	}), nil
}

func (c *OpenAI) buildRequest(req CompletionRequest) (openai.ChatCompletionRequest, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       modelFor(c.cfg, req),
		MaxTokens:   maxTokensFor(req),
		Temperature: float32(req.Temperature),
	}
	if req.SystemPrompt != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: openAIRole(m.Role)}
		if len(m.Images) == 0 {
			msg.Content = m.Content
			chatReq.Messages = append(chatReq.Messages, msg)
			continue
		}

		if m.Content != "" {
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: m.Content,
			})
		}
		for _, img := range m.Images {
			dataURL, err := img.DataURL()
			if err != nil {
				return chatReq, err
			}
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
			})
		}
		chatReq.Messages = append(chatReq.Messages, msg)
	}
	return chatReq, nil
}

func openAIRole(r Role) string {
	switch r {
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	}
	return openai.ChatMessageRoleUser
}

// mapError converts SDK errors into typed errors carrying the HTTP status.
func (c *OpenAI) mapError(err error) error {
	provider := string(c.cfg.Kind)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(provider, apiErr.HTTPStatusCode, apiErr.Message, "", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return fromStatus(provider, reqErr.HTTPStatusCode, msg, "", err)
	}
	return transportError(provider, err)
}
