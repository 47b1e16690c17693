package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini implements Client over the Generative Language REST API.
type Gemini struct {
	cfg  ProviderConfig
	opts clientOptions
}

// NewGemini creates a Gemini client.
func NewGemini(cfg ProviderConfig, opts ...Option) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	cfg.Kind = KindGemini
	return &Gemini{cfg: cfg.WithDefaults(), opts: buildOptions(opts)}
}

// Kind implements Client.
func (g *Gemini) Kind() Kind { return KindGemini }

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := g.buildBody(req)
	if err != nil {
		return nil, err
	}
	model := modelFor(g.cfg, req)

	return completeWithRetry(ctx, g.cfg, g.opts.logger, req, false, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := g.post(ctx, g.endpoint(model, "generateContent", false), body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &dferrors.BadResponseError{Provider: string(KindGemini), Reason: "decode: " + err.Error()}
		}
		if out.Error != nil {
			return nil, fromStatus(string(KindGemini), out.Error.Code, out.Error.Message, "", nil)
		}
		return &CompletionResponse{
			Content:      out.text(),
			Model:        model,
			FinishReason: out.finishReason(),
			Usage:        out.UsageMetadata.usage(),
		}, nil
	})
}

// Stream implements Client.
func (g *Gemini) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	body, err := g.buildBody(req)
	if err != nil {
		return nil, err
	}
	model := modelFor(g.cfg, req)

	call := beginStream(ctx, g.cfg, req)
	resp, err := g.post(call.ctx, g.endpoint(model, "streamGenerateContent", true), body)
	if err != nil {
		return nil, call.fail(err)
	}

	return call.pump(g.opts.streamBuf, func(ctx context.Context, emit func(string) error) (*TokenUsage, error) {
		defer resp.Body.Close()
		var usage *TokenUsage
		err := readSSE(ctx, resp.Body, func(ev sseEvent) error {
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return &dferrors.BadResponseError{Provider: string(KindGemini), Reason: "decode chunk: " + err.Error()}
			}
			if chunk.Error != nil {
				return fromStatus(string(KindGemini), chunk.Error.Code, chunk.Error.Message, "", nil)
			}
			if chunk.UsageMetadata.TotalTokenCount > 0 {
				u := chunk.UsageMetadata.usage()
				usage = &u
			}
			return emit(chunk.text())
		})
		return usage, err
	}), nil
}

func (g *Gemini) endpoint(model, method string, sse bool) string {
	u := fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimRight(g.cfg.BaseURL, "/"), url.PathEscape(model), method)
	if sse {
		u += "?alt=sse"
	}
	return u
}

func (g *Gemini) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(string(KindGemini), err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError(string(KindGemini), resp)
	}
	return resp, nil
}

func (g *Gemini) buildBody(req CompletionRequest) ([]byte, error) {
	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokensFor(req),
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	for _, m := range req.Messages {
		role := "user"
		switch m.Role {
		case RoleAssistant:
			role = "model"
		case RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &geminiContent{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, geminiPart{Text: m.Content})
			continue
		}

		content := geminiContent{Role: role}
		for _, img := range m.Images {
			mime, b64, err := img.encoded()
			if err != nil {
				return nil, err
			}
			content.Parts = append(content.Parts, geminiPart{InlineData: &geminiBlob{MIMEType: mime, Data: b64}})
		}
		if m.Content != "" {
			content.Parts = append(content.Parts, geminiPart{Text: m.Content})
		}
		body.Contents = append(body.Contents, content)
	}
	return json.Marshal(body)
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata geminiUsage `json:"usageMetadata"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (u geminiUsage) usage() TokenUsage {
	return TokenUsage{
		InputTokens:  u.PromptTokenCount,
		OutputTokens: u.CandidatesTokenCount,
		TotalTokens:  u.TotalTokenCount,
	}
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r geminiResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return strings.ToLower(r.Candidates[0].FinishReason)
}
