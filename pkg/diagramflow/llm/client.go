// Package llm is the provider façade: one Client interface over Gemini,
// OpenAI-compatible, Anthropic and custom endpoints, with single-shot and
// streamed completion for both text and image input.
//
// Streams are finite channels of StreamChunk. The last chunk has Done set
// or carries an Error. Cancelling the context passed to Stream stops the
// upstream call.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// Client is the capability every provider variant implements.
// Image input is carried on Message.Images.
type Client interface {
	// Complete returns the full response text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream returns text deltas in emission order.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Kind names the provider family.
	Kind() Kind
}

// Kind is a provider family.
type Kind string

// Provider families.
const (
	KindGemini    Kind = "gemini"
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindCustom    Kind = "custom"
	KindMock      Kind = "mock"
)

// Valid reports whether k is a known family.
func (k Kind) Valid() bool {
	switch k {
	case KindGemini, KindOpenAI, KindAnthropic, KindCustom, KindMock:
		return true
	}
	return false
}

// DefaultRawHostMatch is the host substring that switches a custom endpoint
// to the raw Anthropic-style streaming path.
const DefaultRawHostMatch = "anthropic"

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model"`

	// Timeout is the total single-call timeout. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	// MaxRetries is the number of retries after a failed single-shot call.
	// Nil means 1 for SDK-backed providers and 0 for raw HTTP ones.
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries"`

	// RawHostMatch overrides DefaultRawHostMatch for custom endpoints.
	RawHostMatch string `json:"raw_host_match,omitempty" yaml:"raw_host_match"`
}

// Validate checks the fields required by the configured family.
func (c ProviderConfig) Validate() error {
	if !c.Kind.Valid() {
		return &dferrors.ConfigError{Field: "kind", Message: fmt.Sprintf("unknown provider %q", c.Kind)}
	}
	if c.Kind == KindMock {
		return nil
	}
	if c.APIKey == "" {
		return &dferrors.ConfigError{Field: "api_key", Message: fmt.Sprintf("%s requires an API key", c.Kind)}
	}
	if c.Kind == KindCustom && c.BaseURL == "" {
		return &dferrors.ConfigError{Field: "base_url", Message: "custom provider requires a base URL"}
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return &dferrors.ConfigError{Field: "base_url", Message: err.Error()}
		}
	}
	return nil
}

// WithDefaults fills the model, timeout and raw host marker.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.Model == "" {
		c.Model = DefaultModel(c.Kind)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RawHostMatch == "" {
		c.RawHostMatch = DefaultRawHostMatch
	}
	return c
}

// retries resolves MaxRetries for a transport.
func (c ProviderConfig) retries(sdk bool) int {
	if c.MaxRetries != nil {
		return min(max(*c.MaxRetries, 0), 2)
	}
	if sdk {
		return 1
	}
	return 0
}

// UsesRawHTTP reports whether a custom endpoint is served through the raw
// Anthropic-style path rather than the OpenAI-compatible SDK.
func (c ProviderConfig) UsesRawHTTP() bool {
	if c.Kind != KindCustom || c.BaseURL == "" {
		return false
	}
	marker := c.RawHostMatch
	if marker == "" {
		marker = DefaultRawHostMatch
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), strings.ToLower(marker))
}

// DefaultModel returns the model used when the caller names none.
func DefaultModel(kind Kind) string {
	switch kind {
	case KindGemini:
		return "gemini-2.0-flash"
	case KindOpenAI, KindCustom:
		return "gpt-4o-mini"
	case KindAnthropic:
		return "claude-3-5-sonnet-latest"
	}
	return ""
}

// Option configures provider construction.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	streamBuf  int
}

// WithHTTPClient sets the HTTP client used by every transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStreamBuffer sets the capacity of the stream channel.
func WithStreamBuffer(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.streamBuf = n
		}
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{
		httpClient: &http.Client{},
		logger:     slog.Default(),
		streamBuf:  64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates the Client for cfg.Kind.
func New(cfg ProviderConfig, opts ...Option) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	switch cfg.Kind {
	case KindGemini:
		return NewGemini(cfg, opts...), nil
	case KindOpenAI:
		return NewOpenAI(cfg, opts...), nil
	case KindAnthropic:
		return NewAnthropic(cfg, opts...), nil
	case KindCustom:
		return NewCustom(cfg, opts...), nil
	}
	return nil, &dferrors.ConfigError{Field: "kind", Message: fmt.Sprintf("provider %q cannot be constructed", cfg.Kind)}
}

// withTimeout applies the request or provider timeout to ctx.
func withTimeout(ctx context.Context, cfg ProviderConfig, req CompletionRequest) (context.Context, context.CancelFunc, time.Duration) {
	timeout := cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, timeout
}

// modelFor picks the request model over the configured one.
func modelFor(cfg ProviderConfig, req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return DefaultModel(cfg.Kind)
}

// maxTokensFor picks the request budget or MaxTokensDefault.
func maxTokensFor(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return MaxTokensDefault
}

// completeWithRetry runs a single-shot call under the total timeout and the
// configured retry budget.
func completeWithRetry(
	ctx context.Context,
	cfg ProviderConfig,
	logger *slog.Logger,
	req CompletionRequest,
	sdk bool,
	call func(context.Context) (*CompletionResponse, error),
) (*CompletionResponse, error) {
	start := time.Now()
	ctx, cancel, timeout := withTimeout(ctx, cfg, req)
	defer cancel()

	policy := dferrors.ForRetries(cfg.retries(sdk))
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("retrying provider call",
			slog.String("provider", string(cfg.Kind)),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}
	resp, _, err := dferrors.Retry(ctx, policy, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := call(ctx)
		if err != nil {
			return nil, classify(ctx, string(cfg.Kind), timeout, err)
		}
		if strings.TrimSpace(resp.Content) == "" {
			return nil, &dferrors.BadResponseError{Provider: string(cfg.Kind), Reason: "empty response"}
		}
		return resp, nil
	})
	if err != nil {
		return nil, classify(ctx, string(cfg.Kind), timeout, err)
	}
	resp.Duration = time.Since(start)
	return resp, nil
}
