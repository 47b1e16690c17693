package llm

import (
	"context"
)

// Custom serves a user-configured endpoint. Endpoints are assumed to be
// OpenAI-compatible; a host matching RawHostMatch is known to reject that
// request shape and is spoken to with the raw Anthropic-style wire format.
type Custom struct {
	cfg ProviderConfig
	sdk *OpenAI
	raw *Anthropic
}

// NewCustom creates a custom-endpoint client.
func NewCustom(cfg ProviderConfig, opts ...Option) *Custom {
	cfg.Kind = KindCustom
	cfg = cfg.WithDefaults()

	c := &Custom{cfg: cfg}
	if cfg.UsesRawHTTP() {
		c.raw = NewAnthropic(cfg, opts...)
	} else {
		c.sdk = NewOpenAI(cfg, opts...)
	}
	return c
}

// Kind implements Client.
func (c *Custom) Kind() Kind { return KindCustom }

// Raw reports whether the raw HTTP path is in use.
func (c *Custom) Raw() bool { return c.raw != nil }

// Complete implements Client.
func (c *Custom) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.raw != nil {
		return c.raw.Complete(ctx, req)
	}
	return c.sdk.Complete(ctx, req)
}

// Stream implements Client.
func (c *Custom) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if c.raw != nil {
		return c.raw.Stream(ctx, req)
	}
	return c.sdk.Stream(ctx, req)
}
