package llm

import (
	"time"
)

// Output budgets. Short covers scripts and summaries, default covers flow
// and architecture JSON, long covers Excalidraw scenes and large canvases.
const (
	MaxTokensShort   = 2000
	MaxTokensDefault = 4096
	MaxTokensLong    = 16384
)

// Call timeouts. Vision and Excalidraw calls produce much more output than
// a flow diagram and get longer deadlines.
const (
	DefaultTimeout    = 120 * time.Second
	VisionTimeout     = 300 * time.Second
	ExcalidrawTimeout = 180 * time.Second
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CompletionRequest is one provider call. Every variant receives the same
// request; each maps SystemPrompt and Messages onto its own wire shape.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	// Model overrides the preset model. Empty uses the preset.
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// Timeout replaces the preset timeout when positive.
	Timeout time.Duration `json:"-"`
}

type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Image holds raw bytes; an empty MIME is sniffed with DetectMIME.
type Image struct {
	Data []byte
	MIME string
}

// UserText is a system prompt plus one user turn.
func UserText(system, prompt string) CompletionRequest {
	return UserImage(system, prompt)
}

// UserImage is UserText with images attached to the user turn.
func UserImage(system, prompt string, images ...[]byte) CompletionRequest {
	msg := Message{Role: RoleUser, Content: prompt}
	for _, b := range images {
		msg.Images = append(msg.Images, Image{Data: b})
	}
	return CompletionRequest{SystemPrompt: system, Messages: []Message{msg}}
}

// HasImages reports whether the request needs a multimodal payload.
func (r CompletionRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

type CompletionResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
	Model   string     `json:"model"`

	// FinishReason is the provider's stop reason as sent ("stop",
	// "length", "max_tokens", "MAX_TOKENS"...). A length stop means the
	// JSON is probably truncated.
	FinishReason string        `json:"finish_reason"`
	Duration     time.Duration `json:"duration"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates o into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
}

// StreamChunk is one delta of a streamed response. The last chunk has Done
// set and carries Usage when the provider reports it; a failed stream ends
// with a chunk whose Error is set.
type StreamChunk struct {
	Content string      `json:"content,omitempty"`
	Usage   *TokenUsage `json:"usage,omitempty"`
	Done    bool        `json:"done"`
	Error   error       `json:"-"`
}
