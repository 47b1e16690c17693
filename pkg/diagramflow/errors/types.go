package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a canvas session is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) category() Category { return statusCategory(e.StatusCode, CategoryPermanent) }

// ConfigError indicates that no usable provider configuration was found,
// or that a request carried invalid settings.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// ParseError indicates that JSON extraction exhausted every repair strategy.
type ParseError struct {
	// Input is a prefix of the text that failed to parse.
	Input string

	// Tried lists the strategies that were attempted, in order.
	Tried []string

	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("JSON parse error: %s", e.Message)
}

func (e *ParseError) category() Category { return CategoryBadOutput }

// ProviderError indicates a transport or API failure from an LLM provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: HTTP %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, msg)
}

func (e *ProviderError) category() Category { return statusCategory(e.StatusCode, CategoryTransient) }

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates the provider answered with a 429-equivalent.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited", e.Provider)
}

func (e *RateLimitError) category() Category { return CategoryTransient }

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

func (e *TimeoutError) category() Category { return CategoryTransient }

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// BadResponseError indicates an empty or non-textual provider response.
type BadResponseError struct {
	Provider string
	Reason   string
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("provider %s: bad response: %s", e.Provider, e.Reason)
}

func (e *BadResponseError) category() Category { return CategoryBadOutput }

// SessionNotFoundError reports a missing or expired canvas session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// Unwrap returns ErrSessionNotFound.
func (e *SessionNotFoundError) Unwrap() error {
	return ErrSessionNotFound
}

// SessionTooLargeError reports a save rejected by the size cap.
type SessionTooLargeError struct {
	SessionID string
	Size      int
	Limit     int
}

func (e *SessionTooLargeError) Error() string {
	return fmt.Sprintf("session %s too large: %d bytes exceeds limit of %d", e.SessionID, e.Size, e.Limit)
}
