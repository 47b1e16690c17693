package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	dferrors "github.com/randalmurphal/diagramflow/pkg/diagramflow/errors"
)

// classify maps deadline expiry to TimeoutError and leaves typed errors alone.
func classify(ctx context.Context, provider string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var te *dferrors.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &dferrors.TimeoutError{Operation: provider, Duration: timeout}
	}
	return err
}

// statusError converts a non-2xx response into a typed error. The body is
// read up to 4 KiB for the message.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fromStatus(provider, resp.StatusCode, msg, resp.Header.Get("Retry-After"), nil)
}

// fromStatus builds a RateLimitError for 429 and a ProviderError otherwise.
func fromStatus(provider string, status int, msg, retryAfter string, cause error) error {
	if status == http.StatusTooManyRequests {
		return &dferrors.RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(retryAfter)}
	}
	return &dferrors.ProviderError{Provider: provider, StatusCode: status, Message: msg, Err: cause}
}

// transportError wraps a failed round trip.
func transportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &dferrors.ProviderError{Provider: provider, Message: "request failed", Err: err}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}
