package errors

import (
	"context"
	"errors"
	"net/http"
)

// HTTPStatus maps an error kind to the status code a transport should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		parseErr    *ParseError
		configErr   *ConfigError
		tooLarge    *SessionTooLargeError
		rateErr     *RateLimitError
		timeoutErr  *TimeoutError
		providerErr *ProviderError
		badErr      *BadResponseError
	)

	switch {
	case errors.As(err, &parseErr), errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rateErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &providerErr), errors.As(err, &badErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
