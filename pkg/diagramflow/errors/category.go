// Package errors defines the error kinds of diagram generation, how each
// kind is retried, and which status a transport answers with.
//
// Provider failures are sorted into three categories. Transient failures
// (rate limits, timeouts, 5xx) are retried by Retry. Bad output (unparseable
// or empty model text, HTTP 400) is not retried at the transport level but
// may be worth asking again. Everything else is permanent.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category says how a failure should be handled.
type Category int

const (
	CategoryTransient Category = iota
	CategoryPermanent
	CategoryBadOutput
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryBadOutput:
		return "bad_output"
	}
	return "unknown"
}

// categorized is implemented by error kinds that know their category.
type categorized interface {
	error
	category() Category
}

// CategorizedError records the category and attempt count of a failure
// that has left Retry.
type CategorizedError struct {
	Err      error
	Category Category
	Retries  int
	Context  string
}

func (e *CategorizedError) Error() string {
	msg := fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Retries)
	if e.Context != "" {
		return e.Context + ": " + msg
	}
	return msg
}

func (e *CategorizedError) Unwrap() error { return e.Err }

func (e *CategorizedError) category() Category { return e.Category }

// Categorize returns the category of the outermost kind in err's chain.
// A bare deadline is transient; anything unrecognized is permanent.
func Categorize(err error) Category {
	var c categorized
	switch {
	case err == nil:
		return CategoryPermanent
	case errors.As(err, &c):
		return c.category()
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}
	return CategoryPermanent
}

// IsRetryable reports whether Retry should try err again.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// statusCategory maps a provider status. unknown applies when the request
// never got a status back.
func statusCategory(status int, unknown Category) Category {
	switch {
	case status == 0:
		return unknown
	case status == 400:
		return CategoryBadOutput
	case status == 429, status >= 500:
		return CategoryTransient
	}
	return CategoryPermanent
}
