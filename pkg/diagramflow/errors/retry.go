package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a failed provider call is repeated and how
// long to wait between calls.
type RetryPolicy struct {
	// Attempts counts every call, the first included. Values below 1 mean 1.
	Attempts int

	// Wait is the delay before the first retry. Each later delay is doubled
	// up to MaxWait.
	Wait    time.Duration
	MaxWait time.Duration

	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64

	// Retryable overrides IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ProviderRetry allows one retry after the first provider call.
var ProviderRetry = RetryPolicy{
	Attempts: 2,
	Wait:     time.Second,
	MaxWait:  8 * time.Second,
	Jitter:   0.1,
}

// ForRetries returns ProviderRetry with room for the given number of
// retries. Negative counts mean none.
func ForRetries(retries int) RetryPolicy {
	p := ProviderRetry
	p.Attempts = max(retries, 0) + 1
	return p
}

// Retry calls fn until it succeeds, fails permanently, or the policy runs
// out of attempts. It returns the value, the number of calls made and the
// final error wrapped as a CategorizedError.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := max(p.Attempts, 1)
	wait := p.Wait

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, n - 1, stopped(err, n-1, "context cancelled")
		}

		v, err := fn(ctx)
		if err == nil {
			return v, n, nil
		}
		last = err
		if !retryable(err) {
			return zero, n, &CategorizedError{Err: err, Category: Categorize(err), Retries: n}
		}
		if n == attempts {
			break
		}

		d := spread(wait, p.Jitter)
		if p.OnRetry != nil {
			p.OnRetry(n, err, d)
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, n, stopped(ctx.Err(), n, "context cancelled during backoff")
		case <-t.C:
		}
		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}

	return zero, attempts, &CategorizedError{
		Err:      last,
		Category: Categorize(last),
		Retries:  attempts,
		Context:  "max retries exceeded",
	}
}

func stopped(err error, retries int, why string) error {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Retries: retries, Context: why}
}

func spread(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + jitter*(rand.Float64()*2-1)))
}
