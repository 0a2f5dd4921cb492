// Package llm is the single call surface for planner queries: one provider
// behind retry/backoff, with a deterministic rule-based fallback that keeps
// the agent loop operational when no model is reachable.
package llm

import "errors"

// Error categories used to drive the retry policy. Providers wrap their
// SDK errors into exactly one of these.
var (
	// ErrRateLimited maps HTTP 429; retried with backoff.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrTransient maps HTTP 5xx and network failures; retried.
	ErrTransient = errors.New("llm: transient failure")

	// ErrUnauthorized maps HTTP 401; never retried.
	ErrUnauthorized = errors.New("llm: unauthorized")

	// ErrNoProvider indicates the client was built without a backend.
	ErrNoProvider = errors.New("llm: no provider configured")
)

// retryable reports whether the error category warrants another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
