package llm

import "context"

// Provider is a single-shot completion backend.
//
// Implementations must be safe for concurrent use and must wrap failures
// into the package error categories (ErrRateLimited, ErrTransient,
// ErrUnauthorized) so the client's retry policy can act on them.
type Provider interface {
	// Complete sends one system+user exchange and returns the full
	// response text.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// Name returns the provider name for logging.
	Name() string
}
