package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ClientConfig tunes the retry policy.
type ClientConfig struct {
	// MaxAttempts bounds completion attempts per Generate call. Default 3.
	MaxAttempts int

	// BackoffBase is the initial retry delay, doubled per attempt.
	// Default 2s.
	BackoffBase time.Duration

	// RequestTimeout bounds a single attempt. Default 60s.
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the standard retry policy.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAttempts:    3,
		BackoffBase:    2 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Client is the single entry point for planning-model calls. It retries
// rate-limit and transient failures with exponential backoff and, on auth
// failure or retry exhaustion, degrades to the rule-based fallback so the
// caller never observes an unavailable model.
type Client struct {
	provider Provider
	tools    ToolLister
	cfg      ClientConfig
	logger   *slog.Logger
}

// NewClient creates a client. provider may be nil, in which case every
// Generate call answers from the fallback generator.
func NewClient(provider Provider, tools ToolLister, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, tools: tools, cfg: cfg, logger: logger}
}

// Generate answers prompt with the planning model. userIntent is the raw
// user message driving this turn; it seeds the fallback generator when the
// model is unavailable. The returned error is non-nil only on context
// cancellation.
func (c *Client) Generate(ctx context.Context, prompt, userIntent string) (string, error) {
	if c.provider == nil {
		return Fallback(userIntent), nil
	}

	system := ""
	if c.tools != nil {
		system = SystemPrompt(c.tools.Descriptors())
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff, base doubled per retry.
			delay := c.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		out, err := c.provider.Complete(attemptCtx, system, prompt)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if errors.Is(err, ErrUnauthorized) {
			c.logger.Warn("llm auth failure, using fallback", "provider", c.provider.Name())
			return Fallback(userIntent), nil
		}
		if !retryable(err) {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("llm attempt failed, retrying",
			"provider", c.provider.Name(),
			"attempt", attempt+1,
			"error", err,
		)
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	c.logger.Warn("llm unavailable after retries, using fallback",
		"provider", c.provider.Name(),
		"error", lastErr,
	)
	return Fallback(userIntent), nil
}
