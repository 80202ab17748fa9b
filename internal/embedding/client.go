// Package embedding wraps a raw embedding provider with the overload retry policy.
package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/retry"
)

// Client is the embedding boundary used by the service. Overloads and per-call
// timeouts are retried with linear backoff, quota errors fail fast, anything else
// propagates immediately. Nothing is cached.
type Client struct {
	raw     domain.Embedder
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient wraps raw. A zero timeout leaves calls bounded only by the caller's context.
func NewClient(raw domain.Embedder, policy retry.Policy, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{raw: raw, policy: policy, timeout: timeout, logger: logger}
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	p := c.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("embedding provider overloaded, backing off",
			"attempt", attempt, "delay", delay, "err", err)
	}
	v, err := retry.Call(ctx, p, c.timeout, func(ctx context.Context) ([]float32, error) {
		v, err := c.raw.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return nil, &domain.ProviderError{Kind: domain.ProviderOther, Err: errors.New("empty embedding")}
		}
		return v, nil
	})
	if err != nil {
		if domain.IsQuotaExceeded(err) {
			c.logger.Error("embedding quota exhausted; retry later or upgrade the provider tier", "err", err)
		}
		return nil, err
	}
	c.logger.Debug("embedded text", "chars", len(text), "dim", len(v))
	return v, nil
}

// Prepare forwards the corpus to embedders that need it and is a no-op otherwise.
func (c *Client) Prepare(corpus []string) error {
	if p, ok := c.raw.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}
