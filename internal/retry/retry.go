// Package retry runs provider calls under a small typed retry policy: a predicate
// deciding which failures are transient and a linear, capped backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfrag/internal/domain"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second
	DefaultCapDelay    = 30 * time.Second
)

// Policy parameterizes Do.
type Policy struct {
	// MaxAttempts counts the first call too. Values below 1 mean a single attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration

	// Retryable reports whether a failure may be retried. Nil retries overloads only.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the overload policy: 5 attempts, 5s*attempt capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		CapDelay:    DefaultCapDelay,
	}
}

// Backoff returns min(BaseDelay*attempt, CapDelay) for the 1-based attempt that just failed.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(attempt)
	if p.CapDelay > 0 && d > p.CapDelay {
		d = p.CapDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return domain.IsOverloaded(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the attempt
// budget is spent. In the last case the returned error matches
// domain.ErrRetriesExhausted and still wraps the final cause.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return zero, err
		}
		last = err
		if attempt == attempts {
			break
		}
		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry wait interrupted after attempt %d: %w", attempt, err)
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempts, last)
}

// Call is Do with a per-attempt deadline. An attempt that runs into its own deadline
// while ctx is still live is treated as a provider overload and retried.
func Call[T any](ctx context.Context, p Policy, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return Do(ctx, p, func(ctx context.Context) (T, error) {
		if timeout <= 0 {
			return fn(ctx)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			var zero T
			return zero, &domain.ProviderError{
				Kind: domain.ProviderOverloaded,
				Err:  fmt.Errorf("call timed out after %s: %w", timeout, err),
			}
		}
		return v, err
	})
}

// Sleep blocks for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
