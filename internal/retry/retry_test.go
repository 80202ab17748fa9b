package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdfrag/internal/domain"
)

var overloaded = &domain.ProviderError{Kind: domain.ProviderOverloaded, Status: 503, Err: errors.New("unavailable")}

func recordingPolicy(sleeps *[]time.Duration) Policy {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p
}

func TestBackoff_LinearAndCapped(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 25 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := p.Backoff(0); got != 5*time.Second {
		t.Fatalf("Backoff(0) = %v, want base delay", got)
	}
}

func TestDo_RetriesOverloadThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", overloaded
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(sleeps))
	}
	var total time.Duration
	for _, d := range sleeps {
		total += d
	}
	if total < p.BaseDelay*1+p.BaseDelay*2 {
		t.Fatalf("expected total wait >= %v, got %v", p.BaseDelay*3, total)
	}
}

func TestDo_RealClockDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, CapDelay: 30 * time.Millisecond}
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, overloaded
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected at least 30ms of backoff, got %v", elapsed)
	}
}

func TestDo_QuotaFailsFast(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)
	quota := &domain.ProviderError{Kind: domain.ProviderRateLimited, Status: 429, Err: errors.New("quota")}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, quota
	})
	if !domain.IsQuotaExceeded(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if calls != 1 || len(sleeps) != 0 {
		t.Fatalf("expected a single call and no waits, got %d calls, %d waits", calls, len(sleeps))
	}
}

func TestDo_OtherErrorNotRetried(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)
	boom := errors.New("boom")

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("non-retryable error must not be reported as exhausted")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustedIsDistinctError(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, overloaded
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != DefaultMaxAttempts {
		t.Fatalf("expected %d calls, got %d", DefaultMaxAttempts, calls)
	}
	if len(sleeps) != DefaultMaxAttempts-1 {
		t.Fatalf("expected %d waits, got %d", DefaultMaxAttempts-1, len(sleeps))
	}
}

func TestDo_CancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, CapDelay: time.Hour}
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	_, err := Do(ctx, p, func(context.Context) (int, error) { return 0, overloaded })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCall_TimeoutIsRetriedAsOverload(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)

	calls := 0
	got, err := Call(context.Background(), p, 5*time.Millisecond, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "late but fine", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "late but fine" || calls != 2 || len(sleeps) != 1 {
		t.Fatalf("got %q after %d calls and %d waits", got, calls, len(sleeps))
	}
}

func TestCall_TimeoutsExhaustRetries(t *testing.T) {
	var sleeps []time.Duration
	p := recordingPolicy(&sleeps)
	p.MaxAttempts = 2

	_, err := Call(context.Background(), p, time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestCall_ParentCancellationNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Call(ctx, DefaultPolicy(), time.Second, func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected a single cancelled call, got %d calls: %v", calls, err)
	}
}
