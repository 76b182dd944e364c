package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(r *Retrier) *Retrier {
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestRetryBoundedAttempts(t *testing.T) {
	r := noSleep(NewRetrier(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}))

	calls := 0
	err := r.Do(context.Background(), "unit-x", func(ctx context.Context) error {
		calls++
		return &TransientError{Kind: CategoryTimeout, Err: errors.New("deadline")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Fatalf("expected maxRetries+1 = 4 attempts, got %d", calls)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	r := noSleep(NewRetrier(DefaultRetryPolicy()))

	calls := 0
	err := r.Do(context.Background(), "unit-x", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &TransientError{Kind: CategoryNetwork, Err: errors.New("conn reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryNonRetryableShortCircuits(t *testing.T) {
	r := noSleep(NewRetrier(DefaultRetryPolicy()))

	calls := 0
	err := r.Do(context.Background(), "unit-x", func(ctx context.Context) error {
		calls++
		return &ValidationError{Reason: "missing field"}
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt for non-retryable error, got %d", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	r := NewRetrier(RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	err := r.Do(ctx, "unit-x", func(ctx context.Context) error {
		calls++
		return &TransientError{Kind: CategoryRateLimit, Err: errors.New("429")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", calls)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	r := NewRetrier(RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second})

	for attempt := 0; attempt < 12; attempt++ {
		d := r.backoff(attempt)
		// Delay plus up to 10% jitter.
		if d > 5*time.Second+500*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v exceeds cap", attempt, d)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
		}
	}
}
