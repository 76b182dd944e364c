package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"stagehand/internal/logging"
)

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// Retrier executes calls with bounded exponential backoff. One instance per
// capability unit, shared across concurrent stage executions.
type Retrier struct {
	mu     sync.Mutex
	policy RetryPolicy
	rng    *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error // injected for tests
}

// NewRetrier creates a retrier with the given policy.
func NewRetrier(policy RetryPolicy) *Retrier {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy().MaxDelay
	}
	return &Retrier{
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Do attempts call until it succeeds, the error is not retryable, or the
// retry budget is spent: at most MaxRetries+1 total attempts. Cancellation
// is checked before every backoff sleep.
func (r *Retrier) Do(ctx context.Context, source string, call func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}

		info := Classify(lastErr, source)
		if !Retryable(info.Category) {
			logging.ResilienceDebug("Not retrying %s error from %s: %v", info.Category, source, lastErr)
			return lastErr
		}
		if attempt >= r.policy.MaxRetries {
			logging.Resilience("Retry budget exhausted for %s after %d attempts", source, attempt+1)
			return lastErr
		}

		delay := r.backoff(attempt)
		logging.ResilienceDebug("Retrying %s in %v (attempt %d/%d): %v",
			source, delay, attempt+1, r.policy.MaxRetries, lastErr)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff computes min(base * 2^attempt, max) plus 0-10% jitter.
func (r *Retrier) backoff(attempt int) time.Duration {
	shift := attempt
	if shift > 16 {
		shift = 16
	}
	delay := r.policy.BaseDelay * time.Duration(1<<uint(shift))
	if delay > r.policy.MaxDelay || delay <= 0 {
		delay = r.policy.MaxDelay
	}

	r.mu.Lock()
	jitter := time.Duration(r.rng.Int63n(int64(delay)/10 + 1))
	r.mu.Unlock()
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
