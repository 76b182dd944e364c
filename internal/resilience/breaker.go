package resilience

import (
	"sync"
	"time"

	"stagehand/internal/logging"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	OpenTimeout      time.Duration // wait before allowing a half-open probe
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker is a per-capability-unit failure gate. One instance guards each
// unit and is shared across concurrent stage executions; all state access
// is serialized on the mutex.
type Breaker struct {
	mu sync.Mutex

	unit   string
	config BreakerConfig

	state         BreakerState
	failureCount  int
	lastFailureAt time.Time
	nextAttemptAt time.Time

	now func() time.Time // injected for tests
}

// NewBreaker creates a closed breaker for the named unit.
func NewBreaker(unit string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	return &Breaker{
		unit:   unit,
		config: config,
		state:  BreakerClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. While OPEN and before the
// probe window it returns *CircuitOpenError without invoking the unit;
// once the open timeout has elapsed the breaker moves to HALF_OPEN and
// admits a single probe call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return nil
	case BreakerOpen:
		if b.now().Before(b.nextAttemptAt) {
			return &CircuitOpenError{Unit: b.unit, RetryAt: b.nextAttemptAt}
		}
		b.state = BreakerHalfOpen
		logging.Resilience("Breaker for unit %s entering half-open probe", b.unit)
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker after a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		logging.Resilience("Breaker for unit %s closing after successful probe", b.unit)
	}
	b.state = BreakerClosed
	b.failureCount = 0
}

// RecordFailure counts a failed call and opens the breaker at threshold.
// A failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = b.now()

	if b.state == BreakerHalfOpen || b.failureCount >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.nextAttemptAt = b.lastFailureAt.Add(b.config.OpenTimeout)
		logging.Resilience("Breaker for unit %s opened (failures=%d, next attempt %s)",
			b.unit, b.failureCount, b.nextAttemptAt.Format(time.RFC3339))
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset is the explicit administrative override; no other caller resets a
// breaker externally.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.nextAttemptAt = time.Time{}
	logging.Resilience("Breaker for unit %s reset by administrative override", b.unit)
}

// BreakerSet owns one breaker per capability unit.
type BreakerSet struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty breaker registry with shared config.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for a unit, creating it on first use.
func (s *BreakerSet) For(unit string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[unit]; ok {
		return b
	}
	b := NewBreaker(unit, s.config)
	s.breakers[unit] = b
	return b
}
