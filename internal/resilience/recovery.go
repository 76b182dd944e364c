package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/logging"
)

// Strategy is the chosen response to a classified failure.
type Strategy string

const (
	StrategyRetry    Strategy = "retry"
	StrategyFallback Strategy = "fallback"
	StrategyDegrade  Strategy = "degrade"
	StrategyEscalate Strategy = "escalate"
	StrategyRollback Strategy = "rollback"
)

// Strategist deterministically maps classified errors to recovery
// strategies and keeps the append-only RecoveryAttempt audit trail.
type Strategist struct {
	mu             sync.Mutex
	attempts       []RecoveryAttempt
	unknownRetried map[string]bool // source -> already granted one retry
}

// NewStrategist creates an empty strategist.
func NewStrategist() *Strategist {
	return &Strategist{
		unknownRetried: make(map[string]bool),
	}
}

// Decide selects the strategy for a classified error and opens an audit
// record. Every invocation appends a RecoveryAttempt regardless of how the
// chosen strategy turns out; callers report the result via Complete.
func (s *Strategist) Decide(info ErrorInfo) (Strategy, *RecoveryAttempt) {
	strategy := s.strategyFor(info)

	s.mu.Lock()
	attempt := RecoveryAttempt{
		ID:        uuid.New().String(),
		ErrorID:   info.ID,
		Strategy:  strategy,
		StartedAt: time.Now(),
	}
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()

	logging.Resilience("Recovery strategy for %s error from %s: %s", info.Category, info.Source, strategy)
	return strategy, &attempt
}

func (s *Strategist) strategyFor(info ErrorInfo) Strategy {
	switch info.Category {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit:
		return StrategyRetry
	case CategoryValidation, CategoryInput, CategoryAuthorization:
		return StrategyFallback
	case CategoryResourceExhaustion, CategoryDependencyUnavailable:
		return StrategyDegrade
	case CategorySystem, CategoryPersistence:
		return StrategyEscalate
	case CategoryStateCorruption:
		return StrategyRollback
	}

	// Unknown categories get one retry per source, then escalate.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unknownRetried[info.Source] {
		return StrategyEscalate
	}
	s.unknownRetried[info.Source] = true
	return StrategyRetry
}

// Complete closes the audit record for an attempt.
func (s *Strategist) Complete(attemptID string, status RecoveryOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		if s.attempts[i].ID == attemptID {
			s.attempts[i].Status = status
			s.attempts[i].DurationMs = time.Since(s.attempts[i].StartedAt).Milliseconds()
			return
		}
	}
}

// Attempts returns a copy of the audit trail.
func (s *Strategist) Attempts() []RecoveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecoveryAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
