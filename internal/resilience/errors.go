// Package resilience implements the failure-handling layer: error
// classification, per-unit circuit breakers, bounded retry with backoff,
// degradation fallbacks, and recovery strategy selection.
package resilience

import (
	"fmt"
	"time"
)

// Category buckets a failure for retry/degrade/escalate policy.
type Category string

const (
	CategoryNetwork               Category = "network"
	CategoryTimeout               Category = "timeout"
	CategoryRateLimit             Category = "rate_limit"
	CategoryValidation            Category = "validation"
	CategoryInput                 Category = "input"
	CategoryAuthorization         Category = "authorization"
	CategoryResourceExhaustion    Category = "resource_exhaustion"
	CategoryDependencyUnavailable Category = "dependency_unavailable"
	CategorySystem                Category = "system"
	CategoryPersistence           Category = "persistence"
	CategoryStateCorruption       Category = "state_corruption"
	CategoryUnknown               Category = "unknown"
)

// Severity grades how badly a failure impacts the workflow.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ErrorInfo is the append-only audit record for one classified failure.
type ErrorInfo struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// RecoveryAttempt records one invocation of the recovery strategist.
type RecoveryAttempt struct {
	ID         string          `json:"id"`
	ErrorID    string          `json:"error_id"`
	Strategy   Strategy        `json:"strategy"`
	Status     RecoveryOutcome `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
}

// RecoveryOutcome is the terminal status of a recovery attempt.
type RecoveryOutcome string

const (
	RecoverySuccess RecoveryOutcome = "success"
	RecoveryFailed  RecoveryOutcome = "failed"
)

// TransientError wraps a failure expected to clear on retry (network,
// timeout, rate-limit).
type TransientError struct {
	Kind Category
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError indicates bad input or configuration. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// ResourceError indicates exhaustion or an unavailable dependency.
// Degradation-eligible.
type ResourceError struct {
	Kind Category
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource error (%s): %v", e.Kind, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// SystemError indicates a persistence failure or internal invariant
// violation. Escalated to the caller as a job-level failure.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error in %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// StateError indicates workflow state corruption. Triggers rollback to the
// last good checkpoint.
type StateError struct {
	Detail string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state corruption: %s", e.Detail)
}

// CircuitOpenError is returned when a call is refused because the target
// unit's breaker is open.
type CircuitOpenError struct {
	Unit    string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for unit %q until %s", e.Unit, e.RetryAt.Format(time.RFC3339))
}
