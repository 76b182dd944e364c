package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Classify maps a failure to an ErrorInfo audit record. Typed errors take
// precedence; everything else falls back to message heuristics.
func Classify(err error, source string) ErrorInfo {
	info := ErrorInfo{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Source:    source,
	}
	if err == nil {
		info.Category = CategoryUnknown
		info.Severity = SeverityLow
		return info
	}
	info.Message = err.Error()
	info.Category = categorize(err)
	info.Severity = severityFor(info.Category)
	return info
}

func categorize(err error) Category {
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.Kind
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return CategoryValidation
	}
	var resource *ResourceError
	if errors.As(err, &resource) {
		return resource.Kind
	}
	var system *SystemError
	if errors.As(err, &system) {
		return CategorySystem
	}
	var state *StateError
	if errors.As(err, &state) {
		return CategoryStateCorruption
	}
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return CategoryDependencyUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	// Heuristic bucketing for errors from external collaborators.
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "context deadline", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(msg, "rate limit", "too many requests", "quota"):
		return CategoryRateLimit
	case containsAny(msg, "connection", "network", "unavailable", "temporar", "i/o", "eof"):
		return CategoryNetwork
	case containsAny(msg, "unauthorized", "forbidden", "permission", "api key"):
		return CategoryAuthorization
	case containsAny(msg, "invalid", "malformed", "missing required"):
		return CategoryInput
	case containsAny(msg, "out of memory", "exhausted", "resource"):
		return CategoryResourceExhaustion
	case containsAny(msg, "corrupt"):
		return CategoryStateCorruption
	case containsAny(msg, "database", "disk", "persist"):
		return CategoryPersistence
	}
	return CategoryUnknown
}

func severityFor(cat Category) Severity {
	switch cat {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit:
		return SeverityLow
	case CategoryValidation, CategoryInput, CategoryAuthorization,
		CategoryResourceExhaustion, CategoryDependencyUnavailable:
		return SeverityMedium
	case CategorySystem, CategoryPersistence, CategoryStateCorruption:
		return SeverityHigh
	}
	return SeverityMedium
}

// Retryable reports whether a category is worth retrying at all.
func Retryable(cat Category) bool {
	switch cat {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit:
		return true
	}
	return false
}

// DegradationEligible reports whether a category should be handled by the
// degradation controller once retries exhaust.
func DegradationEligible(cat Category) bool {
	switch cat {
	case CategoryResourceExhaustion, CategoryDependencyUnavailable:
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
