package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyTypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		severity Severity
	}{
		{"transient timeout", &TransientError{Kind: CategoryTimeout, Err: errors.New("x")}, CategoryTimeout, SeverityLow},
		{"transient rate limit", &TransientError{Kind: CategoryRateLimit, Err: errors.New("x")}, CategoryRateLimit, SeverityLow},
		{"validation", &ValidationError{Reason: "bad"}, CategoryValidation, SeverityMedium},
		{"resource", &ResourceError{Kind: CategoryResourceExhaustion, Err: errors.New("x")}, CategoryResourceExhaustion, SeverityMedium},
		{"system", &SystemError{Op: "checkpoint", Err: errors.New("x")}, CategorySystem, SeverityHigh},
		{"state", &StateError{Detail: "bad stamp"}, CategoryStateCorruption, SeverityHigh},
		{"circuit open", &CircuitOpenError{Unit: "u"}, CategoryDependencyUnavailable, SeverityMedium},
		{"wrapped validation", fmt.Errorf("stage: %w", &ValidationError{Reason: "bad"}), CategoryValidation, SeverityMedium},
		{"deadline", context.DeadlineExceeded, CategoryTimeout, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.err, "unit-x")
			if info.Category != tt.category {
				t.Errorf("category = %s, want %s", info.Category, tt.category)
			}
			if info.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", info.Severity, tt.severity)
			}
			if info.ID == "" || info.Source != "unit-x" {
				t.Errorf("incomplete ErrorInfo: %+v", info)
			}
		})
	}
}

func TestClassifyHeuristics(t *testing.T) {
	tests := []struct {
		msg      string
		category Category
	}{
		{"request timeout after 30s", CategoryTimeout},
		{"too many requests", CategoryRateLimit},
		{"connection refused", CategoryNetwork},
		{"unauthorized: bad api key", CategoryAuthorization},
		{"invalid payload shape", CategoryInput},
		{"resource pool exhausted", CategoryResourceExhaustion},
		{"checkpoint file corrupted", CategoryStateCorruption},
		{"database is locked", CategoryPersistence},
		{"something novel happened", CategoryUnknown},
	}
	for _, tt := range tests {
		info := Classify(errors.New(tt.msg), "unit-x")
		if info.Category != tt.category {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, info.Category, tt.category)
		}
	}
}

func TestRetryableCategories(t *testing.T) {
	for _, cat := range []Category{CategoryNetwork, CategoryTimeout, CategoryRateLimit} {
		if !Retryable(cat) {
			t.Errorf("expected %s retryable", cat)
		}
	}
	for _, cat := range []Category{CategoryValidation, CategoryInput, CategoryAuthorization, CategorySystem, CategoryUnknown} {
		if Retryable(cat) {
			t.Errorf("expected %s not retryable", cat)
		}
	}
}

func TestDegradationEligible(t *testing.T) {
	if !DegradationEligible(CategoryResourceExhaustion) || !DegradationEligible(CategoryDependencyUnavailable) {
		t.Error("expected resource categories degradation-eligible")
	}
	if DegradationEligible(CategoryNetwork) {
		t.Error("network errors retry, not degrade")
	}
}
