// Package quality scores stage outputs and enforces configured quality
// gates. Gate checks are fail-closed: an enabled gate with no matching
// result counts as failed.
package quality

import (
	"fmt"
	"sort"

	"stagehand/internal/logging"
)

// GateStatus is the outcome of evaluating one stage output.
type GateStatus string

const (
	StatusPassed  GateStatus = "passed"
	StatusFailed  GateStatus = "failed"
	StatusPartial GateStatus = "partial"
)

// Severity grades a quality finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Result is the scored outcome for one stage attempt. Retained in workflow
// history for audit; only the most recent attempt's result feeds gates.
type Result struct {
	Status          GateStatus `json:"status"`
	Score           float64    `json:"score"` // 0-100
	Issues          []string   `json:"issues,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`
	Severity        Severity   `json:"severity"`
}

// Gate is one configured threshold check.
type Gate struct {
	ID         string  `json:"id" yaml:"id"`
	MetricType string  `json:"metric_type" yaml:"metric_type"`
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Blocking   bool    `json:"blocking" yaml:"blocking"`
}

// CheckGates evaluates every enabled gate against the per-metric results.
// A gate passes iff a result exists for its metric type and the score meets
// the threshold. Returns passed and failed gate IDs, each sorted for
// deterministic output.
func CheckGates(gates []Gate, results map[string]Result) (passed, failed []string) {
	for _, gate := range gates {
		if !gate.Enabled {
			continue
		}
		result, ok := results[gate.MetricType]
		if !ok {
			// Fail closed: no result for an enabled gate is a failure.
			failed = append(failed, gate.ID)
			logging.QualityDebug("Gate %s failed: no result for metric %s", gate.ID, gate.MetricType)
			continue
		}
		if result.Score >= gate.Threshold {
			passed = append(passed, gate.ID)
		} else {
			failed = append(failed, gate.ID)
			logging.QualityDebug("Gate %s failed: score %.1f below threshold %.1f",
				gate.ID, result.Score, gate.Threshold)
		}
	}
	sort.Strings(passed)
	sort.Strings(failed)
	return passed, failed
}

// BlockingFailures filters failed gate IDs to those configured as blocking.
// A non-empty return means the orchestrator must not advance the stage.
func BlockingFailures(gates []Gate, failedIDs []string) []string {
	blocking := make(map[string]bool, len(gates))
	for _, gate := range gates {
		if gate.Blocking {
			blocking[gate.ID] = true
		}
	}
	var out []string
	for _, id := range failedIDs {
		if blocking[id] {
			out = append(out, id)
		}
	}
	return out
}

// FailureReason renders a human-readable summary for a set of failed gates.
func FailureReason(failedIDs []string) string {
	if len(failedIDs) == 0 {
		return ""
	}
	return fmt.Sprintf("quality gates failed: %v", failedIDs)
}
