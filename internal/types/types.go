// Package types provides shared type definitions used across stagehand packages.
// This package exists to break import cycles between the orchestrator, the
// capability units, and the resilience layer. Types here are foundational data
// structures with no complex dependencies.
package types

import (
	"time"
)

// QualityTier marks how an artifact was produced. Downstream consumers can
// distinguish normal outputs from degraded-mode fallbacks.
type QualityTier string

const (
	TierNormal   QualityTier = "normal"
	TierDegraded QualityTier = "degraded"
	TierCached   QualityTier = "cached"
)

// Artifact is a single keyed piece of workflow output.
type Artifact struct {
	ID        string      `json:"id,omitempty"`
	Kind      string      `json:"kind"`
	Content   string      `json:"content"`
	Tier      QualityTier `json:"tier,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// UnitContext is the input handed to a capability unit for one stage attempt.
type UnitContext struct {
	WorkflowID  string            `json:"workflow_id"`
	Stage       string            `json:"stage"`
	Task        string            `json:"task"`
	Artifacts   map[string]string `json:"artifacts"`
	PriorOutput string            `json:"prior_output,omitempty"`
	Attempt     int               `json:"attempt"`
}

// UnitResult is what a capability unit returns from one invocation.
type UnitResult struct {
	Output    string            `json:"output"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Tier      QualityTier       `json:"tier,omitempty"`
}
