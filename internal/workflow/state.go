// Package workflow drives a job through its capability-unit pipeline. The
// orchestrator is the only component that mutates WorkflowState; quality,
// handoff, and resilience components return decisions it applies.
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/handoff"
	"stagehand/internal/quality"
	"stagehand/internal/resilience"
	"stagehand/internal/types"
)

// Status is the workflow lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// Outcome summarizes one stage entry in history.
type Outcome string

const (
	OutcomePassed   Outcome = "passed"
	OutcomeFailed   Outcome = "failed"
	OutcomeDegraded Outcome = "degraded"
	OutcomeSkipped  Outcome = "skipped"
)

// AttemptRecord audits a single invocation inside one stage entry,
// including each retry distinctly.
type AttemptRecord struct {
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Error     string    `json:"error,omitempty"`
}

// HistoryEntry is the append-only record for one advance of a stage.
type HistoryEntry struct {
	Stage     string           `json:"stage"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Outcome   Outcome          `json:"outcome"`
	Quality   *quality.Result  `json:"quality,omitempty"`
	Attempts  []AttemptRecord  `json:"attempts,omitempty"`
	Tier      types.QualityTier `json:"tier,omitempty"`
}

// Artifact is one keyed piece of workflow output with its quality tier.
type Artifact struct {
	Content string            `json:"content"`
	Tier    types.QualityTier `json:"tier,omitempty"`
}

// State is the single mutable record for one workflow. It is created at
// start, mutated exclusively by the orchestrator, and persisted at every
// advance so a crashed run resumes from the last durable checkpoint.
type State struct {
	ID             string                 `json:"id"`
	Task           string                 `json:"task"`
	Status         Status                 `json:"status"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	CurrentStage   string                 `json:"current_stage"`
	Stages         []string               `json:"stages"`
	Artifacts      map[string]Artifact    `json:"artifacts"`
	History        []HistoryEntry         `json:"history"`
	Errors         []resilience.ErrorInfo `json:"errors,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	HandoffQueue   []*handoff.Request     `json:"handoff_queue,omitempty"`
	HandoffHistory []*handoff.Request     `json:"handoff_history,omitempty"`
	Version        int                    `json:"version"`
	Cancelled      bool                   `json:"cancelled"`
	FailReason     string                 `json:"fail_reason,omitempty"`
}

// NewState creates a running workflow positioned at the first stage.
func NewState(task string, stages []string, initialArtifacts map[string]string) (*State, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("workflow needs at least one stage")
	}
	now := time.Now().UTC()
	artifacts := make(map[string]Artifact, len(initialArtifacts))
	for kind, content := range initialArtifacts {
		artifacts[kind] = Artifact{Content: content, Tier: types.TierNormal}
	}
	return &State{
		ID:           uuid.New().String(),
		Task:         task,
		Status:       StatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
		CurrentStage: stages[0],
		Stages:       stages,
		Artifacts:    artifacts,
	}, nil
}

// StageIndex returns the position of the current stage in the pipeline,
// or -1 if the stage is not part of the declared set.
func (s *State) StageIndex() int {
	for i, stage := range s.Stages {
		if stage == s.CurrentStage {
			return i
		}
	}
	return -1
}

// NextStage returns the stage after the current one, or "" at the end.
func (s *State) NextStage() string {
	idx := s.StageIndex()
	if idx < 0 || idx+1 >= len(s.Stages) {
		return ""
	}
	return s.Stages[idx+1]
}

// ArtifactContents flattens artifacts to the kind -> content map handed
// to capability units.
func (s *State) ArtifactContents() map[string]string {
	out := make(map[string]string, len(s.Artifacts))
	for kind, a := range s.Artifacts {
		out[kind] = a.Content
	}
	return out
}

// Snapshot returns a deep copy safe to hand to callers.
func (s *State) Snapshot() *State {
	cp := *s
	cp.Stages = append([]string(nil), s.Stages...)
	cp.Artifacts = make(map[string]Artifact, len(s.Artifacts))
	for k, v := range s.Artifacts {
		cp.Artifacts[k] = v
	}
	cp.History = append([]HistoryEntry(nil), s.History...)
	cp.Errors = append([]resilience.ErrorInfo(nil), s.Errors...)
	cp.Warnings = append([]string(nil), s.Warnings...)
	cp.HandoffQueue = cloneRequests(s.HandoffQueue)
	cp.HandoffHistory = cloneRequests(s.HandoffHistory)
	return &cp
}

func cloneRequests(reqs []*handoff.Request) []*handoff.Request {
	if reqs == nil {
		return nil
	}
	out := make([]*handoff.Request, len(reqs))
	for i, r := range reqs {
		out[i] = r.Clone()
	}
	return out
}

// InvalidStateTransitionError reports an attempt to move a workflow out
// of a terminal status.
type InvalidStateTransitionError struct {
	WorkflowID string
	From       Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: workflow %s is %s", e.WorkflowID, e.From)
}
