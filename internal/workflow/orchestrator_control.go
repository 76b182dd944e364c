package workflow

import (
	"context"

	"stagehand/internal/logging"
)

// Pause suspends stage execution. Advance becomes a no-op until Resume.
func (o *Orchestrator) Pause() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	o.paused = true
	logging.Workflow("Orchestrator paused")
}

// Resume lifts a pause.
func (o *Orchestrator) Resume() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	o.paused = false
	logging.Workflow("Orchestrator resumed")
}

// Stop requests cancellation. The in-flight stage call is cancelled and
// the next advance moves the workflow to ABORTED.
func (o *Orchestrator) Stop() {
	o.ctlMu.Lock()
	o.stopRequested = true
	cancel := o.inflight
	o.ctlMu.Unlock()
	if cancel != nil {
		cancel()
	}
	logging.Workflow("Orchestrator stop requested")
}

func (o *Orchestrator) isPaused() bool {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	return o.paused
}

func (o *Orchestrator) isStopRequested() bool {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	return o.stopRequested
}

func (o *Orchestrator) setInflight(cancel context.CancelFunc) {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	o.inflight = cancel
}

// Progress summarizes how far a workflow has advanced.
type Progress struct {
	WorkflowID   string `json:"workflow_id"`
	Status       Status `json:"status"`
	CurrentStage string `json:"current_stage"`
	StageIndex   int    `json:"stage_index"`
	TotalStages  int    `json:"total_stages"`
	Attempts     int    `json:"attempts"`
	Errors       int    `json:"errors"`
	Warnings     int    `json:"warnings"`
	Paused       bool   `json:"paused"`
}

// Progress reports the current position and error counts.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Progress{
		WorkflowID:   o.state.ID,
		Status:       o.state.Status,
		CurrentStage: o.state.CurrentStage,
		StageIndex:   o.state.StageIndex(),
		TotalStages:  len(o.state.Stages),
		Attempts:     len(o.state.History),
		Errors:       len(o.state.Errors),
		Warnings:     len(o.state.Warnings),
		Paused:       o.isPaused(),
	}
}
