package workflow

import (
	"time"

	"stagehand/internal/logging"
)

// EventKind labels a progress event.
type EventKind string

const (
	EventStageStarted      EventKind = "stage_started"
	EventStagePassed       EventKind = "stage_passed"
	EventStageFailed       EventKind = "stage_failed"
	EventStageDegraded     EventKind = "stage_degraded"
	EventHandoffExecuted   EventKind = "handoff_executed"
	EventHandoffRejected   EventKind = "handoff_rejected"
	EventWorkflowCompleted EventKind = "workflow_completed"
	EventWorkflowFailed    EventKind = "workflow_failed"
	EventWorkflowAborted   EventKind = "workflow_aborted"
)

// Event is a progress notification for observers.
type Event struct {
	Kind       EventKind `json:"kind"`
	WorkflowID string    `json:"workflow_id"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
}

// Events exposes the progress stream. The channel is buffered; slow
// consumers lose events rather than stalling the orchestrator.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) emit(kind EventKind, stage, message string) {
	e := Event{
		Kind:       kind,
		WorkflowID: o.state.ID,
		Stage:      stage,
		Message:    message,
		Time:       time.Now(),
	}
	select {
	case o.events <- e:
	default:
		logging.WorkflowDebug("Event channel full, dropping %s for %s", kind, o.state.ID)
	}
}
