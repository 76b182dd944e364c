package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"stagehand/internal/logging"
)

// Checkpointer persists serialized workflow state keyed by workflow ID.
// The SQLite store satisfies this.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, workflowID string, version int, state []byte) error
	LoadCheckpoint(ctx context.Context, workflowID string) ([]byte, int, error)
}

// EncodeState serializes a workflow state for checkpointing.
func EncodeState(s *State) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow state: %w", err)
	}
	return data, nil
}

// DecodeState restores a workflow state from checkpoint bytes.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode workflow state: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("checkpoint has no workflow id")
	}
	return &s, nil
}

// checkpoint writes the current state durably. Failures become warnings
// rather than halting the workflow; the next advance writes again.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.checkpoints == nil {
		return
	}
	data, err := EncodeState(o.state)
	if err != nil {
		o.state.Warnings = append(o.state.Warnings, fmt.Sprintf("checkpoint encode failed: %v", err))
		return
	}
	if err := o.checkpoints.SaveCheckpoint(ctx, o.state.ID, o.state.Version, data); err != nil {
		logging.Get(logging.CategoryWorkflow).Warnf("Checkpoint save failed for %s: %v", o.state.ID, err)
		o.state.Warnings = append(o.state.Warnings, fmt.Sprintf("checkpoint save failed: %v", err))
	}
}

// rollback restores the last durable checkpoint, keeping the error and
// warning trail accumulated since.
func (o *Orchestrator) rollback(ctx context.Context) error {
	if o.checkpoints == nil {
		return fmt.Errorf("no checkpoint store configured")
	}
	data, _, err := o.checkpoints.LoadCheckpoint(ctx, o.state.ID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint for rollback: %w", err)
	}
	restored, err := DecodeState(data)
	if err != nil {
		return err
	}
	restored.Errors = o.state.Errors
	restored.Warnings = append(restored.Warnings, "rolled back to last checkpoint")
	o.state = restored
	logging.Workflow("Workflow %s rolled back to version %d", restored.ID, restored.Version)
	return nil
}
