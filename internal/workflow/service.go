package workflow

import (
	"context"
	"fmt"
	"sync"

	"stagehand/internal/handoff"
	"stagehand/internal/logging"
	"stagehand/internal/types"
)

// Service is the external surface of the core: start a workflow, advance
// it, submit handoffs. Orchestrators are cached per workflow and rebuilt
// from checkpoints on resume.
type Service struct {
	mu          sync.Mutex
	dir         Directory
	ctxStore    types.ContextStore
	checkpoints Checkpointer
	stages      []string
	opts        Options
	active      map[string]*Orchestrator
}

// NewService wires the service over a unit directory, optional context
// store, and checkpoint store.
func NewService(dir Directory, ctxStore types.ContextStore, checkpoints Checkpointer, stages []string, opts Options) *Service {
	return &Service{
		dir:         dir,
		ctxStore:    ctxStore,
		checkpoints: checkpoints,
		stages:      stages,
		opts:        opts,
		active:      make(map[string]*Orchestrator),
	}
}

// StartWorkflow creates a new workflow positioned at the first stage and
// writes its initial checkpoint.
func (s *Service) StartWorkflow(ctx context.Context, task string, initialArtifacts map[string]string) (string, error) {
	state, err := NewState(task, s.stages, initialArtifacts)
	if err != nil {
		return "", err
	}

	o := NewOrchestrator(state, s.dir, s.ctxStore, s.checkpoints, s.opts)

	s.mu.Lock()
	s.active[state.ID] = o
	s.mu.Unlock()

	if s.checkpoints != nil {
		data, err := EncodeState(state)
		if err != nil {
			return "", err
		}
		if err := s.checkpoints.SaveCheckpoint(ctx, state.ID, state.Version, data); err != nil {
			return "", fmt.Errorf("failed to write initial checkpoint: %w", err)
		}
	}

	logging.Workflow("Workflow %s started: %s", state.ID, task)
	return state.ID, nil
}

// Advance runs one step of the workflow. Safe to poll; resuming after a
// restart rebuilds the orchestrator from the last checkpoint.
func (s *Service) Advance(ctx context.Context, workflowID string) (*State, error) {
	o, err := s.orchestrator(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return o.Advance(ctx)
}

// SubmitHandoff queues a handoff request and returns its ID.
func (s *Service) SubmitHandoff(ctx context.Context, workflowID string, req *handoff.Request) (string, error) {
	o, err := s.orchestrator(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return o.SubmitHandoff(req)
}

// Get returns a snapshot of the workflow state.
func (s *Service) Get(ctx context.Context, workflowID string) (*State, error) {
	o, err := s.orchestrator(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return o.State(), nil
}

// Stop requests cancellation of a workflow.
func (s *Service) Stop(ctx context.Context, workflowID string) error {
	o, err := s.orchestrator(ctx, workflowID)
	if err != nil {
		return err
	}
	o.Stop()
	return nil
}

// Orchestrator returns the live orchestrator for a workflow, loading it
// from its checkpoint if it is not already active.
func (s *Service) Orchestrator(ctx context.Context, workflowID string) (*Orchestrator, error) {
	return s.orchestrator(ctx, workflowID)
}

func (s *Service) orchestrator(ctx context.Context, workflowID string) (*Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.active[workflowID]; ok {
		return o, nil
	}
	if s.checkpoints == nil {
		return nil, fmt.Errorf("unknown workflow %s", workflowID)
	}

	data, _, err := s.checkpoints.LoadCheckpoint(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to resume workflow %s: %w", workflowID, err)
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, err
	}

	o := NewOrchestrator(state, s.dir, s.ctxStore, s.checkpoints, s.opts)
	s.active[workflowID] = o
	logging.Workflow("Workflow %s resumed at stage %s", workflowID, state.CurrentStage)
	return o, nil
}
