package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stagehand/internal/handoff"
	"stagehand/internal/logging"
	"stagehand/internal/quality"
	"stagehand/internal/resilience"
	"stagehand/internal/types"
)

// Directory is the view of the unit registry the orchestrator needs.
type Directory interface {
	Get(id string) (types.CapabilityUnit, bool)
	Units() []types.CapabilityUnit
	Enabled(id string) bool
}

// Options tunes one orchestrator instance.
type Options struct {
	Breaker         resilience.BreakerConfig
	Retry           resilience.RetryPolicy
	Gates           []quality.Gate
	Manifests       map[string]quality.Manifest
	MustSucceed     map[string]bool
	HandoffMinScore float64
	HandoffTTL      time.Duration
	EventBuffer     int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Breaker:     resilience.DefaultBreakerConfig(),
		Retry:       resilience.DefaultRetryPolicy(),
		EventBuffer: 64,
	}
}

// Orchestrator drives one workflow through its stages. It is the sole
// mutator of the workflow state; every collaborator returns decisions
// that are applied here under the mutex.
type Orchestrator struct {
	mu    sync.Mutex
	state *State

	dir         Directory
	breakers    *resilience.BreakerSet
	retrier     *resilience.Retrier
	degrader    *resilience.DegradationController
	strategist  *resilience.Strategist
	engine      *quality.Engine
	handoffs    *handoff.Manager
	gates       []quality.Gate
	mustSucceed map[string]bool
	checkpoints Checkpointer
	events      chan Event

	ctlMu         sync.Mutex
	paused        bool
	stopRequested bool
	inflight      context.CancelFunc
}

// NewOrchestrator builds an orchestrator for the given state. ctxStore
// may be nil; degraded-mode cached fallbacks are then unavailable.
func NewOrchestrator(state *State, dir Directory, ctxStore types.ContextStore, checkpoints Checkpointer, opts Options) *Orchestrator {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	hm := handoff.NewManager(dir)
	if opts.HandoffMinScore > 0 {
		hm.SetMinScore(opts.HandoffMinScore)
	}
	if opts.HandoffTTL > 0 {
		hm.SetTTL(opts.HandoffTTL)
	}
	return &Orchestrator{
		state:       state,
		dir:         dir,
		breakers:    resilience.NewBreakerSet(opts.Breaker),
		retrier:     resilience.NewRetrier(opts.Retry),
		degrader:    resilience.NewDegradationController(ctxStore),
		strategist:  resilience.NewStrategist(),
		engine:      quality.NewEngine(opts.Manifests),
		handoffs:    hm,
		gates:       opts.Gates,
		mustSucceed: opts.MustSucceed,
		checkpoints: checkpoints,
		events:      make(chan Event, opts.EventBuffer),
	}
}

// Degrader exposes the degradation controller for fallback registration.
func (o *Orchestrator) Degrader() *resilience.DegradationController { return o.degrader }

// Quality exposes the quality engine for heuristic registration.
func (o *Orchestrator) Quality() *quality.Engine { return o.engine }

// SetGates replaces the gate configuration, for example after a config
// hot reload. Takes effect from the next stage evaluation.
func (o *Orchestrator) SetGates(gates []quality.Gate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gates = gates
}

// State returns a snapshot of the current workflow state.
func (o *Orchestrator) State() *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Snapshot()
}

// SubmitHandoff queues a handoff request for processing after the current
// stage completes.
func (o *Orchestrator) SubmitHandoff(req *handoff.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Status.Terminal() {
		return "", &InvalidStateTransitionError{WorkflowID: o.state.ID, From: o.state.Status}
	}
	if req.ID == "" || req.Status != handoff.StatusPending {
		return "", fmt.Errorf("handoff request must be pending with an id")
	}
	o.state.HandoffQueue = append(o.state.HandoffQueue, req)
	logging.Handoff("Handoff queued for workflow %s: %s -> %s", o.state.ID, req.FromUnit, req.ToUnit)
	return req.ID, nil
}

// Advance runs the current stage once and applies the outcome. It is
// idempotent with respect to currentStage: a failed stage stays current
// and the next call retries it, while a crashed run resumes from the
// checkpoint instead of re-running completed stages.
func (o *Orchestrator) Advance(ctx context.Context) (*State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Status.Terminal() {
		return o.state.Snapshot(), &InvalidStateTransitionError{WorkflowID: o.state.ID, From: o.state.Status}
	}
	if o.isStopRequested() || o.state.Cancelled || ctx.Err() != nil {
		o.abort(ctx, "cancellation requested")
		return o.state.Snapshot(), nil
	}
	if o.isPaused() {
		return o.state.Snapshot(), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	o.setInflight(cancel)
	defer func() {
		cancel()
		o.setInflight(nil)
	}()

	stage := o.state.CurrentStage
	entry := HistoryEntry{Stage: stage, StartedAt: time.Now().UTC()}
	o.emit(EventStageStarted, stage, o.state.Task)
	timer := logging.StartTimer(logging.CategoryWorkflow, "advance "+stage)

	unit, ok := o.dir.Get(stage)
	switch {
	case !ok || !o.dir.Enabled(stage):
		err := &resilience.SystemError{Op: stage, Err: fmt.Errorf("no enabled capability unit for stage")}
		o.handleFailure(ctx, &entry, err)
	default:
		breaker := o.breakers.For(stage)
		if err := breaker.Allow(); err != nil {
			o.handleFailure(ctx, &entry, err)
		} else {
			result, callErr := o.invokeWithRetry(ctx, unit, o.unitContext(stage), breaker, &entry)
			switch {
			case o.isStopRequested():
				// Result discarded; cancellation was observed mid-call.
				entry.Outcome = OutcomeSkipped
				o.abortPending(&entry)
			case callErr != nil:
				o.handleFailure(ctx, &entry, callErr)
			default:
				o.applyResult(ctx, stage, result, &entry)
			}
		}
	}

	timer.Stop()
	entry.EndedAt = time.Now().UTC()
	o.state.History = append(o.state.History, entry)
	o.state.UpdatedAt = entry.EndedAt
	o.state.Version++
	o.checkpoint(ctx)
	return o.state.Snapshot(), nil
}

func (o *Orchestrator) invokeWithRetry(ctx context.Context, unit types.CapabilityUnit, uc types.UnitContext, breaker *resilience.Breaker, entry *HistoryEntry) (*types.UnitResult, error) {
	var result *types.UnitResult
	attempt := 0
	err := o.retrier.Do(ctx, uc.Stage, func(ctx context.Context) error {
		// The breaker may have opened on a previous attempt of this same
		// loop; CircuitOpenError is non-retryable, so this short-circuits
		// without invoking the unit again.
		if err := breaker.Allow(); err != nil {
			return err
		}
		attempt++
		uc.Attempt = attempt
		rec := AttemptRecord{Attempt: attempt, StartedAt: time.Now().UTC()}
		res, err := unit.Invoke(ctx, uc)
		rec.EndedAt = time.Now().UTC()
		if err != nil {
			rec.Error = err.Error()
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
			result = res
		}
		entry.Attempts = append(entry.Attempts, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) unitContext(stage string) types.UnitContext {
	return types.UnitContext{
		WorkflowID: o.state.ID,
		Stage:      stage,
		Task:       o.state.Task,
		Artifacts:  o.state.ArtifactContents(),
	}
}

// applyResult scores the stage output, checks its gates, and either
// advances the pipeline or routes the failure through recovery.
func (o *Orchestrator) applyResult(ctx context.Context, stage string, result *types.UnitResult, entry *HistoryEntry) {
	qr := o.engine.Evaluate(result, stage)
	entry.Quality = &qr
	entry.Tier = result.Tier

	gates := o.gatesFor(stage)
	results := make(map[string]quality.Result, len(gates))
	for _, g := range gates {
		results[g.MetricType] = qr
	}
	_, failedIDs := quality.CheckGates(gates, results)
	blocking := quality.BlockingFailures(gates, failedIDs)
	if len(blocking) > 0 {
		o.handleFailure(ctx, entry, &resilience.ValidationError{
			Reason: fmt.Sprintf("stage %s: %s (score %.1f)", stage, quality.FailureReason(blocking), qr.Score),
		})
		return
	}

	for _, id := range failedIDs {
		o.state.Warnings = append(o.state.Warnings, fmt.Sprintf("non-blocking gate %s failed at stage %s", id, stage))
	}

	o.mergeArtifacts(result)
	entry.Outcome = OutcomePassed
	o.emit(EventStagePassed, stage, fmt.Sprintf("score %.1f", qr.Score))

	if !o.drainHandoffs() {
		o.advanceStage()
	}
}

// gatesFor selects the gates that apply to a stage: those keyed by the
// stage id plus any global "overall" gates.
func (o *Orchestrator) gatesFor(stage string) []quality.Gate {
	var out []quality.Gate
	for _, g := range o.gates {
		if g.MetricType == stage || g.MetricType == "overall" {
			out = append(out, g)
		}
	}
	return out
}

func (o *Orchestrator) mergeArtifacts(result *types.UnitResult) {
	tier := result.Tier
	if tier == "" {
		tier = types.TierNormal
	}
	if o.state.Artifacts == nil {
		o.state.Artifacts = make(map[string]Artifact)
	}
	for kind, content := range result.Artifacts {
		o.state.Artifacts[kind] = Artifact{Content: content, Tier: tier}
	}
}

// drainHandoffs processes the queue and applies executed decisions.
// Returns true if a handoff moved the current stage.
func (o *Orchestrator) drainHandoffs() bool {
	st := o.state
	if len(st.HandoffQueue) == 0 {
		return false
	}
	decisions := o.handoffs.ProcessQueue(st.HandoffQueue)
	st.HandoffQueue = nil

	moved := false
	for i := range decisions {
		d := decisions[i]
		st.HandoffHistory = append(st.HandoffHistory, d.Request)
		switch d.Action {
		case handoff.ActionExecuted:
			for kind, content := range d.Artifacts {
				st.Artifacts[kind] = Artifact{Content: content, Tier: types.TierNormal}
			}
			st.CurrentStage = d.NextStage
			moved = true
			o.emit(EventHandoffExecuted, d.NextStage, d.Request.TaskDescription)
		case handoff.ActionRejected:
			st.Warnings = append(st.Warnings, fmt.Sprintf("handoff %s rejected: %s", d.Request.ID, d.Reason))
			o.emit(EventHandoffRejected, d.Request.ToUnit, d.Reason)
		case handoff.ActionExpired:
			st.Warnings = append(st.Warnings, fmt.Sprintf("handoff %s expired before execution", d.Request.ID))
		}
	}
	return moved
}

// handleFailure classifies the error, records it, and applies the
// strategist's decision. All stage-local errors terminate here; only
// escalation or failed rollback moves the workflow to FAILED.
func (o *Orchestrator) handleFailure(ctx context.Context, entry *HistoryEntry, cause error) {
	st := o.state
	stage := entry.Stage
	info := resilience.Classify(cause, stage)
	st.Errors = append(st.Errors, info)

	strategy, attempt := o.strategist.Decide(info)
	logging.Resilience("Stage %s failed (%s): applying %s", stage, info.Category, strategy)

	switch strategy {
	case resilience.StrategyRetry:
		// Stage stays current; the next advance retries it.
		entry.Outcome = OutcomeFailed
		o.emit(EventStageFailed, stage, info.Message)
		o.strategist.Complete(attempt.ID, resilience.RecoverySuccess)

	case resilience.StrategyFallback:
		// Only an explicitly registered fallback may substitute here, so a
		// failed blocking gate never advances on cached output alone.
		res, level := o.degrader.Apply(ctx, stage, o.unitContext(stage))
		if res != nil && level != resilience.LevelCritical {
			o.degradedAdvance(entry, res, info)
			o.strategist.Complete(attempt.ID, resilience.RecoverySuccess)
		} else {
			// Stage stays current for another try.
			entry.Outcome = OutcomeFailed
			o.emit(EventStageFailed, stage, info.Message)
			o.strategist.Complete(attempt.ID, resilience.RecoveryFailed)
		}

	case resilience.StrategyDegrade:
		res, level := o.degrader.ApplyCached(ctx, stage, o.unitContext(stage))
		switch {
		case res != nil && level != resilience.LevelCritical:
			o.degradedAdvance(entry, res, info)
			o.strategist.Complete(attempt.ID, resilience.RecoverySuccess)
		case !o.mustSucceed[stage]:
			entry.Outcome = OutcomeFailed
			st.Warnings = append(st.Warnings, fmt.Sprintf("stage %s failed critically, continuing: %s", stage, info.Message))
			o.emit(EventStageFailed, stage, info.Message)
			o.advanceStage()
			o.strategist.Complete(attempt.ID, resilience.RecoveryFailed)
		default:
			o.failWorkflow(entry, info)
			o.strategist.Complete(attempt.ID, resilience.RecoveryFailed)
		}

	case resilience.StrategyEscalate:
		o.failWorkflow(entry, info)
		o.strategist.Complete(attempt.ID, resilience.RecoveryFailed)

	case resilience.StrategyRollback:
		if err := o.rollback(ctx); err != nil {
			st.Warnings = append(st.Warnings, fmt.Sprintf("rollback failed: %v", err))
			o.failWorkflow(entry, info)
			o.strategist.Complete(attempt.ID, resilience.RecoveryFailed)
		} else {
			entry.Outcome = OutcomeFailed
			o.emit(EventStageFailed, stage, "rolled back to last checkpoint")
			o.strategist.Complete(attempt.ID, resilience.RecoverySuccess)
		}
	}
}

// degradedAdvance merges a substitute result and moves past the stage.
func (o *Orchestrator) degradedAdvance(entry *HistoryEntry, res *types.UnitResult, info resilience.ErrorInfo) {
	o.mergeArtifacts(res)
	entry.Outcome = OutcomeDegraded
	entry.Tier = res.Tier
	o.state.Warnings = append(o.state.Warnings, fmt.Sprintf("stage %s served degraded output: %s", entry.Stage, info.Message))
	o.emit(EventStageDegraded, entry.Stage, info.Message)
	o.advanceStage()
}

func (o *Orchestrator) advanceStage() {
	next := o.state.NextStage()
	if next == "" {
		o.state.Status = StatusCompleted
		logging.Workflow("Workflow %s completed", o.state.ID)
		o.emit(EventWorkflowCompleted, "", "all stages passed")
		return
	}
	o.state.CurrentStage = next
}

func (o *Orchestrator) failWorkflow(entry *HistoryEntry, info resilience.ErrorInfo) {
	entry.Outcome = OutcomeFailed
	o.state.Status = StatusFailed
	o.state.FailReason = info.Message
	logging.Workflow("Workflow %s failed at stage %s: %s", o.state.ID, entry.Stage, info.Message)
	o.emit(EventWorkflowFailed, entry.Stage, info.Message)
}

// abort moves the workflow to ABORTED and checkpoints the terminal state.
func (o *Orchestrator) abort(ctx context.Context, reason string) {
	o.state.Status = StatusAborted
	o.state.Cancelled = true
	o.state.FailReason = reason
	o.state.UpdatedAt = time.Now().UTC()
	o.state.Version++
	logging.Workflow("Workflow %s aborted: %s", o.state.ID, reason)
	o.emit(EventWorkflowAborted, o.state.CurrentStage, reason)
	o.checkpoint(ctx)
}

// abortPending marks the state aborted when cancellation was observed
// mid-advance; the caller finishes the history entry and checkpoint.
func (o *Orchestrator) abortPending(entry *HistoryEntry) {
	o.state.Status = StatusAborted
	o.state.Cancelled = true
	o.state.FailReason = "cancellation requested"
	logging.Workflow("Workflow %s aborted during stage %s", o.state.ID, entry.Stage)
	o.emit(EventWorkflowAborted, entry.Stage, "cancellation requested")
}
