package workflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"stagehand/internal/logging"
	"stagehand/internal/quality"
	"stagehand/internal/resilience"
	"stagehand/internal/types"
)

// AdvanceParallel runs a set of independent stages concurrently. Each
// stage commits its result through an optimistic version check: the
// worker reads the state under the mutex, invokes its unit outside it,
// then merges per artifact key so concurrent commits never clobber
// unrelated keys. The current pipeline stage does not move; callers use
// Advance for pipeline progression.
func (o *Orchestrator) AdvanceParallel(ctx context.Context, stages []string) (*State, error) {
	o.mu.Lock()
	if o.state.Status.Terminal() {
		defer o.mu.Unlock()
		return o.state.Snapshot(), &InvalidStateTransitionError{WorkflowID: o.state.ID, From: o.state.Status}
	}
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range stages {
		stage := stage
		g.Go(func() error {
			o.runParallelStage(gctx, stage)
			// Stage failures are recorded in state, not group-fatal.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.UpdatedAt = time.Now().UTC()
	o.checkpoint(ctx)
	return o.state.Snapshot(), nil
}

func (o *Orchestrator) runParallelStage(ctx context.Context, stage string) {
	entry := HistoryEntry{Stage: stage, StartedAt: time.Now().UTC()}
	uc, readVersion := o.readContext(stage)
	o.emit(EventStageStarted, stage, uc.Task)

	unit, ok := o.dir.Get(stage)
	if !ok || !o.dir.Enabled(stage) {
		err := &resilience.SystemError{Op: stage, Err: fmt.Errorf("no enabled capability unit for stage")}
		o.commitParallel(stage, readVersion, nil, err, &entry)
		return
	}

	breaker := o.breakers.For(stage)
	if err := breaker.Allow(); err != nil {
		o.commitParallel(stage, readVersion, nil, err, &entry)
		return
	}
	result, err := o.invokeWithRetry(ctx, unit, uc, breaker, &entry)
	o.commitParallel(stage, readVersion, result, err, &entry)
}

// readContext snapshots the unit input along with the version stamp the
// commit will be checked against.
func (o *Orchestrator) readContext(stage string) (types.UnitContext, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unitContext(stage), o.state.Version
}

// commitParallel applies one stage outcome under the mutex. A version
// stamp moved by a concurrent commit only means the merge is recomputed
// against the current state, which the per-key artifact write already
// is: last committer wins per key, unrelated keys untouched.
func (o *Orchestrator) commitParallel(stage string, readVersion int, result *types.UnitResult, cause error, entry *HistoryEntry) {
	entry.EndedAt = time.Now().UTC()
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Version != readVersion {
		logging.WorkflowDebug("Stage %s commit after version moved %d -> %d, re-merging", stage, readVersion, o.state.Version)
	}

	switch {
	case cause != nil:
		info := resilience.Classify(cause, stage)
		o.state.Errors = append(o.state.Errors, info)
		entry.Outcome = OutcomeFailed
		o.emit(EventStageFailed, stage, info.Message)
	default:
		qr := o.engine.Evaluate(result, stage)
		entry.Quality = &qr
		entry.Tier = result.Tier
		gates := o.gatesFor(stage)
		results := make(map[string]quality.Result, len(gates))
		for _, g := range gates {
			results[g.MetricType] = qr
		}
		_, failedIDs := quality.CheckGates(gates, results)
		if blocking := quality.BlockingFailures(gates, failedIDs); len(blocking) > 0 {
			info := resilience.Classify(&resilience.ValidationError{
				Reason: fmt.Sprintf("stage %s: %s (score %.1f)", stage, quality.FailureReason(blocking), qr.Score),
			}, stage)
			o.state.Errors = append(o.state.Errors, info)
			entry.Outcome = OutcomeFailed
			o.emit(EventStageFailed, stage, info.Message)
		} else {
			o.mergeArtifacts(result)
			entry.Outcome = OutcomePassed
			o.emit(EventStagePassed, stage, fmt.Sprintf("score %.1f", qr.Score))
		}
	}

	o.state.History = append(o.state.History, *entry)
	o.state.Version++
}
