package resilience

import (
	"context"
	"sync"

	"stagehand/internal/logging"
	"stagehand/internal/types"
)

// DegradationLevel describes how much functionality remains.
type DegradationLevel string

const (
	LevelNormal   DegradationLevel = "normal"
	LevelDegraded DegradationLevel = "degraded"
	LevelCritical DegradationLevel = "critical"
)

// FallbackFunc produces a reduced-functionality substitute result for a
// stage whose primary path has exhausted its retries.
type FallbackFunc func(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error)

// DegradationController selects a fallback when retries exhaust for a
// degradation-eligible error. With a registered fallback the stage runs at
// DEGRADED; without one the stage fails at CRITICAL and the orchestrator
// decides whether the workflow continues.
type DegradationController struct {
	mu        sync.RWMutex
	fallbacks map[string]FallbackFunc
	store     types.ContextStore
}

// NewDegradationController creates a controller. store may be nil; when set
// it backs the default cached-artifact fallback.
func NewDegradationController(store types.ContextStore) *DegradationController {
	return &DegradationController{
		fallbacks: make(map[string]FallbackFunc),
		store:     store,
	}
}

// RegisterFallback installs a stage-specific fallback operation.
func (d *DegradationController) RegisterFallback(stage string, fn FallbackFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallbacks[stage] = fn
}

// Apply attempts degraded-mode execution through the fallback registered
// for the stage. It returns the substitute result and LevelDegraded on
// success, or nil and LevelCritical when no registered fallback can serve.
// Stages without a registered fallback always come back critical; the
// cached-artifact default is reserved for ApplyCached so that substituting
// stale output is an explicit opt-in per recovery strategy.
func (d *DegradationController) Apply(ctx context.Context, stage string, uc types.UnitContext) (*types.UnitResult, DegradationLevel) {
	d.mu.RLock()
	fn, ok := d.fallbacks[stage]
	d.mu.RUnlock()

	if !ok {
		return nil, LevelCritical
	}
	return d.run(ctx, stage, fn, uc)
}

// ApplyCached behaves like Apply but falls back to serving the most
// relevant cached artifact from the context store when the stage has no
// registered fallback.
func (d *DegradationController) ApplyCached(ctx context.Context, stage string, uc types.UnitContext) (*types.UnitResult, DegradationLevel) {
	d.mu.RLock()
	fn, ok := d.fallbacks[stage]
	d.mu.RUnlock()

	if !ok {
		fn = d.cachedArtifactFallback
	}
	return d.run(ctx, stage, fn, uc)
}

func (d *DegradationController) run(ctx context.Context, stage string, fn FallbackFunc, uc types.UnitContext) (*types.UnitResult, DegradationLevel) {
	result, err := fn(ctx, uc)
	if err != nil || result == nil {
		logging.Resilience("Fallback for stage %s failed, marking critical: %v", stage, err)
		return nil, LevelCritical
	}
	if result.Tier == "" || result.Tier == types.TierNormal {
		result.Tier = types.TierDegraded
	}
	logging.Resilience("Stage %s continuing in degraded mode", stage)
	return result, LevelDegraded
}

// cachedArtifactFallback serves the most relevant prior artifact from the
// context store as a degraded substitute for fresh generation.
func (d *DegradationController) cachedArtifactFallback(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
	if d.store == nil {
		return nil, &ResourceError{Kind: CategoryDependencyUnavailable, Err: errNoFallback}
	}
	artifacts, err := d.store.Search(ctx, uc.Task, 1)
	if err != nil || len(artifacts) == 0 {
		return nil, &ResourceError{Kind: CategoryDependencyUnavailable, Err: errNoFallback}
	}
	kind := artifacts[0].Kind
	if kind == "" {
		kind = uc.Stage
	}
	return &types.UnitResult{
		Output:    artifacts[0].Content,
		Artifacts: map[string]string{kind: artifacts[0].Content},
		Tier:      types.TierCached,
	}, nil
}

var errNoFallback = &ValidationError{Reason: "no fallback available"}
