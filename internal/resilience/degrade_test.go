package resilience

import (
	"context"
	"errors"
	"testing"

	"stagehand/internal/types"
)

type stubContextStore struct {
	artifacts []types.Artifact
	err       error
}

func (s *stubContextStore) Search(ctx context.Context, query string, k int) ([]types.Artifact, error) {
	return s.artifacts, s.err
}

func (s *stubContextStore) Save(ctx context.Context, artifact types.Artifact) (string, error) {
	return "id", nil
}

func TestApplyUsesRegisteredFallback(t *testing.T) {
	d := NewDegradationController(nil)
	d.RegisterFallback("draft", func(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
		return &types.UnitResult{Output: "reduced scope draft"}, nil
	})

	result, level := d.Apply(context.Background(), "draft", types.UnitContext{Task: "write draft"})
	if level != LevelDegraded {
		t.Fatalf("expected degraded level, got %s", level)
	}
	if result.Output != "reduced scope draft" {
		t.Errorf("unexpected output %q", result.Output)
	}
	if result.Tier != types.TierDegraded {
		t.Errorf("fallback output must be tagged degraded, got %s", result.Tier)
	}
}

func TestApplyCriticalWithoutRegisteredFallback(t *testing.T) {
	store := &stubContextStore{artifacts: []types.Artifact{{Kind: "draft", Content: "previous draft"}}}
	d := NewDegradationController(store)

	// Cached artifacts alone never satisfy Apply; that path belongs to
	// ApplyCached.
	result, level := d.Apply(context.Background(), "draft", types.UnitContext{Task: "write draft"})
	if level != LevelCritical {
		t.Fatalf("expected critical level, got %s", level)
	}
	if result != nil {
		t.Errorf("expected nil result at critical level, got %+v", result)
	}
}

func TestApplyCachedFallsBackToCachedArtifact(t *testing.T) {
	store := &stubContextStore{artifacts: []types.Artifact{{Kind: "draft", Content: "previous draft"}}}
	d := NewDegradationController(store)

	result, level := d.ApplyCached(context.Background(), "draft", types.UnitContext{Task: "write draft"})
	if level != LevelDegraded {
		t.Fatalf("expected degraded level, got %s", level)
	}
	if result.Output != "previous draft" {
		t.Errorf("expected cached content, got %q", result.Output)
	}
	if result.Tier != types.TierCached {
		t.Errorf("cached output must be tagged cached, got %s", result.Tier)
	}
	if result.Artifacts["draft"] != "previous draft" {
		t.Errorf("cached content must be keyed into artifacts, got %+v", result.Artifacts)
	}
}

func TestApplyCachedPrefersRegisteredFallback(t *testing.T) {
	store := &stubContextStore{artifacts: []types.Artifact{{Kind: "draft", Content: "previous draft"}}}
	d := NewDegradationController(store)
	d.RegisterFallback("draft", func(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
		return &types.UnitResult{Output: "reduced scope draft"}, nil
	})

	result, level := d.ApplyCached(context.Background(), "draft", types.UnitContext{Task: "write draft"})
	if level != LevelDegraded {
		t.Fatalf("expected degraded level, got %s", level)
	}
	if result.Output != "reduced scope draft" {
		t.Errorf("registered fallback must win over the cache, got %q", result.Output)
	}
}

func TestApplyCachedCriticalWhenNothingServes(t *testing.T) {
	store := &stubContextStore{err: errors.New("store down")}
	d := NewDegradationController(store)

	result, level := d.ApplyCached(context.Background(), "draft", types.UnitContext{Task: "write draft"})
	if level != LevelCritical {
		t.Fatalf("expected critical level, got %s", level)
	}
	if result != nil {
		t.Errorf("expected nil result at critical level, got %+v", result)
	}
}
