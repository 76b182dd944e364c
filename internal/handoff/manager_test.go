package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/types"
)

type fakeUnit struct {
	id           string
	capabilities []string
	requires     []string
}

func (f *fakeUnit) ID() string                     { return f.id }
func (f *fakeUnit) DeclaredCapabilities() []string { return f.capabilities }
func (f *fakeUnit) RequiredInputs() []string       { return f.requires }
func (f *fakeUnit) Invoke(context.Context, types.UnitContext) (*types.UnitResult, error) {
	return &types.UnitResult{}, nil
}

type fakeDirectory struct {
	units    []*fakeUnit
	disabled map[string]bool
}

func (d *fakeDirectory) Units() []types.CapabilityUnit {
	out := make([]types.CapabilityUnit, len(d.units))
	for i, u := range d.units {
		out[i] = u
	}
	return out
}

func (d *fakeDirectory) Get(id string) (types.CapabilityUnit, bool) {
	for _, u := range d.units {
		if u.id == id {
			return u, true
		}
	}
	return nil, false
}

func (d *fakeDirectory) Enabled(id string) bool { return !d.disabled[id] }

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		units: []*fakeUnit{
			{id: "generate", capabilities: []string{"generate", "draft", "write"}, requires: []string{"task"}},
			{id: "review", capabilities: []string{"security", "review"}, requires: []string{"code"}},
			{id: "document", capabilities: []string{"document", "summarize"}, requires: []string{"draft"}},
		},
		disabled: map[string]bool{},
	}
}

func TestValidateRejectsNoOpHandoff(t *testing.T) {
	m := NewManager(testDirectory())
	req := NewRequest("review", "review", "review security", map[string]string{"code": "x"}, 0)

	vr := m.Validate(req)
	assert.False(t, vr.IsValid)
	assert.Equal(t, "no-op handoff", vr.Reason)
	assert.Equal(t, StatusRejected, req.Status)
}

func TestValidateRejectsUnknownAndDisabledUnits(t *testing.T) {
	dir := testDirectory()
	m := NewManager(dir)

	vr := m.Validate(NewRequest("generate", "deploy", "deploy it", nil, 0))
	assert.False(t, vr.IsValid)
	assert.Contains(t, vr.Reason, "unknown unit")

	dir.disabled["review"] = true
	vr = m.Validate(NewRequest("generate", "review", "review security", map[string]string{"code": "x"}, 0))
	assert.False(t, vr.IsValid)
	assert.Contains(t, vr.Reason, "disabled")
}

func TestValidateRejectsMissingRequiredInputs(t *testing.T) {
	m := NewManager(testDirectory())
	req := NewRequest("generate", "review", "review security", map[string]string{"notes": "x"}, 0)

	vr := m.Validate(req)
	assert.False(t, vr.IsValid)
	assert.Equal(t, "missing required inputs", vr.Reason)
}

func TestValidateAcceptsCompatibleRequest(t *testing.T) {
	m := NewManager(testDirectory())
	req := NewRequest("generate", "review", "review security", map[string]string{"code": "package main"}, 0)

	vr := m.Validate(req)
	assert.True(t, vr.IsValid)
	assert.Empty(t, vr.Reason)
	assert.Equal(t, StatusValidated, req.Status)
}

func TestValidateRejectsLowScoreWithAlternatives(t *testing.T) {
	m := NewManager(testDirectory())
	req := NewRequest("generate", "review", "summarize the findings", map[string]string{"code": "x"}, 0)

	vr := m.Validate(req)
	assert.False(t, vr.IsValid)
	assert.Contains(t, vr.Reason, "compatibility score")
	require.NotEmpty(t, vr.SuggestedAlternatives)
	assert.Equal(t, "document", vr.SuggestedAlternatives[0].UnitID)
	for _, alt := range vr.SuggestedAlternatives {
		assert.NotEqual(t, "generate", alt.UnitID)
		assert.NotEqual(t, "review", alt.UnitID)
	}
}

func TestSuggestAlternativesOrdering(t *testing.T) {
	dir := &fakeDirectory{
		units: []*fakeUnit{
			{id: "a", capabilities: []string{"analyze"}},
			{id: "b", capabilities: []string{"review"}},
			{id: "c", capabilities: []string{"review"}},
		},
		disabled: map[string]bool{},
	}
	m := NewManager(dir)

	alts := m.SuggestAlternatives("review", nil, 0)
	require.Len(t, alts, 3)
	// b and c tie at 1.0 and keep declaration order; a scores 0.
	assert.Equal(t, "b", alts[0].UnitID)
	assert.Equal(t, "c", alts[1].UnitID)
	assert.Equal(t, "a", alts[2].UnitID)
	assert.True(t, alts[0].Score >= alts[1].Score && alts[1].Score >= alts[2].Score)
}

func TestSuggestAlternativesExcludesAndLimits(t *testing.T) {
	m := NewManager(testDirectory())

	alts := m.SuggestAlternatives("review security", []string{"review"}, 1)
	require.Len(t, alts, 1)
	assert.NotEqual(t, "review", alts[0].UnitID)
}

func TestExecuteRequiresValidation(t *testing.T) {
	m := NewManager(testDirectory())
	req := NewRequest("generate", "review", "review security", map[string]string{"code": "x"}, 0)

	_, err := m.Execute(req)
	require.Error(t, err)

	require.True(t, m.Validate(req).IsValid)
	dec, err := m.Execute(req)
	require.NoError(t, err)
	assert.Equal(t, ActionExecuted, dec.Action)
	assert.Equal(t, "review", dec.NextStage)
	assert.Equal(t, map[string]string{"code": "x"}, dec.Artifacts)
	assert.Equal(t, StatusExecuted, req.Status)
	assert.False(t, req.CompletedAt.IsZero())
}

func TestProcessQueuePriorityAndFIFO(t *testing.T) {
	m := NewManager(testDirectory())
	low := NewRequest("generate", "review", "review security", map[string]string{"code": "a"}, 1)
	highFirst := NewRequest("generate", "review", "review security", map[string]string{"code": "b"}, 5)
	highSecond := NewRequest("review", "document", "document the draft", map[string]string{"draft": "c"}, 5)

	decisions := m.ProcessQueue([]*Request{low, highFirst, highSecond})
	require.Len(t, decisions, 3)
	assert.Equal(t, highFirst.ID, decisions[0].Request.ID)
	assert.Equal(t, highSecond.ID, decisions[1].Request.ID)
	assert.Equal(t, low.ID, decisions[2].Request.ID)
	for _, d := range decisions {
		assert.Equal(t, ActionExecuted, d.Action)
	}
}

func TestProcessQueueExpiresStaleRequests(t *testing.T) {
	m := NewManager(testDirectory())
	m.SetTTL(time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	stale := NewRequest("generate", "review", "review security", map[string]string{"code": "x"}, 0)
	stale.CreatedAt = base.Add(-2 * time.Minute)
	fresh := NewRequest("generate", "review", "review security", map[string]string{"code": "y"}, 0)
	fresh.CreatedAt = base

	decisions := m.ProcessQueue([]*Request{stale, fresh})
	require.Len(t, decisions, 2)
	assert.Equal(t, ActionExpired, decisions[0].Action)
	assert.Equal(t, StatusExpired, stale.Status)
	assert.Equal(t, ActionExecuted, decisions[1].Action)
}

func TestProcessQueueKeepsRejectionReason(t *testing.T) {
	m := NewManager(testDirectory())
	bad := NewRequest("generate", "review", "review security", map[string]string{}, 0)

	decisions := m.ProcessQueue([]*Request{bad})
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionRejected, decisions[0].Action)
	assert.Equal(t, "missing required inputs", decisions[0].Reason)
	assert.Equal(t, StatusRejected, bad.Status)
	assert.Equal(t, "missing required inputs", bad.Reason)
}

func TestCompatibilityScore(t *testing.T) {
	tests := []struct {
		name     string
		task     string
		keywords []string
		want     float64
	}{
		{"both exact", "review security", []string{"security", "review"}, 1.0},
		{"half exact", "review the weather", []string{"review"}, 0.5},
		{"stem match", "secure the build", []string{"security", "build"}, 0.75},
		{"no overlap", "bake a cake", []string{"review"}, 0.0},
		{"empty task", "", []string{"review"}, 0.0},
		{"no keywords", "review", nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CompatibilityScore(tt.task, tt.keywords), 0.001)
		})
	}
}
