package units

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/types"
)

type fakeClient struct {
	response string
	err      error
	prompts  []string
	systems  []string
}

func (f *fakeClient) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeClient) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, user)
	return f.response, f.err
}

type fakeStore struct {
	artifacts []types.Artifact
	searchErr error
	saved     []types.Artifact
}

func (f *fakeStore) Search(_ context.Context, _ string, k int) ([]types.Artifact, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k > len(f.artifacts) {
		k = len(f.artifacts)
	}
	return f.artifacts[:k], nil
}

func (f *fakeStore) Save(_ context.Context, a types.Artifact) (string, error) {
	f.saved = append(f.saved, a)
	return "artifact-1", nil
}

func TestRegistryPreservesDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	client := &fakeClient{response: "ok"}
	require.NoError(t, RegisterBuiltins(r, client, nil))

	var ids []string
	for _, u := range r.Units() {
		ids = append(ids, u.ID())
	}
	assert.Equal(t, []string{"research", "generate", "review", "document"}, ids)
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	client := &fakeClient{}
	require.NoError(t, r.Register(NewReviewerUnit(client)))
	err := r.Register(NewReviewerUnit(client))
	assert.Error(t, err)
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewReviewerUnit(&fakeClient{})))

	assert.True(t, r.Enabled("review"))
	r.SetEnabled("review", false)
	assert.False(t, r.Enabled("review"))
	r.SetEnabled("review", true)
	assert.True(t, r.Enabled("review"))
}

func TestGeneratorSeedsPromptFromStore(t *testing.T) {
	store := &fakeStore{artifacts: []types.Artifact{
		{Kind: "notes", Content: "prior findings", UpdatedAt: time.Now()},
	}}
	client := &fakeClient{response: "generated body"}
	unit := NewGeneratorUnit(client, store)

	res, err := unit.Invoke(context.Background(), types.UnitContext{
		Task:  "build the parser",
		Stage: "generate",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated body", res.Output)
	assert.Equal(t, "generated body", res.Artifacts["draft"])
	assert.Equal(t, types.TierNormal, res.Tier)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "prior findings")

	require.Len(t, store.saved, 1)
	assert.Equal(t, "generated", store.saved[0].Kind)
}

func TestGeneratorToleratesStoreFailure(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("store down")}
	client := &fakeClient{response: "cold output"}
	unit := NewGeneratorUnit(client, store)

	res, err := unit.Invoke(context.Background(), types.UnitContext{Task: "t"})
	require.NoError(t, err)
	assert.Equal(t, "cold output", res.Output)
}

func TestGeneratorPropagatesClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("model unavailable")}
	unit := NewGeneratorUnit(client, nil)

	_, err := unit.Invoke(context.Background(), types.UnitContext{Task: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate stage")
}

func TestReviewerParsesVerdict(t *testing.T) {
	client := &fakeClient{response: "VERDICT: pass\nNo issues found."}
	unit := NewReviewerUnit(client)

	res, err := unit.Invoke(context.Background(), types.UnitContext{
		Task:      "review security",
		Artifacts: map[string]string{"draft": "some code"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pass", res.Fields["verdict"])
	assert.Equal(t, "No issues found.", res.Fields["findings"])
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "some code")
}

func TestReviewerUnknownVerdict(t *testing.T) {
	client := &fakeClient{response: "looks fine to me"}
	unit := NewReviewerUnit(client)

	res, err := unit.Invoke(context.Background(), types.UnitContext{Task: "t"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Fields["verdict"])
}

func TestResearcherIncludesKnownMaterial(t *testing.T) {
	store := &fakeStore{artifacts: []types.Artifact{
		{Kind: "docs", Content: "existing background"},
	}}
	client := &fakeClient{response: "summary"}
	unit := NewResearcherUnit(client, store)

	res, err := unit.Invoke(context.Background(), types.UnitContext{Task: "study caching"})
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Artifacts["research"])
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "existing background")
}

func TestUnitDeclarations(t *testing.T) {
	client := &fakeClient{}
	gen := NewGeneratorUnit(client, nil)
	rev := NewReviewerUnit(client)

	assert.Contains(t, gen.DeclaredCapabilities(), "generate")
	assert.Equal(t, []string{"task"}, gen.RequiredInputs())
	assert.Contains(t, rev.DeclaredCapabilities(), "security")
	assert.Equal(t, []string{"draft"}, rev.RequiredInputs())
}
