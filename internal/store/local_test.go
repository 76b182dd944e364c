package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/types"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "stagehand.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := []byte(`{"id":"wf-1","current_stage":"review"}`)
	require.NoError(t, s.SaveCheckpoint(ctx, "wf-1", 3, state))

	got, version, err := s.LoadCheckpoint(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
	assert.Equal(t, 3, version)
}

func TestCheckpointUpsertKeepsLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, "wf-1", 1, []byte(`{"v":1}`)))
	require.NoError(t, s.SaveCheckpoint(ctx, "wf-1", 2, []byte(`{"v":2}`)))

	got, version, err := s.LoadCheckpoint(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), got)
	assert.Equal(t, 2, version)
}

func TestCheckpointNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.LoadCheckpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteCheckpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDeleteWorkflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, "wf-a", 1, []byte(`{}`)))
	require.NoError(t, s.SaveCheckpoint(ctx, "wf-b", 1, []byte(`{}`)))

	ids, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wf-a", "wf-b"}, ids)

	require.NoError(t, s.DeleteCheckpoint(ctx, "wf-a"))
	ids, err = s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-b"}, ids)
}

func TestArtifactSaveAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, types.Artifact{
		Kind:    "research",
		Content: "notes on caching strategies",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.Save(ctx, types.Artifact{
		Kind:    "draft",
		Content: "package main",
		Tier:    types.TierNormal,
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, "caching", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "research", results[0].Kind)
	assert.Equal(t, types.TierNormal, results[0].Tier)
}

func TestArtifactSearchRanksKindMatchesFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, types.Artifact{
		Kind:      "notes",
		Content:   "mentions review in passing",
		UpdatedAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	_, err = s.Save(ctx, types.Artifact{
		Kind:    "review",
		Content: "full audit",
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, "review", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "review", results[0].Kind)
}

func TestArtifactUpsertByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, types.Artifact{Kind: "draft", Content: "v1"})
	require.NoError(t, err)

	same, err := s.Save(ctx, types.Artifact{ID: id, Kind: "draft", Content: "v2"})
	require.NoError(t, err)
	assert.Equal(t, id, same)

	results, err := s.Search(ctx, "draft", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Content)
}

func TestArtifactSearchLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Save(ctx, types.Artifact{Kind: "draft", Content: "body"})
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, "draft", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
