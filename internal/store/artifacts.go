package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/types"
)

// Save stores an artifact and returns its ID. Existing artifacts keep
// their IDs when the caller sets one; otherwise a fresh ID is assigned.
func (s *LocalStore) Save(ctx context.Context, a types.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	tier := a.Tier
	if tier == "" {
		tier = types.TierNormal
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, kind, content, tier, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			tier = excluded.tier,
			updated_at = excluded.updated_at`,
		id, a.Kind, a.Content, string(tier), updated.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	return id, nil
}

// Search returns up to k artifacts matching the query, kind matches
// ranked above content matches, newest first within a rank.
func (s *LocalStore) Search(ctx context.Context, query string, k int) ([]types.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 5
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, content, tier, updated_at,
			CASE WHEN kind LIKE ? THEN 0 ELSE 1 END AS rank
		FROM artifacts
		WHERE kind LIKE ? OR content LIKE ?
		ORDER BY rank ASC, updated_at DESC
		LIMIT ?`,
		pattern, pattern, pattern, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search artifacts: %w", err)
	}
	defer rows.Close()

	var out []types.Artifact
	for rows.Next() {
		var a types.Artifact
		var tier string
		var rank int
		if err := rows.Scan(&a.ID, &a.Kind, &a.Content, &tier, &a.UpdatedAt, &rank); err != nil {
			return nil, err
		}
		a.Tier = types.QualityTier(tier)
		out = append(out, a)
	}
	return out, rows.Err()
}
