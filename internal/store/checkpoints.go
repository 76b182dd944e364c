package store

import (
	"context"
	"database/sql"
	"fmt"

	"stagehand/internal/logging"
)

// SaveCheckpoint upserts the serialized state for a workflow. The version
// stamp comes from the state itself so a resumed workflow continues its
// sequence.
func (s *LocalStore) SaveCheckpoint(ctx context.Context, workflowID string, version int, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, version, state, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(workflow_id) DO UPDATE SET
			version = excluded.version,
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP`,
		workflowID, version, string(state))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", workflowID, err)
	}
	logging.StoreDebug("Checkpoint saved: workflow=%s version=%d", workflowID, version)
	return nil
}

// LoadCheckpoint returns the serialized state and version for a workflow.
func (s *LocalStore) LoadCheckpoint(ctx context.Context, workflowID string) ([]byte, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT state, version FROM checkpoints WHERE workflow_id = ?`, workflowID).
		Scan(&state, &version)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load checkpoint for %s: %w", workflowID, err)
	}
	return []byte(state), version, nil
}

// ListWorkflows returns the IDs of all checkpointed workflows, most
// recently updated first.
func (s *LocalStore) ListWorkflows(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id FROM checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteCheckpoint removes a workflow's checkpoint.
func (s *LocalStore) DeleteCheckpoint(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", workflowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
