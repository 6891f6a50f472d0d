package jobstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SetProjectsLocked flips the lock flag for every listed project in one
// transaction. Missing rows are created. The write is all-or-nothing: either
// every project is flagged or the transaction rolls back.
func (s *Store) SetProjectsLocked(ctx context.Context, projectIDs []string, locked bool) error {
	if len(projectIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range projectIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, is_locked, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET is_locked = excluded.is_locked, updated_at = excluded.updated_at`,
			id, boolInt(locked), now,
		); err != nil {
			return fmt.Errorf("set project lock %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit project locks: %w", err)
	}
	return nil
}

// IsProjectLocked reports whether a project is currently locked.
// Unknown projects are unlocked.
func (s *Store) IsProjectLocked(ctx context.Context, projectID string) (bool, error) {
	var locked int
	err := s.db.QueryRowContext(ctx,
		`SELECT is_locked FROM projects WHERE id = ?`, projectID).Scan(&locked)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("read project lock: %w", err)
	}
	return locked != 0, nil
}

// ListLockedProjects returns the ids of all currently locked projects.
func (s *Store) ListLockedProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM projects WHERE is_locked = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list locked projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
