package jobstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the schema in-place.
func (s *Store) Migrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			attempt INTEGER NOT NULL,
			state TEXT NOT NULL,
			dataset_id TEXT,
			created_at TEXT NOT NULL,
			submitted_at TEXT,
			completed_at TEXT,
			terminated_at TEXT,
			failure_reason TEXT,
			critical_error INTEGER NOT NULL DEFAULT 0,
			retry_on_termination INTEGER NOT NULL DEFAULT 0,
			batch_job_name TEXT NOT NULL,
			batch_job_queue TEXT NOT NULL,
			batch_job_definition TEXT NOT NULL,
			batch_container_overrides TEXT NOT NULL,
			batch_job_id TEXT,
			batch_status TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_dataset ON jobs(dataset_id);`,

		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			is_locked INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			projects TEXT NOT NULL,
			data_hash TEXT,
			metadata_hash TEXT,
			readme_hash TEXT,
			combined_hash TEXT,
			regenerated_from TEXT,
			needs_attention INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_combined_hash ON datasets(combined_hash);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = sql.ErrNoRows
