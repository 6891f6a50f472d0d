package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seqora/exportd/pkg/dataset"
)

// SaveDataset inserts or updates a dataset row.
func (s *Store) SaveDataset(ctx context.Context, d *dataset.Dataset) error {
	if d == nil {
		return fmt.Errorf("dataset is nil")
	}

	projects, err := json.Marshal(d.Projects)
	if err != nil {
		return fmt.Errorf("marshal dataset projects: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (
			id, format, projects,
			data_hash, metadata_hash, readme_hash, combined_hash,
			regenerated_from, needs_attention, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			format = excluded.format,
			projects = excluded.projects,
			data_hash = excluded.data_hash,
			metadata_hash = excluded.metadata_hash,
			readme_hash = excluded.readme_hash,
			combined_hash = excluded.combined_hash,
			regenerated_from = excluded.regenerated_from,
			needs_attention = excluded.needs_attention,
			updated_at = excluded.updated_at`,
		d.ID, string(d.Format), string(projects),
		nullString(d.DataHash), nullString(d.MetadataHash), nullString(d.ReadmeHash), nullString(d.CombinedHash),
		nullString(d.RegeneratedFrom), boolInt(d.NeedsAttention),
		formatTime(d.CreatedAt), now,
	)
	if err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

// GetDataset loads one dataset by id. Returns ErrNotFound when absent.
func (s *Store) GetDataset(ctx context.Context, id string) (*dataset.Dataset, error) {
	row := s.db.QueryRowContext(ctx, datasetSelect+` WHERE id = ?`, id)
	return scanDataset(row)
}

// FindDatasetByCombinedHash returns the most recent dataset with the given
// idempotency key, or nil when none exists.
func (s *Store) FindDatasetByCombinedHash(ctx context.Context, hash string) (*dataset.Dataset, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		datasetSelect+` WHERE combined_hash = ? ORDER BY updated_at DESC LIMIT 1`, hash)
	d, err := scanDataset(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// MarkDatasetNeedsAttention flags a dataset whose retry chain hit the
// attempt ceiling.
func (s *Store) MarkDatasetNeedsAttention(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET needs_attention = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("mark dataset needs attention: %w", err)
	}
	return nil
}

const datasetSelect = `
	SELECT id, format, projects,
		data_hash, metadata_hash, readme_hash, combined_hash,
		regenerated_from, needs_attention, created_at, updated_at
	FROM datasets`

func scanDataset(row rowScanner) (*dataset.Dataset, error) {
	var d dataset.Dataset
	var format, projects, createdAt, updatedAt string
	var dataHash, metadataHash, readmeHash, combinedHash, regeneratedFrom sql.NullString
	var needsAttention int

	err := row.Scan(
		&d.ID, &format, &projects,
		&dataHash, &metadataHash, &readmeHash, &combinedHash,
		&regeneratedFrom, &needsAttention, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Format = dataset.Format(format)
	if err := json.Unmarshal([]byte(projects), &d.Projects); err != nil {
		return nil, fmt.Errorf("parse dataset projects: %w", err)
	}
	d.DataHash = dataHash.String
	d.MetadataHash = metadataHash.String
	d.ReadmeHash = readmeHash.String
	d.CombinedHash = combinedHash.String
	d.RegeneratedFrom = regeneratedFrom.String
	d.NeedsAttention = needsAttention != 0

	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &d, nil
}

// FindLatestDatasetForRequest returns the newest dataset with the given
// format whose project set exactly matches projectIDs, or nil when none
// exists. projectIDs must be sorted.
func (s *Store) FindLatestDatasetForRequest(ctx context.Context, format dataset.Format, projectIDs []string) (*dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		datasetSelect+` WHERE format = ? ORDER BY updated_at DESC`, string(format))
	if err != nil {
		return nil, fmt.Errorf("list datasets by format: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		if sameProjectSet(d.ProjectIDs(), projectIDs) {
			return d, nil
		}
	}
	return nil, rows.Err()
}

func sameProjectSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
