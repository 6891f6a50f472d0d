package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/job"
)

// CreateJob inserts a new Job row.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}

	overrides, err := json.Marshal(j.Submission.Overrides)
	if err != nil {
		return fmt.Errorf("marshal container overrides: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, attempt, state, dataset_id, created_at,
			submitted_at, completed_at, terminated_at,
			failure_reason, critical_error, retry_on_termination,
			batch_job_name, batch_job_queue, batch_job_definition,
			batch_container_overrides, batch_job_id, batch_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Attempt, string(j.State), nullString(j.DatasetID), formatTime(j.CreatedAt),
		formatOptTime(j.SubmittedAt), formatOptTime(j.CompletedAt), formatOptTime(j.TerminatedAt),
		nullString(j.FailureReason), boolInt(j.CriticalError), boolInt(j.RetryOnTermination),
		j.Submission.Name, j.Submission.Queue, j.Submission.Definition,
		string(overrides), nullString(j.BatchJobID), nullString(j.BatchStatus),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads one Job by id. Returns ErrNotFound when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobsByState returns all Jobs in the given states, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, states ...job.State) ([]job.Job, error) {
	if len(states) == 0 {
		return nil, nil
	}

	query := jobSelect + ` WHERE state IN (?` + strings.Repeat(",?", len(states)-1) + `) ORDER BY created_at, id`
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// ListSubmittableJobs returns CREATED jobs eligible for submission, oldest
// first. Jobs flagged critical_error are excluded: they wait for manual
// intervention instead of being picked up by the next automated pass.
func (s *Store) ListSubmittableJobs(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		jobSelect+` WHERE state = ? AND critical_error = 0 ORDER BY created_at, id`,
		string(job.StateCreated))
	if err != nil {
		return nil, fmt.Errorf("list submittable jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// ListJobsForDataset returns a dataset's retry chain, oldest attempt first.
func (s *Store) ListJobsForDataset(ctx context.Context, datasetID string) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` WHERE dataset_id = ? ORDER BY attempt, created_at`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list dataset jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// ListJobs returns every Job, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobs(rows)
}

// CountJobsByState returns job counts grouped by state.
func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[job.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out[job.State(state)] = n
	}
	return out, rows.Err()
}

// MaxAttempt returns the highest attempt recorded for a dataset, or zero.
func (s *Store) MaxAttempt(ctx context.Context, datasetID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(attempt) FROM jobs WHERE dataset_id = ?`, datasetID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max attempt: %w", err)
	}
	return int(max.Int64), nil
}

// UpdateJobIf persists the Job's mutable fields, guarded on the row still
// being in the expected state. It reports whether the update applied; a
// false return means another operation transitioned the row first.
func (s *Store) UpdateJobIf(ctx context.Context, j *job.Job, expected job.State) (bool, error) {
	if j == nil {
		return false, fmt.Errorf("job is nil")
	}

	overrides, err := json.Marshal(j.Submission.Overrides)
	if err != nil {
		return false, fmt.Errorf("marshal container overrides: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			state = ?,
			submitted_at = ?,
			completed_at = ?,
			terminated_at = ?,
			failure_reason = ?,
			critical_error = ?,
			retry_on_termination = ?,
			batch_container_overrides = ?,
			batch_job_id = ?,
			batch_status = ?
		WHERE id = ? AND state = ?`,
		string(j.State),
		formatOptTime(j.SubmittedAt), formatOptTime(j.CompletedAt), formatOptTime(j.TerminatedAt),
		nullString(j.FailureReason), boolInt(j.CriticalError), boolInt(j.RetryOnTermination),
		string(overrides), nullString(j.BatchJobID), nullString(j.BatchStatus),
		j.ID, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

const jobSelect = `
	SELECT id, attempt, state, dataset_id, created_at,
		submitted_at, completed_at, terminated_at,
		failure_reason, critical_error, retry_on_termination,
		batch_job_name, batch_job_queue, batch_job_definition,
		batch_container_overrides, batch_job_id, batch_status
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var state string
	var datasetID, failureReason, batchJobID, batchStatus sql.NullString
	var createdAt string
	var submittedAt, completedAt, terminatedAt sql.NullString
	var critical, retryOnTerm int
	var overrides string

	err := row.Scan(
		&j.ID, &j.Attempt, &state, &datasetID, &createdAt,
		&submittedAt, &completedAt, &terminatedAt,
		&failureReason, &critical, &retryOnTerm,
		&j.Submission.Name, &j.Submission.Queue, &j.Submission.Definition,
		&overrides, &batchJobID, &batchStatus,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(state)
	j.DatasetID = datasetID.String
	j.FailureReason = failureReason.String
	j.BatchJobID = batchJobID.String
	j.BatchStatus = batchStatus.String
	j.CriticalError = critical != 0
	j.RetryOnTermination = retryOnTerm != 0

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.SubmittedAt, err = parseOptTime(submittedAt); err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	if j.CompletedAt, err = parseOptTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if j.TerminatedAt, err = parseOptTime(terminatedAt); err != nil {
		return nil, fmt.Errorf("parse terminated_at: %w", err)
	}

	var o batch.ContainerOverrides
	if overrides != "" {
		if err := json.Unmarshal([]byte(overrides), &o); err != nil {
			return nil, fmt.Errorf("parse container overrides: %w", err)
		}
	}
	j.Submission.Overrides = o

	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]job.Job, error) {
	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseOptTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
