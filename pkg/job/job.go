// Package job defines the unit of trackable remote compute work and its
// state machine.
//
// A Job is one attempt at materializing a dataset export on the external
// compute service. Jobs are never deleted or mutated past a terminal state;
// a retry is always a new Job with the attempt counter incremented and the
// exact submission payload carried forward.
package job

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seqora/exportd/pkg/batch"
)

// State is the lifecycle state of a Job.
//
// NOTE: These values are persisted and are part of the stable on-disk
// contract.
type State string

const (
	// StateCreated is the initial state: recorded locally, not yet submitted.
	StateCreated State = "CREATED"

	// StateSubmitted means the compute service accepted the work.
	StateSubmitted State = "SUBMITTED"

	// StateSucceeded is terminal: the remote job completed successfully.
	StateSucceeded State = "SUCCEEDED"

	// StateFailed is terminal: the remote job failed.
	StateFailed State = "FAILED"

	// StateTerminated is terminal: the job was stopped locally, before or
	// after submission.
	StateTerminated State = "TERMINATED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTerminated:
		return true
	}
	return false
}

// Job is the persistent record of one attempt at remote compute work.
type Job struct {
	ID string `json:"id"`

	// Attempt starts at 1 and is immutable; retries create a new Job with
	// Attempt = prior + 1.
	Attempt int `json:"attempt"`

	State State `json:"state"`

	// DatasetID references the Dataset this Job works on; empty for jobs not
	// tied to a dataset.
	DatasetID string `json:"dataset_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	// CriticalError marks a job that must not be retried automatically.
	CriticalError bool `json:"critical_error"`

	// RetryOnTermination records the caller's intent at termination time.
	RetryOnTermination bool `json:"retry_on_termination"`

	// Submission is the exact payload sent to the compute service. It must
	// be reproducible across retries.
	Submission batch.Submission `json:"submission"`

	// BatchJobID is assigned by the compute service on successful submission.
	BatchJobID string `json:"batch_job_id,omitempty"`

	// BatchStatus is the last known remote status string.
	BatchStatus string `json:"batch_status,omitempty"`
}

// New creates a first-attempt Job in CREATED for the given submission.
func New(datasetID string, sub batch.Submission) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Attempt:    1,
		State:      StateCreated,
		DatasetID:  strings.TrimSpace(datasetID),
		CreatedAt:  time.Now().UTC(),
		Submission: cloneSubmission(sub),
	}
}

// MarkSubmitted records a successful submission: CREATED -> SUBMITTED.
//
// A Job may be submitted at most once; calling this in any other state
// returns a SubmitNotPendingError.
func (j *Job) MarkSubmitted(batchJobID string, at time.Time) error {
	if j.State != StateCreated {
		return &SubmitNotPendingError{JobID: j.ID, State: j.State}
	}

	at = at.UTC()
	j.State = StateSubmitted
	j.BatchJobID = batchJobID
	j.BatchStatus = batch.StatusSubmitted
	j.SubmittedAt = &at
	return nil
}

// MarkSubmitFailed records a failed submission attempt.
//
// The Job stays CREATED with CriticalError set, so it surfaces through the
// alerting path instead of being silently dropped or auto-retried.
func (j *Job) MarkSubmitFailed(reason string) error {
	if j.State != StateCreated {
		return &SubmitNotPendingError{JobID: j.ID, State: j.State}
	}

	j.CriticalError = true
	j.FailureReason = strings.TrimSpace(reason)
	return nil
}

// ApplySync folds a freshly observed remote status into the Job.
//
// Sync is a diff operation: it reports whether anything changed and leaves
// the Job untouched when the remote status is the same. Terminal remote
// outcomes transition the Job to SUCCEEDED or FAILED. Syncing a Job that is
// not SUBMITTED returns a SyncNotProcessingError.
func (j *Job) ApplySync(remoteStatus string, at time.Time) (bool, error) {
	if j.State != StateSubmitted {
		return false, &SyncNotProcessingError{JobID: j.ID, State: j.State}
	}
	if remoteStatus == j.BatchStatus {
		return false, nil
	}

	j.BatchStatus = remoteStatus
	at = at.UTC()

	switch remoteStatus {
	case batch.StatusSucceeded:
		j.State = StateSucceeded
		j.CompletedAt = &at
	case batch.StatusFailed:
		j.State = StateFailed
		j.CompletedAt = &at
		if j.FailureReason == "" {
			j.FailureReason = "remote job failed"
		}
	}

	return true, nil
}

// MarkTerminated stops the Job: CREATED or SUBMITTED -> TERMINATED.
//
// retry records whether the caller wants a successor created. Terminating a
// Job already in a terminal state returns an InvalidTerminateStateError.
func (j *Job) MarkTerminated(reason string, retry bool, at time.Time) error {
	if j.State.Terminal() {
		return &InvalidTerminateStateError{JobID: j.ID, State: j.State}
	}

	at = at.UTC()
	j.State = StateTerminated
	j.TerminatedAt = &at
	j.RetryOnTermination = retry
	if reason = strings.TrimSpace(reason); reason != "" {
		j.FailureReason = reason
	}
	return nil
}

// RetryJob derives the successor Job for a terminal Job.
//
// The successor starts in CREATED with Attempt incremented and an exact copy
// of the submission payload, so remote behavior is reproducible across
// attempts. Retrying a non-terminal Job returns an InvalidRetryStateError;
// a Job with CriticalError set is refused unless allowCritical overrides.
func (j *Job) RetryJob(allowCritical bool) (*Job, error) {
	if !j.State.Terminal() {
		return nil, &InvalidRetryStateError{JobID: j.ID, State: j.State}
	}
	if j.CriticalError && !allowCritical {
		return nil, &RetryCriticalError{JobID: j.ID}
	}

	return &Job{
		ID:         uuid.New().String(),
		Attempt:    j.Attempt + 1,
		State:      StateCreated,
		DatasetID:  j.DatasetID,
		CreatedAt:  time.Now().UTC(),
		Submission: cloneSubmission(j.Submission),
	}, nil
}

func cloneSubmission(sub batch.Submission) batch.Submission {
	out := sub
	if sub.Overrides.Command != nil {
		out.Overrides.Command = append([]string(nil), sub.Overrides.Command...)
	}
	if sub.Overrides.Environment != nil {
		env := make(map[string]string, len(sub.Overrides.Environment))
		for k, v := range sub.Overrides.Environment {
			env[k] = v
		}
		out.Overrides.Environment = env
	}
	return out
}
