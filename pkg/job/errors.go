package job

import "fmt"

// Precondition errors: a caller requested a transition the Job's current
// state does not allow. These are never retried automatically.

// SubmitNotPendingError is returned when submitting a Job not in CREATED.
// It enforces the at-most-once submission guarantee.
type SubmitNotPendingError struct {
	JobID string
	State State
}

func (e *SubmitNotPendingError) Error() string {
	return fmt.Sprintf("job %s cannot be submitted in state %s", e.JobID, e.State)
}

// SyncNotProcessingError is returned when syncing a Job not in SUBMITTED.
type SyncNotProcessingError struct {
	JobID string
	State State
}

func (e *SyncNotProcessingError) Error() string {
	return fmt.Sprintf("job %s cannot be synced in state %s", e.JobID, e.State)
}

// InvalidTerminateStateError is returned when terminating a Job already in
// a terminal state.
type InvalidTerminateStateError struct {
	JobID string
	State State
}

func (e *InvalidTerminateStateError) Error() string {
	return fmt.Sprintf("job %s cannot be terminated in state %s", e.JobID, e.State)
}

// InvalidRetryStateError is returned when retrying a Job that is not in a
// terminal state.
type InvalidRetryStateError struct {
	JobID string
	State State
}

func (e *InvalidRetryStateError) Error() string {
	return fmt.Sprintf("job %s cannot be retried in state %s", e.JobID, e.State)
}

// RetryCriticalError is returned when retrying a Job whose CriticalError
// flag is set without an explicit override.
type RetryCriticalError struct {
	JobID string
}

func (e *RetryCriticalError) Error() string {
	return fmt.Sprintf("job %s has a critical error and requires an explicit retry override", e.JobID)
}

// MaxAttemptsError is returned when creating a retry would exceed the
// configured attempt ceiling for a dataset.
type MaxAttemptsError struct {
	DatasetID string
	Attempt   int
	Limit     int
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("dataset %s reached the attempt ceiling (%d of %d)", e.DatasetID, e.Attempt, e.Limit)
}
