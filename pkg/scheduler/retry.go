package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/job"
)

// CreateRetryJobs derives a successor job for each terminal job whose
// retry_on_termination flag is set and whose critical_error flag is not.
// Jobs outside that shape are skipped silently.
//
// The attempt ceiling is enforced per dataset: once the highest persisted
// attempt reaches MaxAttempts, no successor is created, the dataset is
// flagged as needing attention, and a MaxAttemptsError is joined into the
// returned error. One dataset hitting the ceiling never blocks retries for
// the others.
func (s *Scheduler) CreateRetryJobs(ctx context.Context, jobs []job.Job) ([]job.Job, error) {
	var created []job.Job
	var errs []error

	for i := range jobs {
		j := jobs[i]
		if !j.State.Terminal() || !j.RetryOnTermination || j.CriticalError {
			continue
		}

		highest, err := s.store.MaxAttempt(ctx, j.DatasetID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if highest >= s.config.MaxAttempts {
			s.log.Error("Retry ceiling reached, dataset needs attention",
				zap.String("dataset_id", j.DatasetID),
				zap.Int("attempt", highest),
				zap.Int("limit", s.config.MaxAttempts))
			if merr := s.store.MarkDatasetNeedsAttention(ctx, j.DatasetID); merr != nil {
				errs = append(errs, merr)
			}
			errs = append(errs, &job.MaxAttemptsError{
				DatasetID: j.DatasetID,
				Attempt:   highest,
				Limit:     s.config.MaxAttempts,
			})
			continue
		}

		next, err := j.RetryJob(false)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.store.CreateJob(ctx, next); err != nil {
			errs = append(errs, err)
			continue
		}

		s.log.Info("Retry job created",
			zap.String("job_id", next.ID),
			zap.String("dataset_id", next.DatasetID),
			zap.Int("attempt", next.Attempt),
			zap.String("retry_of", j.ID))
		created = append(created, *next)
	}

	return created, errors.Join(errs...)
}
