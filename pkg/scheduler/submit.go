package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/job"
)

// SubmitResult reports the outcome of a SubmitCreated pass.
type SubmitResult struct {
	Submitted []string
	Failed    []string
}

// SubmitCreated submits every submittable CREATED job to the batch gateway.
// Each job is submitted at most once: the CREATED to SUBMITTED transition is
// guarded by a state-conditional update, and if a concurrent run won the
// guard after our gateway call succeeded, the orphaned remote job is
// best-effort terminated.
//
// A gateway failure for one job marks that job critical and continues with
// the rest of the batch. Critical jobs stay out of later passes until an
// operator clears them.
func (s *Scheduler) SubmitCreated(ctx context.Context) (*SubmitResult, error) {
	jobs, err := s.store.ListSubmittableJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return &SubmitResult{}, nil
	}

	var mu sync.Mutex
	result := &SubmitResult{}

	s.forEachJob(ctx, jobs, func(ctx context.Context, j job.Job) {
		ok := s.submitOne(ctx, &j)
		mu.Lock()
		defer mu.Unlock()
		if ok {
			result.Submitted = append(result.Submitted, j.ID)
		} else {
			result.Failed = append(result.Failed, j.ID)
		}
	})

	return result, ctx.Err()
}

func (s *Scheduler) submitOne(ctx context.Context, j *job.Job) bool {
	if err := s.waitForRateLimit(ctx); err != nil {
		return false
	}

	externalID, err := s.gateway.Submit(ctx, j.Submission)
	if err != nil {
		if errIsContext(err) {
			return false
		}
		s.log.Error("Job submission failed",
			zap.String("job_id", j.ID),
			zap.String("dataset_id", j.DatasetID),
			zap.Error(err))
		s.recordSubmitFailure(ctx, j, err)
		return false
	}

	if err := j.MarkSubmitted(externalID, time.Now().UTC()); err != nil {
		return false
	}

	applied, err := s.store.UpdateJobIf(ctx, j, job.StateCreated)
	if err != nil {
		s.log.Error("Persisting submitted state failed",
			zap.String("job_id", j.ID),
			zap.Error(err))
		return false
	}
	if !applied {
		// Another run already transitioned this row. Our remote job is an
		// orphan; terminate it so it does not burn compute.
		s.log.Warn("Submit lost state guard, terminating orphan remote job",
			zap.String("job_id", j.ID),
			zap.String("batch_job_id", externalID))
		if terr := s.gateway.Terminate(ctx, externalID, "duplicate submission"); terr != nil {
			s.log.Warn("Orphan termination failed",
				zap.String("batch_job_id", externalID),
				zap.Error(terr))
		}
		return false
	}

	s.log.Info("Job submitted",
		zap.String("job_id", j.ID),
		zap.String("dataset_id", j.DatasetID),
		zap.String("batch_job_id", externalID))
	return true
}

// recordSubmitFailure keeps the job in CREATED but flags it critical so
// retry creation skips it. The guarded update tolerates a concurrent
// transition having already moved the row.
func (s *Scheduler) recordSubmitFailure(ctx context.Context, j *job.Job, cause error) {
	j.MarkSubmitFailed(cause.Error())
	if _, err := s.store.UpdateJobIf(ctx, j, job.StateCreated); err != nil {
		s.log.Error("Recording submit failure failed",
			zap.String("job_id", j.ID),
			zap.Error(err))
	}
}
