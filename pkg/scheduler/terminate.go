package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/job"
)

// TerminateProcessing stops every non-terminal job: SUBMITTED jobs are
// terminated remotely first, CREATED jobs are cancelled before they ever
// reach the compute service. Each job is marked TERMINATED locally once it
// is safe to do so; a gateway failure leaves that job for a later pass.
//
// retry marks the terminated jobs as eligible for CreateRetryJobs.
func (s *Scheduler) TerminateProcessing(ctx context.Context, reason string, retry bool) ([]job.Job, error) {
	jobs, err := s.store.ListJobsByState(ctx, job.StateCreated, job.StateSubmitted)
	if err != nil {
		return nil, err
	}
	return s.terminateJobs(ctx, jobs, reason, retry), ctx.Err()
}

// TerminateJob terminates a single job by id regardless of how many other
// jobs are in flight. The job must not already be terminal.
func (s *Scheduler) TerminateJob(ctx context.Context, jobID, reason string, retry bool) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return nil, &job.InvalidTerminateStateError{JobID: j.ID, State: j.State}
	}

	done := s.terminateJobs(ctx, []job.Job{*j}, reason, retry)
	if len(done) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &terminationFailedError{JobID: jobID}
	}
	return &done[0], nil
}

func (s *Scheduler) terminateJobs(ctx context.Context, jobs []job.Job, reason string, retry bool) []job.Job {
	if len(jobs) == 0 {
		return nil
	}

	var mu sync.Mutex
	var terminated []job.Job

	s.forEachJob(ctx, jobs, func(ctx context.Context, j job.Job) {
		// CREATED jobs have nothing running remotely; only SUBMITTED jobs
		// need the gateway call before the local transition.
		if j.BatchJobID != "" {
			if err := s.waitForRateLimit(ctx); err != nil {
				return
			}
			if err := s.gateway.Terminate(ctx, j.BatchJobID, reason); err != nil {
				if !errIsContext(err) {
					s.log.Error("Remote termination failed",
						zap.String("job_id", j.ID),
						zap.String("batch_job_id", j.BatchJobID),
						zap.Error(err))
				}
				return
			}
		}

		prior := j.State
		if err := j.MarkTerminated(reason, retry, time.Now().UTC()); err != nil {
			return
		}
		applied, err := s.store.UpdateJobIf(ctx, &j, prior)
		if err != nil {
			s.log.Error("Persisting terminated state failed",
				zap.String("job_id", j.ID),
				zap.Error(err))
			return
		}
		if !applied {
			return
		}

		s.log.Info("Job terminated",
			zap.String("job_id", j.ID),
			zap.String("prior_state", string(prior)),
			zap.String("reason", reason),
			zap.Bool("retry", retry))
		s.notifyResult(ctx, &j)

		mu.Lock()
		terminated = append(terminated, j)
		mu.Unlock()
	})

	return terminated
}

type terminationFailedError struct {
	JobID string
}

func (e *terminationFailedError) Error() string {
	return "termination of job " + e.JobID + " was not accepted by the compute service"
}
