package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/job"
)

// SyncResult reports the outcome of a BulkSyncState pass.
type SyncResult struct {
	// Checked is the number of SUBMITTED jobs described remotely.
	Checked int

	// Updated holds ids of jobs whose persisted state or remote status
	// changed during this pass.
	Updated []string

	// Completed holds ids of jobs that reached a terminal state.
	Completed []string
}

// BulkSyncState reconciles every SUBMITTED job with its remote status using
// a single bulk describe call. Jobs whose remote status is unchanged are
// left untouched; terminal statuses transition the job and fire a
// notification. Running twice in a row without remote change is a no-op.
func (s *Scheduler) BulkSyncState(ctx context.Context) (*SyncResult, error) {
	jobs, err := s.store.ListJobsByState(ctx, job.StateSubmitted)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{Checked: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}

	if err := s.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	for i := range jobs {
		ids = append(ids, jobs[i].BatchJobID)
	}
	statuses, err := s.gateway.Describe(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range jobs {
		j := jobs[i]

		remote, known := statuses[j.BatchJobID]
		if !known {
			// The service no longer reports this job. Treat it as failed so
			// the row does not stay in SUBMITTED forever.
			s.log.Warn("Remote job vanished, marking failed",
				zap.String("job_id", j.ID),
				zap.String("batch_job_id", j.BatchJobID))
			remote = batch.StatusFailed
		}

		changed, err := j.ApplySync(remote, now)
		if err != nil {
			s.log.Error("Sync transition rejected",
				zap.String("job_id", j.ID),
				zap.Error(err))
			continue
		}
		if !changed {
			continue
		}

		applied, err := s.store.UpdateJobIf(ctx, &j, job.StateSubmitted)
		if err != nil {
			s.log.Error("Persisting synced state failed",
				zap.String("job_id", j.ID),
				zap.Error(err))
			continue
		}
		if !applied {
			continue
		}

		result.Updated = append(result.Updated, j.ID)
		if j.State.Terminal() {
			result.Completed = append(result.Completed, j.ID)
			s.log.Info("Job completed",
				zap.String("job_id", j.ID),
				zap.String("dataset_id", j.DatasetID),
				zap.String("state", string(j.State)))
			s.notifyResult(ctx, &j)
		}
	}

	return result, nil
}
