// Package notify delivers job-result notifications.
//
// Delivery is fire-and-forget: a notification failure is logged and never
// rolls back the job state transition that triggered it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/job"
)

// Notifier receives terminal job outcomes.
type Notifier interface {
	NotifyJobResult(ctx context.Context, j *job.Job) error
}

// LogNotifier records outcomes in the log. It stands in for the portal's
// email delivery, which lives outside this subsystem.
type LogNotifier struct {
	log *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyJobResult(_ context.Context, j *job.Job) error {
	n.log.Info("Job result",
		zap.String("job_id", j.ID),
		zap.String("dataset_id", j.DatasetID),
		zap.String("state", string(j.State)),
		zap.Int("attempt", j.Attempt),
		zap.String("failure_reason", j.FailureReason))
	return nil
}
