// Package scheduler orchestrates job submission, reconciliation,
// termination, and retry creation against the batch gateway.
//
// Each operation processes the current snapshot of job rows and exits; the
// process is invoked periodically by an external scheduler. Gateway calls
// for independent jobs run concurrently under a bounded worker pool, while
// each individual job's transition is guarded by a state-conditional update
// so concurrent runs cannot double-transition a row.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/job"
	"github.com/seqora/exportd/pkg/jobstore"
	"github.com/seqora/exportd/pkg/notify"
)

// Config bounds scheduler behavior.
type Config struct {
	// Concurrency is the number of parallel gateway calls per operation.
	// Default: 4
	Concurrency int

	// RateLimit is the maximum gateway requests per second.
	// Zero means unlimited.
	RateLimit float64

	// MaxAttempts is the retry ceiling per dataset, counting the first
	// attempt. Default: 3
	MaxAttempts int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		RateLimit:   0,
		MaxAttempts: 3,
	}
}

// Scheduler drives job state against the external compute service.
type Scheduler struct {
	store    *jobstore.Store
	gateway  batch.Gateway
	notifier notify.Notifier
	log      *zap.Logger
	config   Config

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
}

// New creates a scheduler. The gateway is injected so tests can substitute
// a fake without process-global patching.
func New(store *jobstore.Store, gateway batch.Gateway, notifier notify.Notifier, log *zap.Logger, cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}

	s := &Scheduler{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		config:   cfg,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

func (s *Scheduler) waitForRateLimit(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// forEachJob runs fn over jobs with bounded concurrency. Per-job errors are
// fn's responsibility; only context cancellation stops the batch.
func (s *Scheduler) forEachJob(ctx context.Context, jobs []job.Job, fn func(ctx context.Context, j job.Job)) {
	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup

	for i := range jobs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(j job.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, j)
		}(jobs[i])
	}

	wg.Wait()
}

// notifyResult delivers a terminal outcome. Failures are logged and never
// affect the job's already-persisted transition.
func (s *Scheduler) notifyResult(ctx context.Context, j *job.Job) {
	if err := s.notifier.NotifyJobResult(ctx, j); err != nil {
		s.log.Warn("Notification failed",
			zap.String("job_id", j.ID),
			zap.Error(err))
	}
}

// errIsContext reports whether err is a cancellation, which should abort
// the whole batch instead of being recorded per job.
func errIsContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
