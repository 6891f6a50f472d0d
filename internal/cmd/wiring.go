package cmd

import (
	"context"
	"fmt"

	"github.com/seqora/exportd/internal/observability"
	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/batch/awsbatch"
	"github.com/seqora/exportd/pkg/jobstore"
	"github.com/seqora/exportd/pkg/lockfile"
	"github.com/seqora/exportd/pkg/notify"
	"github.com/seqora/exportd/pkg/objectstore"
	"github.com/seqora/exportd/pkg/objectstore/s3"
	"github.com/seqora/exportd/pkg/scheduler"
)

func openStore(ctx context.Context) (*jobstore.Store, error) {
	store, err := jobstore.Open(ctx, jobstore.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("open job store %s: %w", cfg.Store.Path, err)
	}
	return store, nil
}

func newStorage(ctx context.Context) (objectstore.Store, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage.bucket is not configured")
	}
	store, err := s3.New(ctx, s3.Config{
		Bucket:         cfg.Storage.Bucket,
		Region:         cfg.Storage.Region,
		Profile:        cfg.Storage.Profile,
		Endpoint:       cfg.Storage.Endpoint,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return store, nil
}

func newGateway(ctx context.Context) (batch.Gateway, error) {
	gw, err := awsbatch.New(ctx, awsbatch.Config{
		Region:  cfg.Batch.Region,
		Profile: cfg.Batch.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("connect batch gateway: %w", err)
	}
	return gw, nil
}

func newScheduler(store *jobstore.Store, gw batch.Gateway) *scheduler.Scheduler {
	log := observability.CLILogger
	return scheduler.New(store, gw, notify.NewLogNotifier(log), log, scheduler.Config{
		Concurrency: cfg.Scheduler.Concurrency,
		RateLimit:   cfg.Scheduler.RateLimit,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
	})
}

func newLockCoordinator(storage objectstore.Store, store *jobstore.Store) *lockfile.Coordinator {
	return lockfile.New(storage, store, observability.CLILogger,
		cfg.Lock.ManifestKey, cfg.Lock.LocalPath)
}
