// Package lockfile coordinates project regeneration locks through a small
// remote manifest of newline-delimited project ids.
//
// The manifest is consumed all-or-nothing: either every listed project gets
// its lock flag persisted and the manifest is atomically replaced with an
// empty one, or the pass fails and leaves both sides as they were.
package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/seqora/exportd/pkg/jobstore"
	"github.com/seqora/exportd/pkg/objectstore"
)

// Coordinator downloads the lock manifest, persists the lock flags, and
// clears the manifest.
type Coordinator struct {
	storage objectstore.Store
	store   *jobstore.Store
	log     *zap.Logger

	// Key is the manifest object key in the bucket.
	Key string

	// LocalPath is where the manifest is staged between passes. A copy left
	// over from a failed pass is reused instead of re-downloading, so a
	// manifest already cleared remotely is still fully applied.
	LocalPath string
}

// New creates a coordinator for the manifest at key.
func New(storage objectstore.Store, store *jobstore.Store, log *zap.Logger, key, localPath string) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), filepath.Base(key))
	}
	return &Coordinator{
		storage:   storage,
		store:     store,
		log:       log,
		Key:       key,
		LocalPath: localPath,
	}
}

// LockProjects consumes the manifest and returns the project ids locked by
// this pass. An empty or absent manifest returns nil without touching
// anything.
func (c *Coordinator) LockProjects(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(c.LocalPath); errors.Is(err, os.ErrNotExist) {
		empty, err := c.storage.IsEmpty(ctx, c.Key)
		if err != nil {
			return nil, err
		}
		if empty {
			return nil, nil
		}
		if err := c.storage.Download(ctx, c.Key, c.LocalPath); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.LocalPath)
	if err != nil {
		return nil, err
	}
	projectIDs := parseManifest(data)
	if len(projectIDs) == 0 {
		return nil, c.cleanup(ctx)
	}

	if err := c.store.SetProjectsLocked(ctx, projectIDs, true); err != nil {
		return nil, err
	}

	// Clearing the manifest after the locks are persisted keeps the
	// invariant that no project is locked without the manifest change
	// having been applied. If the clear fails, roll the locks back so the
	// next pass starts clean.
	if err := c.storage.Put(ctx, c.Key, nil); err != nil {
		if rerr := c.store.SetProjectsLocked(ctx, projectIDs, false); rerr != nil {
			c.log.Error("Lock rollback failed, manifest and flags diverged",
				zap.Strings("project_ids", projectIDs),
				zap.Error(rerr))
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	if err := os.Remove(c.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("Removing local manifest copy failed",
			zap.String("path", c.LocalPath),
			zap.Error(err))
	}

	c.log.Info("Projects locked",
		zap.Strings("project_ids", projectIDs))
	return projectIDs, nil
}

// cleanup clears both sides of an effectively empty manifest.
func (c *Coordinator) cleanup(ctx context.Context) error {
	if err := c.storage.Put(ctx, c.Key, nil); err != nil {
		return err
	}
	if err := os.Remove(c.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func parseManifest(data []byte) []string {
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	return ids
}
