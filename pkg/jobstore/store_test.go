package jobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/dataset"
	"github.com/seqora/exportd/pkg/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestJob(datasetID string) *job.Job {
	return job.New(datasetID, batch.Submission{
		Name:       "exportd-portal-dataset-" + datasetID,
		Queue:      "exports",
		Definition: "exportd-portal-dataset",
		Overrides: batch.ContainerOverrides{
			Command:     []string{"create-portal-dataset", "--dataset-id", datasetID},
			Environment: map[string]string{"DATASET_ID": datasetID},
		},
	})
}

func TestOpen_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exportd.db")
	s, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	j := newTestJob("d1")
	require.NoError(t, s.CreateJob(context.Background(), j))

	got, err := s.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
}

func TestCreateAndGetJob_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, j))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)

	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, job.StateCreated, got.State)
	assert.Equal(t, "d1", got.DatasetID)
	assert.Equal(t, j.Submission, got.Submission)
	assert.Nil(t, got.SubmittedAt)
}

func TestGetJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListJobsByState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, created))

	submitted := newTestJob("d2")
	require.NoError(t, s.CreateJob(ctx, submitted))
	require.NoError(t, submitted.MarkSubmitted("ext-1", submitted.CreatedAt))
	applied, err := s.UpdateJobIf(ctx, submitted, job.StateCreated)
	require.NoError(t, err)
	require.True(t, applied)

	jobs, err := s.ListJobsByState(ctx, job.StateCreated)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, created.ID, jobs[0].ID)

	jobs, err = s.ListJobsByState(ctx, job.StateCreated, job.StateSubmitted)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = s.ListJobsByState(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestListSubmittableJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	eligible := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, eligible))

	critical := newTestJob("d2")
	require.NoError(t, s.CreateJob(ctx, critical))
	require.NoError(t, critical.MarkSubmitFailed("queue missing"))
	applied, err := s.UpdateJobIf(ctx, critical, job.StateCreated)
	require.NoError(t, err)
	require.True(t, applied)

	submitted := newTestJob("d3")
	require.NoError(t, s.CreateJob(ctx, submitted))
	require.NoError(t, submitted.MarkSubmitted("ext-1", submitted.CreatedAt))
	_, err = s.UpdateJobIf(ctx, submitted, job.StateCreated)
	require.NoError(t, err)

	// Only the clean CREATED job is eligible: critical-flagged and already
	// submitted jobs are skipped.
	jobs, err := s.ListSubmittableJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, eligible.ID, jobs[0].ID)
}

func TestUpdateJobIf_Guard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, j))

	require.NoError(t, j.MarkSubmitted("ext-1", j.CreatedAt))
	applied, err := s.UpdateJobIf(ctx, j, job.StateCreated)
	require.NoError(t, err)
	assert.True(t, applied)

	// A second transition guarded on CREATED loses: the row is SUBMITTED now.
	stale := *j
	applied, err = s.UpdateJobIf(ctx, &stale, job.StateCreated)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSubmitted, got.State)
	assert.Equal(t, "ext-1", got.BatchJobID)
}

func TestListJobsForDataset_AttemptOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, first))
	require.NoError(t, first.MarkTerminated("deploy", true, first.CreatedAt))
	_, err := s.UpdateJobIf(ctx, first, job.StateCreated)
	require.NoError(t, err)

	second, err := first.RetryJob(false)
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, second))

	chain, err := s.ListJobsForDataset(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 1, chain[0].Attempt)
	assert.Equal(t, 2, chain[1].Attempt)
}

func TestMaxAttempt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.MaxAttempt(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	j := newTestJob("d1")
	require.NoError(t, s.CreateJob(ctx, j))

	n, err = s.MaxAttempt(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCountJobsByState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, newTestJob("d1")))
	require.NoError(t, s.CreateJob(ctx, newTestJob("d2")))

	counts, err := s.CountJobsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[job.StateCreated])
}

func TestProjectLocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	locked, err := s.IsProjectLocked(ctx, "SCPCP000001")
	require.NoError(t, err)
	assert.False(t, locked, "unknown project is not locked")

	require.NoError(t, s.SetProjectsLocked(ctx, []string{"SCPCP000001", "SCPCP000002"}, true))

	locked, err = s.IsProjectLocked(ctx, "SCPCP000001")
	require.NoError(t, err)
	assert.True(t, locked)

	ids, err := s.ListLockedProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SCPCP000001", "SCPCP000002"}, ids)

	require.NoError(t, s.SetProjectsLocked(ctx, []string{"SCPCP000001"}, false))
	locked, err = s.IsProjectLocked(ctx, "SCPCP000001")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestDatasets_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := dataset.New(dataset.FormatSingleCellExperiment)
	d.Projects["SCPCP000001"] = dataset.ProjectRequest{
		Samples: map[dataset.Modality][]string{dataset.ModalitySingleCell: {"SCPCS000101"}},
	}
	d.DataHash = "dh"
	d.MetadataHash = "mh"
	d.ReadmeHash = "rh"
	d.CombinedHash = "ch"

	require.NoError(t, s.SaveDataset(ctx, d))

	got, err := s.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.CombinedHash, got.CombinedHash)
	assert.Equal(t, d.Projects, got.Projects)
	assert.False(t, got.NeedsAttention)
}

func TestFindDatasetByCombinedHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.FindDatasetByCombinedHash(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.FindDatasetByCombinedHash(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	d := dataset.New(dataset.FormatMetadata)
	d.Projects["SCPCP000001"] = dataset.ProjectRequest{IncludesBulk: true}
	d.CombinedHash = "ch-1"
	require.NoError(t, s.SaveDataset(ctx, d))

	got, err = s.FindDatasetByCombinedHash(ctx, "ch-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ID, got.ID)
}

func TestMarkDatasetNeedsAttention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := dataset.New(dataset.FormatMetadata)
	d.Projects["SCPCP000001"] = dataset.ProjectRequest{IncludesBulk: true}
	require.NoError(t, s.SaveDataset(ctx, d))

	require.NoError(t, s.MarkDatasetNeedsAttention(ctx, d.ID))

	got, err := s.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.NeedsAttention)
}

func TestFindLatestDatasetForRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	prior := dataset.New(dataset.FormatSingleCellExperiment)
	prior.Projects["SCPCP000001"] = dataset.ProjectRequest{IncludesBulk: true}
	prior.CombinedHash = "old"
	require.NoError(t, s.SaveDataset(ctx, prior))

	otherFormat := dataset.New(dataset.FormatAnnData)
	otherFormat.Projects["SCPCP000001"] = dataset.ProjectRequest{IncludesBulk: true}
	require.NoError(t, s.SaveDataset(ctx, otherFormat))

	got, err := s.FindLatestDatasetForRequest(ctx, dataset.FormatSingleCellExperiment, []string{"SCPCP000001"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, prior.ID, got.ID)

	got, err = s.FindLatestDatasetForRequest(ctx, dataset.FormatSingleCellExperiment, []string{"SCPCP000002"})
	require.NoError(t, err)
	assert.Nil(t, got)
}
