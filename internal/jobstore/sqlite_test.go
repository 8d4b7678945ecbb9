package jobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testJob() *models.Job {
	return &models.Job{
		ProjectID:    "proj-1",
		SessionID:    "sess-1",
		ExperienceID: "exp-1",
		Snapshot: models.JobSnapshot{
			ExperienceVersion: 4,
			Type:              models.OutputAIImage,
			AIImage:           &models.AIImageConfig{Model: "imagen-4", PromptTemplate: "@{step:color} cat"},
			Responses: []models.StepResponse{
				{StepID: "step-1", StepName: "color", Value: "blue"},
			},
		},
	}
}

func TestCreateAndGetJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, store.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, 4, got.Snapshot.ExperienceVersion)
	require.NotNil(t, got.Snapshot.AIImage)
	assert.Equal(t, "@{step:color} cat", got.Snapshot.AIImage.PromptTemplate)
	assert.Equal(t, "blue", got.Snapshot.Responses[0].Value)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, store.MarkRunning(ctx, job.ID))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	// running → running is forbidden.
	assert.ErrorIs(t, store.MarkRunning(ctx, job.ID), ErrInvalidTransition)

	output := &models.MediaOutput{AssetID: "out-1", URL: "https://m/out-1", Format: models.FormatImage}
	require.NoError(t, store.MarkCompleted(ctx, job.ID, output))

	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Output)
	assert.Equal(t, "out-1", got.Output.AssetID)

	// No exits from a terminal state.
	assert.ErrorIs(t, store.MarkFailed(ctx, job.ID, &models.ErrorRecord{Code: "x"}), ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkCancelled(ctx, job.ID), ErrInvalidTransition)
}

func TestCancelledJobDiscardsLateResult(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.MarkRunning(ctx, job.ID))
	require.NoError(t, store.MarkCancelled(ctx, job.ID))

	// The executor's result arrives after cancellation: the write must be
	// rejected and the job must stay cancelled with no output.
	err := store.MarkCompleted(ctx, job.ID, &models.MediaOutput{AssetID: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)
	assert.Nil(t, got.Output)
}

func TestPendingJobCanFailDirectly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, store.CreateJob(ctx, job))

	rec := &models.ErrorRecord{Code: "unsupported_output_type", Message: "survey", IsRetryable: false}
	require.NoError(t, store.MarkFailed(ctx, job.ID, rec))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.False(t, got.Error.IsRetryable)
	assert.Nil(t, got.StartedAt, "a fail-fast job never entered running")
}

func TestClaimPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testJob()
	require.NoError(t, store.CreateJob(ctx, first))
	second := testJob()
	require.NoError(t, store.CreateJob(ctx, second))

	claimed, err := store.ClaimPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, claimed.Status)

	claimedAgain, err := store.ClaimPending(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, claimed.ID, claimedAgain.ID, "each claim takes a distinct job")

	_, err = store.ClaimPending(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "no pending jobs left")
}

func TestUpdateProgressOnlyWhileRunning(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, store.CreateJob(ctx, job))

	// Ignored while pending.
	require.NoError(t, store.UpdateProgress(ctx, job.ID, models.JobProgress{Step: "early", Percent: 10}))
	got, _ := store.GetJob(ctx, job.ID)
	assert.Empty(t, got.Progress.Step)

	require.NoError(t, store.MarkRunning(ctx, job.ID))
	require.NoError(t, store.UpdateProgress(ctx, job.ID, models.JobProgress{Step: "generating", Percent: 40}))
	require.NoError(t, store.UpdateProgress(ctx, job.ID, models.JobProgress{Step: "uploading", Percent: 30}))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploading", got.Progress.Step, "last write wins, monotonicity not required")
	assert.Equal(t, 30, got.Progress.Percent)
}

func TestExportLogOverwriteByJobAndProvider(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := &models.ExportLog{
		JobID:     "job-1",
		SessionID: "sess-1",
		Provider:  "webdrive",
		Status:    models.ExportFailed,
		Error:     "timeout",
	}
	require.NoError(t, store.WriteExportLog(ctx, entry))

	retry := &models.ExportLog{
		JobID:           "job-1",
		SessionID:       "sess-1",
		Provider:        "webdrive",
		Status:          models.ExportSuccess,
		DestinationPath: "/exports/job-1.png",
	}
	require.NoError(t, store.WriteExportLog(ctx, retry))

	other := &models.ExportLog{JobID: "job-1", SessionID: "sess-1", Provider: "azureblob", Status: models.ExportSuccess}
	require.NoError(t, store.WriteExportLog(ctx, other))

	logs, err := store.ListExportLogs(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, logs, 2, "one record per (job, provider)")

	assert.Equal(t, "azureblob", logs[0].Provider)
	assert.Equal(t, "webdrive", logs[1].Provider)
	assert.Equal(t, models.ExportSuccess, logs[1].Status)
	assert.Equal(t, 2, logs[1].Attempts, "retry accumulates the attempt count")
	assert.Equal(t, "/exports/job-1.png", logs[1].DestinationPath)
}
