package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/delivery"
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *jobstore.SQLiteStore {
	t.Helper()
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completedSession() *models.Session {
	return &models.Session{
		ID:     "sess-1",
		Status: models.SessionCompleted,
		Mode:   models.ModeGuest,
		Responses: []models.StepResponse{
			{StepID: "step-1", StepName: "color", Value: "blue"},
		},
	}
}

func aiImageConfig() *models.ExperienceConfig {
	return &models.ExperienceConfig{
		ID:        "exp-1",
		ProjectID: "proj-1",
		Version:   3,
		Type:      models.OutputAIImage,
		AIImage: &models.AIImageConfig{
			Model:          "imagen-4",
			PromptTemplate: "@{step:color} cat",
			AspectRatio:    "1:1",
		},
	}
}

// eventRecorder collects progress events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *eventRecorder) listen(event ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func TestCreateJobFreezesSnapshot(t *testing.T) {
	store := testStore(t)
	orch := New(store, genapi.NewFakeClient(), assets.NewDirStore(t.TempDir()))
	ctx := context.Background()

	cfg := aiImageConfig()
	job, err := orch.CreateJob(ctx, completedSession(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, "proj-1", job.ProjectID)
	assert.Equal(t, 3, job.Snapshot.ExperienceVersion)

	// Editing the experience after creation never touches the job.
	cfg.AIImage.PromptTemplate = "@{step:color} dog"
	cfg.Version = 4

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "@{step:color} cat", got.Snapshot.AIImage.PromptTemplate)
	assert.Equal(t, 3, got.Snapshot.ExperienceVersion)
}

func TestCreateJobRejectsUnfinishedSessions(t *testing.T) {
	orch := New(testStore(t), genapi.NewFakeClient(), assets.NewDirStore(t.TempDir()))

	for _, status := range []models.SessionStatus{models.SessionActive, models.SessionAbandoned, models.SessionError} {
		t.Run(string(status), func(t *testing.T) {
			session := completedSession()
			session.Status = status

			_, err := orch.CreateJob(context.Background(), session, aiImageConfig())
			require.Error(t, err)

			var valErr *faults.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestExecuteCompletesAIImageJob(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()
	recorder := &eventRecorder{}

	orch := New(store, gen, assets.NewDirStore(t.TempDir()))
	orch.OnProgress(recorder.listen)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	require.NotNil(t, got.Output)
	assert.Equal(t, "fake-asset", got.Output.AssetID)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "blue cat", reqs[0].Prompt)

	assert.Equal(t, []EventType{
		EventJobCreated, EventJobStart, EventJobProgress, EventJobCompleted,
	}, recorder.types())
}

func TestUnsupportedTypeFailsWithoutEnteringRunning(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()
	orch := New(store, gen, assets.NewDirStore(t.TempDir()))
	ctx := context.Background()

	session := completedSession()
	cfg := &models.ExperienceConfig{
		ID:   "exp-1",
		Type: models.OutputGif,
		Gif:  &models.GifConfig{CaptureStepID: "step-1"},
	}

	job, err := orch.CreateJob(ctx, session, cfg)
	require.NoError(t, err)
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, faults.CodeUnsupportedType, got.Error.Code)
	assert.False(t, got.Error.IsRetryable)
	assert.Nil(t, got.StartedAt, "executor selection fails before the job enters running")
	assert.Zero(t, gen.CallCount())
}

func TestExecutorFailureWritesRetryableRecord(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()
	gen.Err = faults.Transient(faults.CodeUpstreamError, nil, "generation backend returned 503")

	orch := New(store, gen, assets.NewDirStore(t.TempDir()))
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, faults.CodeUpstreamError, got.Error.Code)
	assert.True(t, got.Error.IsRetryable)
	assert.NotEmpty(t, got.Error.Step)
}

func TestExecutionTimeoutFailsRetryably(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()
	gen.Delay = func(ctx context.Context) error {
		<-ctx.Done()
		return faults.Transient(faults.CodeTimeout, ctx.Err(), "generation timed out")
	}

	orch := New(store, gen, assets.NewDirStore(t.TempDir()),
		WithTimeouts(Timeouts{Photo: time.Millisecond, AIImage: time.Millisecond, AIVideo: time.Millisecond}))
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, faults.CodeTimeout, got.Error.Code)
	assert.True(t, got.Error.IsRetryable)
}

func TestCancellationDiscardsInFlightResult(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()

	started := make(chan struct{})
	gen.Delay = func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	orch := New(store, gen, assets.NewDirStore(t.TempDir()))
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- orch.Execute(ctx, job) }()

	<-started
	require.NoError(t, orch.Cancel(ctx, job.ID))
	require.NoError(t, <-done)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status, "the late result never overwrites cancellation")
	assert.Nil(t, got.Output)
}

func TestCancelledJobIsNeverStarted(t *testing.T) {
	store := testStore(t)
	gen := genapi.NewFakeClient()
	orch := New(store, gen, assets.NewDirStore(t.TempDir()))
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)
	require.NoError(t, orch.Cancel(ctx, job.ID))
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)
	assert.Zero(t, gen.CallCount(), "a cancelled job never reaches the generation API")
}

// failingDestination always fails with a permanent error.
type failingDestination struct{}

func (failingDestination) Name() string { return "webdrive" }

func (failingDestination) Upload(ctx context.Context, req *delivery.UploadRequest) (*delivery.UploadResult, error) {
	return nil, faults.Validation(faults.CodeInvalidReference, "destination misconfigured")
}

func TestDeliveryFailureLeavesJobCompleted(t *testing.T) {
	store := testStore(t)
	assetStore := assets.NewDirStore(t.TempDir())
	dispatcher := delivery.NewDispatcher(store, assetStore, []delivery.Destination{failingDestination{}})

	orch := New(store, genapi.NewFakeClient(), assetStore, WithDispatcher(dispatcher))
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, completedSession(), aiImageConfig())
	require.NoError(t, err)
	require.NoError(t, orch.Execute(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Nil(t, got.Error)

	logs, err := store.ListExportLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExportFailed, logs[0].Status)
}
