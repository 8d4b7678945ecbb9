package delivery

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDestination counts upload attempts and fails the first failUntil calls
// with failWith before succeeding.
type fakeDestination struct {
	name      string
	failWith  error
	failUntil int

	mu    sync.Mutex
	calls int
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	d.mu.Lock()
	d.calls++
	calls := d.calls
	d.mu.Unlock()

	if d.failWith != nil && calls <= d.failUntil {
		return nil, d.failWith
	}
	return &UploadResult{Path: d.name + "/" + req.FileName}, nil
}

func (d *fakeDestination) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func deliveryFixture(t *testing.T) (*jobstore.SQLiteStore, assets.Store, *models.Job) {
	t.Helper()

	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := &models.Job{
		SessionID: "sess-1",
		Snapshot:  models.JobSnapshot{Type: models.OutputPhoto, Photo: &models.PhotoConfig{}},
	}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.MarkRunning(ctx, job.ID))

	assetDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "out-1"), []byte("finished media"), 0644))

	output := &models.MediaOutput{AssetID: "out-1", Format: models.FormatImage, SizeBytes: 14}
	require.NoError(t, store.MarkCompleted(ctx, job.ID, output))

	completed, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	return store, assets.NewDirStore(assetDir), completed
}

// readingDestination consumes the payload the way a real provider does.
type readingDestination struct {
	name string

	mu       sync.Mutex
	received []byte
}

func (d *readingDestination) Name() string { return d.name }

func (d *readingDestination) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	body, _, err := req.Payload()
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.received = data
	d.mu.Unlock()
	return &UploadResult{Path: d.name + "/" + req.FileName}, nil
}

// A job whose output was written through the asset store must be readable
// again at delivery time from the MediaOutput's asset ID alone, which is how
// executor-stored results reach the dispatcher.
func TestDeliverOpensExecutorStoredOutput(t *testing.T) {
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assetStore := assets.NewDirStore(t.TempDir())
	content := []byte("composited guest photo")
	stored, err := assetStore.Put("guest.png", bytes.NewReader(content))
	require.NoError(t, err)

	ctx := context.Background()
	job := &models.Job{
		SessionID: "sess-1",
		Snapshot:  models.JobSnapshot{Type: models.OutputPhoto, Photo: &models.PhotoConfig{}},
	}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.MarkRunning(ctx, job.ID))
	require.NoError(t, store.MarkCompleted(ctx, job.ID, &models.MediaOutput{
		AssetID:   stored.AssetID,
		Format:    models.FormatImage,
		SizeBytes: int64(len(content)),
	}))
	completed, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	dest := &readingDestination{name: "webdrive"}
	d := NewDispatcher(store, assetStore, []Destination{dest})

	require.NoError(t, d.Deliver(ctx, completed))
	assert.Equal(t, content, dest.received)

	logs, err := store.ListExportLogs(ctx, completed.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExportSuccess, logs[0].Status)
}

func TestDeliverFansOutToAllDestinations(t *testing.T) {
	store, assetStore, job := deliveryFixture(t)
	ctx := context.Background()

	a := &fakeDestination{name: "webdrive"}
	b := &fakeDestination{name: "azureblob"}
	d := NewDispatcher(store, assetStore, []Destination{a, b})

	require.NoError(t, d.Deliver(ctx, job))
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, 1, b.callCount())

	logs, err := store.ListExportLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, entry := range logs {
		assert.Equal(t, models.ExportSuccess, entry.Status)
		assert.NotEmpty(t, entry.DestinationPath)
		assert.Equal(t, "sess-1", entry.SessionID)
	}
}

func TestDeliveryFailureLeavesJobCompleted(t *testing.T) {
	store, assetStore, job := deliveryFixture(t)
	ctx := context.Background()

	broken := &fakeDestination{
		name:      "webdrive",
		failWith:  faults.Validation(faults.CodeInvalidReference, "bad path"),
		failUntil: 99,
	}
	healthy := &fakeDestination{name: "azureblob"}
	d := NewDispatcher(store, assetStore, []Destination{broken, healthy})

	err := d.Deliver(ctx, job)
	require.Error(t, err, "terminal delivery failures surface for logging")

	// The failure is recorded in the export log, not on the job.
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Nil(t, got.Error)

	logs, err := store.ListExportLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ExportSuccess, logs[0].Status, "azureblob unaffected by webdrive's failure")
	assert.Equal(t, models.ExportFailed, logs[1].Status)
	assert.Contains(t, logs[1].Error, "bad path")
}

func TestTransientFailuresAreRetried(t *testing.T) {
	store, assetStore, job := deliveryFixture(t)

	flaky := &fakeDestination{
		name:      "webdrive",
		failWith:  faults.Transient(faults.CodeUpstreamError, nil, "503"),
		failUntil: 2,
	}
	d := NewDispatcher(store, assetStore, []Destination{flaky},
		WithBackoff(time.Millisecond, 2))

	require.NoError(t, d.Deliver(context.Background(), job))
	assert.Equal(t, 3, flaky.callCount(), "two retries after the first attempt")

	logs, err := store.ListExportLogs(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExportSuccess, logs[0].Status)
}

func TestPermanentFailuresAreNotRetried(t *testing.T) {
	store, assetStore, job := deliveryFixture(t)

	oversized := &fakeDestination{
		name:      "webdrive",
		failWith:  faults.Validation(faults.CodeFileSizeExceeded, "too big"),
		failUntil: 99,
	}
	d := NewDispatcher(store, assetStore, []Destination{oversized},
		WithBackoff(time.Millisecond, 2))

	require.Error(t, d.Deliver(context.Background(), job))
	assert.Equal(t, 1, oversized.callCount(), "validation failures burn no retries")
}

func TestRevokedGrantIsNeverRetried(t *testing.T) {
	store, assetStore, job := deliveryFixture(t)

	revoked := &fakeDestination{
		name:      "webdrive",
		failWith:  faults.Auth(faults.CodeNeedsReauth, true, "grant revoked"),
		failUntil: 99,
	}
	d := NewDispatcher(store, assetStore, []Destination{revoked},
		WithBackoff(time.Millisecond, 2))

	require.Error(t, d.Deliver(context.Background(), job))
	assert.Equal(t, 1, revoked.callCount())

	logs, err := store.ListExportLogs(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExportFailed, logs[0].Status)
	assert.Contains(t, logs[0].Error, "needs_reauth")
}

func TestComposeNotification(t *testing.T) {
	testCases := []struct {
		name   string
		output models.MediaOutput
		want   Notification
	}{
		{
			name:   "image embeds media",
			output: models.MediaOutput{Format: models.FormatImage, URL: "https://m/img.png"},
			want: Notification{
				Format:         models.FormatImage,
				ResultMediaURL: "https://m/img.png",
				ResultPageURL:  "https://r/abc",
				Action:         "View & Download",
			},
		},
		{
			name:   "gif embeds media",
			output: models.MediaOutput{Format: models.FormatGif, URL: "https://m/loop.gif"},
			want: Notification{
				Format:         models.FormatGif,
				ResultMediaURL: "https://m/loop.gif",
				ResultPageURL:  "https://r/abc",
				Action:         "View & Download",
			},
		},
		{
			name: "video links out with thumbnail",
			output: models.MediaOutput{
				Format:       models.FormatVideo,
				URL:          "https://m/clip.mp4",
				ThumbnailURL: "https://m/clip-thumb.png",
			},
			want: Notification{
				Format:        models.FormatVideo,
				ThumbnailURL:  "https://m/clip-thumb.png",
				ResultPageURL: "https://r/abc",
				Action:        "Watch Video",
			},
		},
		{
			name:   "video without thumbnail gets placeholder",
			output: models.MediaOutput{Format: models.FormatVideo, URL: "https://m/clip.mp4"},
			want: Notification{
				Format:        models.FormatVideo,
				ThumbnailURL:  placeholderThumbnailURL,
				ResultPageURL: "https://r/abc",
				Action:        "Watch Video",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComposeNotification(&tc.output, "https://r/abc")
			assert.Equal(t, tc.want, got)
			if tc.output.Format == models.FormatVideo {
				assert.Empty(t, got.ResultMediaURL, "video is never embedded inline")
			}
		})
	}
}
