// Package jobstore persists transform jobs and their export audit trail.
// Status transitions are enforced here with guarded updates, so the
// monotonic state machine holds even across concurrent workers: pending →
// running → {completed|failed|cancelled}, with no exit from terminal states.
package jobstore

import (
	"context"
	"errors"

	"github.com/lightbooth/boothflow/internal/models"
)

// ErrNotFound is returned when a job ID matches no stored record.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a status change would violate the
// job state machine, including any attempt to leave a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store persists jobs and export logs.
type Store interface {
	// CreateJob persists a new pending job. The snapshot is written once
	// here and never updated afterwards.
	CreateJob(ctx context.Context, job *models.Job) error

	// GetJob returns the job by ID, or ErrNotFound.
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// ListJobs returns up to limit jobs, newest first.
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)

	// ClaimPending atomically moves the oldest pending job to running and
	// returns it. Returns ErrNotFound when no pending job exists.
	ClaimPending(ctx context.Context) (*models.Job, error)

	// MarkRunning transitions pending → running and records startedAt.
	MarkRunning(ctx context.Context, id string) error

	// MarkCompleted transitions running → completed with the output. A job
	// that was cancelled while its call was in flight stays cancelled:
	// the transition fails with ErrInvalidTransition and the result is
	// discarded by the caller.
	MarkCompleted(ctx context.Context, id string, output *models.MediaOutput) error

	// MarkFailed transitions pending|running → failed with the terminal
	// error record.
	MarkFailed(ctx context.Context, id string, rec *models.ErrorRecord) error

	// MarkCancelled transitions any non-terminal state → cancelled.
	MarkCancelled(ctx context.Context, id string) error

	// UpdateProgress writes a progress report. Last write wins; writes
	// against non-running jobs are ignored.
	UpdateProgress(ctx context.Context, id string, progress models.JobProgress) error

	// WriteExportLog records a delivery attempt, overwriting by
	// (jobID, provider) so task retries stay idempotent. The attempt
	// counter accumulates across overwrites.
	WriteExportLog(ctx context.Context, entry *models.ExportLog) error

	// ListExportLogs returns the delivery records for a job.
	ListExportLogs(ctx context.Context, jobID string) ([]models.ExportLog, error)

	Close() error
}
