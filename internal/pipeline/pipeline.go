// Package pipeline drives a transform job from snapshot to finished media:
// executor selection, status transitions, bounded execution, and the handoff
// to delivery. It is the only layer that writes job state.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/delivery"
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/lightbooth/boothflow/internal/outcome"
	"github.com/lightbooth/boothflow/internal/snapshot"
)

// Timeouts bounds one executor call per media type. Expiry fails the job
// with a retryable error.
type Timeouts struct {
	Photo   time.Duration
	AIImage time.Duration
	AIVideo time.Duration
}

// DefaultTimeouts returns the stock per-type execution bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Photo:   15 * time.Second,
		AIImage: 60 * time.Second,
		AIVideo: 300 * time.Second,
	}
}

func (t Timeouts) forType(kind models.OutputType) time.Duration {
	switch kind {
	case models.OutputAIImage:
		return t.AIImage
	case models.OutputAIVideo:
		return t.AIVideo
	default:
		return t.Photo
	}
}

// EventType identifies a progress event.
type EventType string

const (
	EventJobCreated       EventType = "job_created"
	EventJobStart         EventType = "job_start"
	EventJobProgress      EventType = "job_progress"
	EventJobCompleted     EventType = "job_completed"
	EventJobFailed        EventType = "job_failed"
	EventJobCancelled     EventType = "job_cancelled"
	EventDeliveryStart    EventType = "delivery_start"
	EventDeliveryComplete EventType = "delivery_complete"
)

// ProgressEvent is one update pushed to registered listeners.
type ProgressEvent struct {
	EventType  EventType
	JobID      string
	Step       string
	Percent    int
	Message    string
	DurationMs int64
	Details    map[string]any
}

// ProgressListener receives progress updates.
type ProgressListener func(event ProgressEvent)

// Orchestrator runs jobs against the store. Safe for concurrent use; jobs
// share no mutable state beyond the store's atomic transitions.
type Orchestrator struct {
	store      jobstore.Store
	generator  genapi.Client
	assets     assets.Store
	dispatcher *delivery.Dispatcher
	timeouts   Timeouts
	warnf      func(format string, args ...any)

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeouts overrides the per-type execution bounds.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

// WithDispatcher enables delivery after completion.
func WithDispatcher(d *delivery.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithWarnLogger routes non-fatal warnings to fn.
func WithWarnLogger(fn func(format string, args ...any)) Option {
	return func(o *Orchestrator) { o.warnf = fn }
}

// New creates an orchestrator over the given collaborators.
func New(store jobstore.Store, generator genapi.Client, assetStore assets.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		generator: generator,
		assets:    assetStore,
		timeouts:  DefaultTimeouts(),
		warnf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnProgress registers a progress listener.
func (o *Orchestrator) OnProgress(listener ProgressListener) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

func (o *Orchestrator) notify(event ProgressEvent) {
	o.progressMu.Lock()
	listeners := make([]ProgressListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// CreateJob freezes the session and experience into a pending job. Only
// completed sessions produce jobs; the snapshot is written once here and
// never recomputed.
func (o *Orchestrator) CreateJob(ctx context.Context, session *models.Session, cfg *models.ExperienceConfig) (*models.Job, error) {
	if session.Status != models.SessionCompleted {
		return nil, faults.Validation(faults.CodeInvalidSnapshot,
			"session %s is %s, only completed sessions produce jobs", session.ID, session.Status)
	}

	snap, err := snapshot.Build(session, cfg)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ProjectID:    cfg.ProjectID,
		SessionID:    session.ID,
		ExperienceID: cfg.ID,
		Snapshot:     *snap,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	o.notify(ProgressEvent{EventType: EventJobCreated, JobID: job.ID, Details: map[string]any{
		"type": string(snap.Type),
	}})
	return job, nil
}

// Cancel moves a non-terminal job to cancelled. Results that later arrive
// for the cancelled job are discarded by Execute.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	if err := o.store.MarkCancelled(ctx, jobID); err != nil {
		return err
	}
	o.notify(ProgressEvent{EventType: EventJobCancelled, JobID: jobID})
	return nil
}

// Execute runs one job to a terminal state. The job may be pending (direct
// invocation) or already running (claimed by a worker). Executor failures
// become the job's terminal error record; Execute itself only returns errors
// for store-level problems.
func (o *Orchestrator) Execute(ctx context.Context, job *models.Job) error {
	if job.Status.Terminal() {
		return nil
	}

	// Selecting the executor precedes any transition, so an unsupported
	// type fails the job without it ever entering running.
	exec, err := outcome.Create(job.Snapshot.Type, outcome.Deps{
		Generator: o.generator,
		Assets:    o.assets,
		Warn:      o.warnf,
	})
	if err != nil {
		return o.fail(ctx, job.ID, "select_executor", err)
	}

	if job.Status == models.JobPending {
		if err := o.store.MarkRunning(ctx, job.ID); err != nil {
			if errors.Is(err, jobstore.ErrInvalidTransition) {
				// Cancelled between claim and start.
				return nil
			}
			return err
		}
	}
	o.notify(ProgressEvent{EventType: EventJobStart, JobID: job.ID, Step: exec.Name()})
	o.progress(ctx, job.ID, models.JobProgress{Step: "generating", Percent: 10, Message: "processing media"})

	execCtx, cancel := context.WithTimeout(ctx, o.timeouts.forType(job.Snapshot.Type))
	defer cancel()

	started := time.Now()
	output, execErr := exec.Execute(execCtx, &job.Snapshot)
	elapsed := time.Since(started)

	if execErr != nil {
		return o.fail(ctx, job.ID, exec.Name(), execErr)
	}
	output.ProcessingTimeMs = elapsed.Milliseconds()

	if err := o.store.MarkCompleted(ctx, job.ID, output); err != nil {
		if errors.Is(err, jobstore.ErrInvalidTransition) {
			// The job was cancelled while the call was in flight. The
			// result is discarded; the job stays cancelled.
			o.warnf("[WARN] job %s finished after cancellation, discarding result", job.ID)
			return nil
		}
		return err
	}
	o.notify(ProgressEvent{
		EventType:  EventJobCompleted,
		JobID:      job.ID,
		DurationMs: elapsed.Milliseconds(),
		Details:    map[string]any{"format": string(output.Format)},
	})

	o.deliver(ctx, job.ID)
	return nil
}

// fail writes the terminal error record. Retryability is derived here, in
// the one place that owns that decision for job records.
func (o *Orchestrator) fail(ctx context.Context, jobID, step string, execErr error) error {
	rec := &models.ErrorRecord{
		Code:        faults.CodeOf(execErr),
		Message:     execErr.Error(),
		Step:        step,
		IsRetryable: faults.IsRetryable(execErr),
		Timestamp:   time.Now().UTC(),
	}

	if err := o.store.MarkFailed(ctx, jobID, rec); err != nil {
		if errors.Is(err, jobstore.ErrInvalidTransition) {
			o.warnf("[WARN] job %s failed after reaching a terminal state: %v", jobID, execErr)
			return nil
		}
		return err
	}
	o.notify(ProgressEvent{
		EventType: EventJobFailed,
		JobID:     jobID,
		Step:      step,
		Message:   rec.Code,
		Details:   map[string]any{"retryable": rec.IsRetryable},
	})
	return nil
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, p models.JobProgress) {
	if err := o.store.UpdateProgress(ctx, jobID, p); err != nil {
		o.warnf("[WARN] writing progress for job %s: %v", jobID, err)
		return
	}
	o.notify(ProgressEvent{
		EventType: EventJobProgress,
		JobID:     jobID,
		Step:      p.Step,
		Percent:   p.Percent,
		Message:   p.Message,
	})
}

// deliver hands the completed job to the dispatcher. Delivery failures are
// logged on the export trail and never touch the job's terminal status.
func (o *Orchestrator) deliver(ctx context.Context, jobID string) {
	if o.dispatcher == nil {
		return
	}

	completed, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.warnf("[ERROR] loading job %s for delivery: %v", jobID, err)
		return
	}

	o.notify(ProgressEvent{EventType: EventDeliveryStart, JobID: jobID})
	if err := o.dispatcher.Deliver(ctx, completed); err != nil {
		o.warnf("[WARN] delivery for job %s: %v", jobID, err)
	}
	o.notify(ProgressEvent{EventType: EventDeliveryComplete, JobID: jobID})
}
