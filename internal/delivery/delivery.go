// Package delivery moves finished job media to the configured export
// destinations and records the outcome. Delivery runs after a job reaches a
// terminal status and never changes it: a failed upload produces a failed
// export log on a still-completed job.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// UploadRequest is one delivery payload. Payload re-opens the content for
// each attempt so retried uploads never reuse a drained reader.
type UploadRequest struct {
	JobID     string
	SessionID string
	FileName  string
	SizeBytes int64
	Output    *models.MediaOutput
	Payload   func() (io.ReadCloser, int64, error)
}

// UploadResult reports where a destination stored the payload.
type UploadResult struct {
	Path string
	URL  string
}

// Destination is one configured export target.
type Destination interface {
	Name() string
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

// Dispatcher fans a completed job's output out to every destination.
type Dispatcher struct {
	store        jobstore.Store
	assets       assets.Store
	destinations []Destination
	warnf        func(format string, args ...any)
	backoffBase  time.Duration
	maxRetries   uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWarnLogger routes delivery warnings to fn instead of discarding them.
func WithWarnLogger(fn func(format string, args ...any)) DispatcherOption {
	return func(d *Dispatcher) { d.warnf = fn }
}

// WithBackoff overrides the retry schedule. maxRetries counts retries after
// the first attempt.
func WithBackoff(base time.Duration, maxRetries uint64) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoffBase = base
		d.maxRetries = maxRetries
	}
}

// NewDispatcher creates a dispatcher writing outcomes to store.
func NewDispatcher(store jobstore.Store, assetStore assets.Store, destinations []Destination, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		assets:       assetStore,
		destinations: destinations,
		warnf:        func(string, ...any) {},
		backoffBase:  500 * time.Millisecond,
		maxRetries:   2,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver uploads job's output to every destination, each on its own
// goroutine with its own retry budget. One destination failing has no effect
// on the others or on the job itself. The returned error joins the terminal
// failures and is for logging only.
func (d *Dispatcher) Deliver(ctx context.Context, job *models.Job) error {
	if job.Output == nil {
		return fmt.Errorf("job %s has no output to deliver", job.ID)
	}
	if len(d.destinations) == 0 {
		return nil
	}

	req := &UploadRequest{
		JobID:     job.ID,
		SessionID: job.SessionID,
		FileName:  job.ID + extensionFor(job.Output.Format),
		SizeBytes: job.Output.SizeBytes,
		Output:    job.Output,
		Payload: func() (io.ReadCloser, int64, error) {
			return d.assets.Open(models.MediaReference{AssetID: job.Output.AssetID, URL: job.Output.URL})
		},
	}

	eg := errgroup.Group{}
	for _, dest := range d.destinations {
		eg.Go(func() error {
			return d.deliverOne(ctx, dest, req)
		})
	}
	return eg.Wait()
}

func (d *Dispatcher) deliverOne(ctx context.Context, dest Destination, req *UploadRequest) error {
	var result *UploadResult

	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		result, attemptErr = dest.Upload(ctx, req)
		if attemptErr == nil {
			return nil
		}
		if faults.IsRetryable(attemptErr) {
			d.warnf("[WARN] export to %s failed, will retry: %v", dest.Name(), attemptErr)
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})

	entry := &models.ExportLog{
		JobID:     req.JobID,
		SessionID: req.SessionID,
		Provider:  dest.Name(),
		Status:    models.ExportSuccess,
	}
	if err != nil {
		entry.Status = models.ExportFailed
		entry.Error = err.Error()
		if faults.NeedsReauth(err) {
			d.warnf("[WARN] destination %s needs re-authentication", dest.Name())
		}
	} else if result != nil {
		entry.DestinationPath = result.Path
	}

	if logErr := d.store.WriteExportLog(ctx, entry); logErr != nil {
		d.warnf("[ERROR] recording export log for %s: %v", dest.Name(), logErr)
		err = errors.Join(err, logErr)
	}
	if err != nil {
		return fmt.Errorf("delivering job %s to %s: %w", req.JobID, dest.Name(), err)
	}
	return nil
}

func extensionFor(format models.MediaFormat) string {
	switch format {
	case models.FormatGif:
		return ".gif"
	case models.FormatVideo:
		return ".mp4"
	default:
		return ".png"
	}
}
