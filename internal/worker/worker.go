// Package worker polls the job store for pending jobs and executes them on a
// bounded pool. Jobs share no mutable state; the store's atomic claim keeps
// concurrent workers from double-executing a job.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/lightbooth/boothflow/internal/pipeline"
)

const (
	defaultConcurrency  = 2
	defaultPollInterval = time.Second
)

// Pool claims and runs pending jobs until its context is cancelled.
type Pool struct {
	store        jobstore.Store
	orchestrator *pipeline.Orchestrator
	concurrency  int
	pollInterval time.Duration
	warnf        func(format string, args ...any)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency bounds how many jobs run at once.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how long the pool sleeps when no work is pending.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithWarnLogger routes pool warnings to fn.
func WithWarnLogger(fn func(format string, args ...any)) PoolOption {
	return func(p *Pool) { p.warnf = fn }
}

// New creates a pool executing claimed jobs through orch.
func New(store jobstore.Store, orch *pipeline.Orchestrator, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		orchestrator: orch,
		concurrency:  defaultConcurrency,
		pollInterval: defaultPollInterval,
		warnf:        func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls for pending jobs until ctx is cancelled, then waits for in-flight
// jobs to finish before returning.
func (p *Pool) Run(ctx context.Context) error {
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

loop:
	for {
		if err := ctx.Err(); err != nil {
			break
		}

		// Reserve a slot before claiming, so a full pool never moves a job
		// to running just to sit on it.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		job, err := p.store.ClaimPending(ctx)
		if err != nil {
			<-sem
			if errors.Is(err, jobstore.ErrNotFound) {
				if !p.sleep(ctx) {
					break
				}
				continue
			}
			if ctx.Err() != nil {
				break
			}
			p.warnf("[ERROR] claiming pending job: %v", err)
			if !p.sleep(ctx) {
				break
			}
			continue
		}

		// Detach the job from the poll context so shutdown lets in-flight
		// work finish instead of failing it mid-call.
		jobCtx := context.WithoutCancel(ctx)

		wg.Add(1)
		go func(job *models.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			p.run(jobCtx, job)
		}(job)
	}

	wg.Wait()
	return ctx.Err()
}

func (p *Pool) run(ctx context.Context, job *models.Job) {
	if err := p.orchestrator.Execute(ctx, job); err != nil {
		p.warnf("[ERROR] executing job %s: %v", job.ID, err)
	}
}

// sleep waits one poll interval. Returns false when ctx ended first.
func (p *Pool) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
