package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/lightbooth/boothflow/internal/worker"
	"github.com/spf13/cobra"
)

var (
	workerCount        int
	workerPollInterval time.Duration
)

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker pool",
		Long: `Run a long-lived worker that claims pending jobs from the job store and
executes them on a bounded pool. Stops gracefully on SIGINT/SIGTERM: no new
jobs are claimed and in-flight jobs run to completion.`,
		Args: cobra.NoArgs,
		RunE: workerCommandE,
	}

	cmd.Flags().IntVar(&workerCount, "workers", 0, "Number of concurrent jobs (default from .boothflow.yaml)")
	cmd.Flags().DurationVar(&workerPollInterval, "poll-interval", 0, "Idle poll interval (default from .boothflow.yaml)")

	return cmd
}

func workerCommandE(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	workers := rt.cfg.Worker.Workers
	if workerCount > 0 {
		workers = workerCount
	}
	poll := time.Duration(rt.cfg.Worker.PollIntervalMillis) * time.Millisecond
	if workerPollInterval > 0 {
		poll = workerPollInterval
	}

	pool := worker.New(rt.store, rt.orchestrator,
		worker.WithConcurrency(workers),
		worker.WithPollInterval(poll),
		worker.WithWarnLogger(warnToStderr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Worker started: %d slot(s), polling every %v\n", workers, poll)

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Println("Worker stopped")
	return nil
}
