package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lightbooth/boothflow/internal/delivery"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/lightbooth/boothflow/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	runVerbose    bool
	runOutputPath string
	runNoDeliver  bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <session.yaml> <experience.yaml>",
		Short: "Run one transform job from a session and experience file",
		Long: `Run a single transform job end to end.

The session file holds the guest's completed walkthrough; the experience
file holds the creator's output configuration. The two are frozen into a
job snapshot, executed, and the result is delivered to any enabled export
destinations.`,
		Args: cobra.ExactArgs(2),
		RunE: runCommandE,
	}

	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output with detailed progress")
	cmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "Output JSON file for the finished job record")
	cmd.Flags().BoolVar(&runNoDeliver, "no-deliver", false, "Skip export destinations for this run")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	session, err := models.LoadSession(args[0])
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	experience, err := models.LoadExperienceConfig(args[1])
	if err != nil {
		return fmt.Errorf("failed to load experience: %w", err)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	orch := rt.orchestrator
	if runNoDeliver {
		// Rebuild without the dispatcher wired in.
		orch = pipeline.New(rt.store, rt.generator(), rt.assets,
			pipeline.WithTimeouts(rt.timeouts()),
			pipeline.WithWarnLogger(warnToStderr))
	}

	if runVerbose {
		orch.OnProgress(verboseProgressListener)
	} else {
		orch.OnProgress(simpleProgressListener)
	}

	fmt.Printf("Session:    %s\n", session.ID)
	fmt.Printf("Experience: %s (v%d)\n", experience.ID, experience.Version)
	fmt.Printf("Type:       %s\n", experience.Type)
	fmt.Println()

	ctx := context.Background()
	job, err := orch.CreateJob(ctx, session, experience)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if err := orch.Execute(ctx, job); err != nil {
		return fmt.Errorf("failed to execute job: %w", err)
	}

	finished, err := rt.store.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load finished job: %w", err)
	}

	printJobSummary(finished)
	if finished.Status == models.JobCompleted && finished.Output != nil {
		printNotification(finished, rt.cfg.Delivery.ResultPageBaseURL)
	}

	if runOutputPath != "" {
		if err := saveJob(finished, runOutputPath); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
		fmt.Printf("\nJob record saved to: %s\n", runOutputPath)
	}

	if finished.Status == models.JobFailed {
		code := ""
		if finished.Error != nil {
			code = finished.Error.Code
		}
		return &JobFailureError{Message: fmt.Sprintf("job %s failed (%s)", finished.ID, code)}
	}
	return nil
}

func verboseProgressListener(event pipeline.ProgressEvent) {
	switch event.EventType {
	case pipeline.EventJobCreated:
		fmt.Printf("Created job %s\n", event.JobID)
	case pipeline.EventJobStart:
		fmt.Printf("Running %s...\n", event.Step)
	case pipeline.EventJobProgress:
		fmt.Printf("  [%d%%] %s: %s\n", event.Percent, event.Step, event.Message)
	case pipeline.EventJobCompleted:
		duration := time.Duration(event.DurationMs) * time.Millisecond
		fmt.Printf("Completed in %v\n", duration)
	case pipeline.EventJobFailed:
		fmt.Printf("Failed at %s: %s\n", event.Step, event.Message)
	case pipeline.EventJobCancelled:
		fmt.Printf("Cancelled job %s\n", event.JobID)
	case pipeline.EventDeliveryStart:
		fmt.Println("Delivering to export destinations...")
	case pipeline.EventDeliveryComplete:
		fmt.Println("Delivery finished")
	}
}

func simpleProgressListener(event pipeline.ProgressEvent) {
	switch event.EventType {
	case pipeline.EventJobCompleted:
		fmt.Printf("✓ job %s completed\n", event.JobID)
	case pipeline.EventJobFailed:
		fmt.Printf("✗ job %s failed (%s)\n", event.JobID, event.Message)
	}
}

func printJobSummary(job *models.Job) {
	fmt.Println()
	fmt.Printf("Job:     %s\n", job.ID)
	fmt.Printf("Status:  %s\n", job.Status)

	if job.Output != nil {
		fmt.Printf("Output:  %s (%s, %dx%d, %s)\n",
			job.Output.AssetID, job.Output.Format,
			job.Output.Dimensions.Width, job.Output.Dimensions.Height,
			humanize.Bytes(uint64(job.Output.SizeBytes)))
		if job.Output.URL != "" {
			fmt.Printf("URL:     %s\n", job.Output.URL)
		}
	}
	if job.Error != nil {
		fmt.Printf("Error:   [%s] %s\n", job.Error.Code, job.Error.Message)
		fmt.Printf("Retry:   %v\n", job.Error.IsRetryable)
	}
}

// printNotification shows the guest-facing notification the destinations
// would send for this output.
func printNotification(job *models.Job, resultPageBase string) {
	resultPage := fmt.Sprintf("%s/%s", strings.TrimRight(resultPageBase, "/"), job.ID)
	note := delivery.ComposeNotification(job.Output, resultPage)

	fmt.Println()
	fmt.Printf("Notify:  [%s] %s\n", note.Format, note.Action)
	if note.ResultMediaURL != "" {
		fmt.Printf("Media:   %s\n", note.ResultMediaURL)
	}
	if note.ThumbnailURL != "" {
		fmt.Printf("Thumb:   %s\n", note.ThumbnailURL)
	}
	fmt.Printf("Page:    %s\n", note.ResultPageURL)
}

func saveJob(job *models.Job, path string) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
