package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/spf13/cobra"
)

var jobsLimit int

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect persisted jobs and their export logs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		Args:  cobra.NoArgs,
		RunE:  jobsListE,
	}
	listCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum number of jobs to show")

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its delivery records",
		Args:  cobra.ExactArgs(1),
		RunE:  jobsShowE,
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func jobsListE(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	jobs, err := rt.store.ListJobs(context.Background(), jobsLimit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs recorded")
		return nil
	}

	fmt.Printf("%-36s %-10s %-10s %-10s %s\n", "ID", "Status", "Type", "Size", "Created")
	for _, job := range jobs {
		size := "-"
		if job.Output != nil {
			size = humanize.Bytes(uint64(job.Output.SizeBytes))
		}
		fmt.Printf("%-36s %-10s %-10s %-10s %s\n",
			job.ID, job.Status, job.Snapshot.Type, size,
			humanize.Time(job.CreatedAt))
	}
	return nil
}

func jobsShowE(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	ctx := context.Background()
	job, err := rt.store.GetJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	fmt.Printf("Job:        %s\n", job.ID)
	fmt.Printf("Session:    %s\n", job.SessionID)
	fmt.Printf("Experience: %s (v%d)\n", job.ExperienceID, job.Snapshot.ExperienceVersion)
	fmt.Printf("Type:       %s\n", job.Snapshot.Type)
	fmt.Printf("Status:     %s\n", job.Status)
	fmt.Printf("Created:    %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("Started:    %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Finished:   %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Status == models.JobRunning {
		fmt.Printf("Progress:   [%d%%] %s %s\n", job.Progress.Percent, job.Progress.Step, job.Progress.Message)
	}

	if job.Output != nil {
		fmt.Println()
		fmt.Printf("Output:     %s\n", job.Output.AssetID)
		fmt.Printf("Format:     %s (%dx%d)\n", job.Output.Format,
			job.Output.Dimensions.Width, job.Output.Dimensions.Height)
		fmt.Printf("Size:       %s\n", humanize.Bytes(uint64(job.Output.SizeBytes)))
		fmt.Printf("Processing: %dms\n", job.Output.ProcessingTimeMs)
	}
	if job.Error != nil {
		fmt.Println()
		fmt.Printf("Error:      [%s] %s\n", job.Error.Code, job.Error.Message)
		fmt.Printf("Retryable:  %v\n", job.Error.IsRetryable)
	}

	logs, err := rt.store.ListExportLogs(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list export logs: %w", err)
	}
	if len(logs) > 0 {
		fmt.Println()
		fmt.Println("Exports:")
		for _, entry := range logs {
			line := fmt.Sprintf("  %-12s %-8s attempts=%d", entry.Provider, entry.Status, entry.Attempts)
			if entry.DestinationPath != "" {
				line += "  " + entry.DestinationPath
			}
			if entry.Error != "" {
				line += "  " + entry.Error
			}
			fmt.Println(line)
		}
	}
	return nil
}
