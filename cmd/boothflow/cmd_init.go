package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lightbooth/boothflow/internal/projectconfig"
	"github.com/lightbooth/boothflow/internal/wizard"
)

func newInitCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new boothflow project",
		Long: `Initialize a new boothflow project directory.

Creates a .boothflow.yaml config file, the assets directory, and example
session and experience files to get started.

Use --interactive to run a guided wizard that collects paths and export
destination settings.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return initCommandE(cmd, args, interactive)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run guided project setup wizard")

	return cmd
}

func initCommandE(cmd *cobra.Command, args []string, interactive bool) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	spec := &wizard.ProjectSpec{
		AssetsDir:          projectconfig.DefaultAssetsDir,
		DatabasePath:       projectconfig.DefaultDatabasePath,
		GenerationEndpoint: projectconfig.DefaultGenerationEndpoint,
		Workers:            projectconfig.DefaultWorkers,
	}

	if interactive {
		collected, err := wizard.RunProjectWizard(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		spec = collected
	}

	content, err := wizard.GenerateConfigYAML(spec)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	configPath := filepath.Join(dir, projectconfig.ConfigFileName)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", projectconfig.ConfigFileName, err)
	}

	assetsDir := filepath.Join(dir, spec.AssetsDir)
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create assets directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(spec.DatabasePath)), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	sessionContent := `id: example-session-001
experience_id: example-experience
status: completed
mode: guest
config_source: published

responses:
  - step_id: style
    step_name: style
    value: watercolor
  - step_id: mood
    step_name: mood
    value: playful
`
	sessionPath := filepath.Join(dir, "example-session.yaml")
	if err := os.WriteFile(sessionPath, []byte(sessionContent), 0o644); err != nil {
		return fmt.Errorf("failed to write example session: %w", err)
	}

	experienceContent := `id: example-experience
version: 1
type: ai.image
ai_image:
  model: imagen-4
  prompt_template: "A @{step:style} portrait with a @{step:mood} feel"
  aspect_ratio: "1:1"
`
	experiencePath := filepath.Join(dir, "example-experience.yaml")
	if err := os.WriteFile(experiencePath, []byte(experienceContent), 0o644); err != nil {
		return fmt.Errorf("failed to write example experience: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Initialized boothflow project:") //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", configPath)              //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", sessionPath)             //nolint:errcheck
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", experiencePath)          //nolint:errcheck

	return nil
}
