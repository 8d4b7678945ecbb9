package main

import (
	"fmt"

	"github.com/lightbooth/boothflow/internal/validation"
	"github.com/spf13/cobra"
)

var (
	validateSessions    []string
	validateExperiences []string
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate session and experience documents against their schemas",
		Long: `Validate YAML documents against the embedded JSON Schemas.

Pass files with --experience and --session (repeatable). The command exits
non-zero when any document fails validation.`,
		RunE: validateCommandE,
	}

	cmd.Flags().StringArrayVar(&validateExperiences, "experience", nil, "Experience config file to validate (can be repeated)")
	cmd.Flags().StringArrayVar(&validateSessions, "session", nil, "Session file to validate (can be repeated)")

	return cmd
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	if len(validateExperiences) == 0 && len(validateSessions) == 0 {
		return fmt.Errorf("nothing to validate: pass --experience and/or --session")
	}

	failed := 0

	for _, path := range validateExperiences {
		errs, err := validation.ValidateExperienceFile(path)
		if err != nil {
			return err
		}
		failed += reportFileErrors(path, errs)
	}
	for _, path := range validateSessions {
		errs, err := validation.ValidateSessionFile(path)
		if err != nil {
			return err
		}
		failed += reportFileErrors(path, errs)
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed validation", failed)
	}
	fmt.Println("All documents valid")
	return nil
}

func reportFileErrors(path string, errs []string) int {
	if len(errs) == 0 {
		fmt.Printf("✓ %s\n", path)
		return 0
	}
	fmt.Printf("✗ %s\n", path)
	for _, e := range errs {
		fmt.Printf("    %s\n", e)
	}
	return 1
}
