package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Command completed
	ExitJobFailed = 1 // The transform job ran but ended failed
	ExitError     = 2 // Configuration or runtime error
)

// JobFailureError indicates the pipeline ran to completion but the job
// itself ended in the failed state.
type JobFailureError struct {
	Message string
}

func (e *JobFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var jobErr *JobFailureError
		if errors.As(err, &jobErr) {
			os.Exit(ExitJobFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
