package models

import "time"

// ExportStatus is the outcome of one delivery attempt.
type ExportStatus string

const (
	ExportSuccess ExportStatus = "success"
	ExportFailed  ExportStatus = "failed"
)

// ExportLog is the audit record for a delivery attempt. Entries are immutable
// once written; retries overwrite by (JobID, Provider) so at-least-once task
// execution never duplicates a delivery record, with Attempts counting how
// many tries the key has seen.
type ExportLog struct {
	ID              string       `json:"id" yaml:"id"`
	JobID           string       `json:"jobId" yaml:"job_id"`
	SessionID       string       `json:"sessionId" yaml:"session_id"`
	Provider        string       `json:"provider" yaml:"provider"`
	Status          ExportStatus `json:"status" yaml:"status"`
	DestinationPath string       `json:"destinationPath,omitempty" yaml:"destination_path,omitempty"`
	Error           string       `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts        int          `json:"attempts" yaml:"attempts"`
	CreatedAt       time.Time    `json:"createdAt" yaml:"created_at"`
}
