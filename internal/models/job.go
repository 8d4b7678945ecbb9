package models

import (
	"time"
)

// JobStatus is the lifecycle state of a transform job. Transitions are
// monotonic: pending → running → {completed|failed|cancelled}. Terminal
// states have no exits.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobSnapshot freezes everything a job needs from the session and the
// experience at creation time. Later edits to the experience never change an
// already-created job: the snapshot is written once and never recomputed.
type JobSnapshot struct {
	ExperienceVersion int            `json:"experienceVersion" yaml:"experience_version"`
	Type              OutputType     `json:"type" yaml:"type"`
	Responses         []StepResponse `json:"responses" yaml:"responses"`

	// Only the active type's slot is populated; the rest stay nil.
	Photo   *PhotoConfig   `json:"photo,omitempty" yaml:"photo,omitempty"`
	AIImage *AIImageConfig `json:"aiImage,omitempty" yaml:"ai_image,omitempty"`
	AIVideo *AIVideoConfig `json:"aiVideo,omitempty" yaml:"ai_video,omitempty"`
}

// Response returns the snapshotted response for stepID, or nil.
func (s *JobSnapshot) Response(stepID string) *StepResponse {
	for i := range s.Responses {
		if s.Responses[i].StepID == stepID {
			return &s.Responses[i]
		}
	}
	return nil
}

// MediaFormat is the container format of a produced artifact.
type MediaFormat string

const (
	FormatImage MediaFormat = "image"
	FormatGif   MediaFormat = "gif"
	FormatVideo MediaFormat = "video"
)

// Dimensions is a pixel width/height pair.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// MediaOutput is the finished artifact a job produced.
type MediaOutput struct {
	AssetID          string      `json:"assetId" yaml:"asset_id"`
	URL              string      `json:"url" yaml:"url"`
	Format           MediaFormat `json:"format" yaml:"format"`
	Dimensions       Dimensions  `json:"dimensions" yaml:"dimensions"`
	SizeBytes        int64       `json:"sizeBytes" yaml:"size_bytes"`
	ProcessingTimeMs int64       `json:"processingTimeMs" yaml:"processing_time_ms"`
	ThumbnailURL     string      `json:"thumbnailUrl,omitempty" yaml:"thumbnail_url,omitempty"`
}

// ErrorRecord is the terminal error written when a job fails. Guest-facing
// surfaces show a generic retry prompt; Code and Message are for operators.
type ErrorRecord struct {
	Code        string    `json:"code" yaml:"code"`
	Message     string    `json:"message" yaml:"message"`
	Step        string    `json:"step,omitempty" yaml:"step,omitempty"`
	IsRetryable bool      `json:"isRetryable" yaml:"is_retryable"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// JobProgress is a coarse progress report written while a job runs.
// Concurrent writes are last-write-wins; percent is not required to be
// monotonic.
type JobProgress struct {
	Step    string `json:"step" yaml:"step"`
	Percent int    `json:"percent" yaml:"percent"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Job is one asynchronous transform of a completed session into media.
type Job struct {
	ID           string       `json:"id" yaml:"id"`
	ProjectID    string       `json:"projectId" yaml:"project_id"`
	SessionID    string       `json:"sessionId" yaml:"session_id"`
	ExperienceID string       `json:"experienceId" yaml:"experience_id"`
	Status       JobStatus    `json:"status" yaml:"status"`
	Progress     JobProgress  `json:"progress" yaml:"progress"`
	Output       *MediaOutput `json:"output,omitempty" yaml:"output,omitempty"`
	Error        *ErrorRecord `json:"error,omitempty" yaml:"error,omitempty"`
	Snapshot     JobSnapshot  `json:"snapshot" yaml:"snapshot"`

	CreatedAt   time.Time  `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updated_at"`
	StartedAt   *time.Time `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}
