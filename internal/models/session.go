package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionStatus represents the lifecycle state of a guest session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
	SessionError     SessionStatus = "error"
)

// SessionMode distinguishes a creator previewing an experience from a real
// guest walking through it.
type SessionMode string

const (
	ModePreview SessionMode = "preview"
	ModeGuest   SessionMode = "guest"
)

// ConfigSource indicates which revision of the experience the session ran
// against.
type ConfigSource string

const (
	SourceDraft     ConfigSource = "draft"
	SourcePublished ConfigSource = "published"
)

// MediaReference points at an asset owned by the asset store. Responses and
// snapshots reference media, they never own it.
type MediaReference struct {
	AssetID     string `json:"assetId" yaml:"asset_id"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	StoragePath string `json:"storagePath,omitempty" yaml:"storage_path,omitempty"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
}

// StepResponse is a guest's answer to one experience step. Value is a scalar,
// a string array (multi-select), or nil. Context carries step-type specific
// structure: captured media references, selected option metadata, etc.
type StepResponse struct {
	StepID    string         `json:"stepId" yaml:"step_id"`
	StepName  string         `json:"stepName,omitempty" yaml:"step_name,omitempty"`
	StepType  string         `json:"stepType,omitempty" yaml:"step_type,omitempty"`
	Value     any            `json:"value,omitempty" yaml:"value,omitempty"`
	Context   map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updated_at"`
}

// ScalarValue returns the response value as a display string. Multi-select
// values are not flattened here; callers that need fragments use Selections.
func (r *StepResponse) ScalarValue() (string, bool) {
	switch v := r.Value.(type) {
	case string:
		return v, true
	case bool:
		return fmt.Sprintf("%t", v), true
	case int:
		return fmt.Sprintf("%d", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	case float64:
		// YAML/JSON decode numbers as float64; render integers without a
		// trailing .0 so prompts stay readable.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%g", v), true
	default:
		return "", false
	}
}

// Selections returns the response value as a string slice for multi-select
// steps, or nil when the value is not an array.
func (r *StepResponse) Selections() []string {
	switch v := r.Value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Session is a single guest walkthrough of an experience.
type Session struct {
	ID           string         `json:"id" yaml:"id"`
	ExperienceID string         `json:"experienceId,omitempty" yaml:"experience_id,omitempty"`
	Responses    []StepResponse `json:"responses" yaml:"responses"`
	Status       SessionStatus  `json:"status" yaml:"status"`
	Mode         SessionMode    `json:"mode,omitempty" yaml:"mode,omitempty"`
	ConfigSource ConfigSource   `json:"configSource,omitempty" yaml:"config_source,omitempty"`
}

// SetResponse upserts a response keyed by StepID. The last write wins for
// value, context, name, type, and UpdatedAt; the first write's CreatedAt is
// preserved. Insertion order of first writes is stable.
func (s *Session) SetResponse(resp StepResponse) {
	now := time.Now().UTC()
	if resp.UpdatedAt.IsZero() {
		resp.UpdatedAt = now
	}

	for i := range s.Responses {
		if s.Responses[i].StepID == resp.StepID {
			resp.CreatedAt = s.Responses[i].CreatedAt
			s.Responses[i] = resp
			return
		}
	}

	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = now
	}
	s.Responses = append(s.Responses, resp)
}

// Response returns the response for stepID, or nil.
func (s *Session) Response(stepID string) *StepResponse {
	for i := range s.Responses {
		if s.Responses[i].StepID == stepID {
			return &s.Responses[i]
		}
	}
	return nil
}

// ResponseByName returns the response whose StepName matches, or nil. Mention
// tokens address steps by name rather than ID.
func (s *Session) ResponseByName(name string) *StepResponse {
	for i := range s.Responses {
		if s.Responses[i].StepName == name {
			return &s.Responses[i]
		}
	}
	return nil
}

// Validate checks the minimal shape a session needs before entering the
// pipeline.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	seen := make(map[string]bool, len(s.Responses))
	for _, r := range s.Responses {
		if r.StepID == "" {
			return fmt.Errorf("session %s: response with empty step_id", s.ID)
		}
		if seen[r.StepID] {
			return fmt.Errorf("session %s: duplicate response for step %s", s.ID, r.StepID)
		}
		seen[r.StepID] = true
	}
	return nil
}

// LoadSession loads a session document from a YAML file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return nil, err
	}

	if err := session.Validate(); err != nil {
		return nil, err
	}

	return &session, nil
}
