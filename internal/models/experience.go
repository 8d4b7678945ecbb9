package models

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputType is the kind of media an experience produces. Survey experiences
// produce nothing and never enter the transform pipeline.
type OutputType string

const (
	OutputPhoto   OutputType = "photo"
	OutputGif     OutputType = "gif"
	OutputVideo   OutputType = "video"
	OutputAIImage OutputType = "ai.image"
	OutputAIVideo OutputType = "ai.video"
	OutputSurvey  OutputType = "survey"
)

// VideoTask selects the input shape for AI video generation.
type VideoTask string

const (
	TaskImageToVideo     VideoTask = "image-to-video"
	TaskRefImagesToVideo VideoTask = "ref-images-to-video"
	TaskTransform        VideoTask = "transform"
	TaskReimagine        VideoTask = "reimagine"

	// legacyTaskAnimate is the historical name for image-to-video. Configs
	// in the wild still carry it, so it normalizes silently at parse time.
	legacyTaskAnimate = "animate"
)

func normalizeVideoTask(raw string) VideoTask {
	if raw == legacyTaskAnimate {
		return TaskImageToVideo
	}
	return VideoTask(raw)
}

// UnmarshalYAML normalizes legacy task names.
func (t *VideoTask) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = normalizeVideoTask(raw)
	return nil
}

// UnmarshalJSON normalizes legacy task names.
func (t *VideoTask) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = normalizeVideoTask(raw)
	return nil
}

// PhotoConfig configures plain photo output: the captured media is delivered
// as-is, optionally composited with an overlay.
type PhotoConfig struct {
	CaptureStepID  string `json:"captureStepId" yaml:"capture_step_id"`
	OverlayAssetID string `json:"overlayAssetId,omitempty" yaml:"overlay_asset_id,omitempty"`
}

// GifConfig configures animated GIF output (burst capture stitched into a
// loop). Generation for this type is not implemented yet; the config shape
// exists so editors can persist drafts.
type GifConfig struct {
	CaptureStepID string `json:"captureStepId" yaml:"capture_step_id"`
	FrameCount    int    `json:"frameCount,omitempty" yaml:"frame_count,omitempty"`
}

// VideoConfig configures plain video clip output. Not implemented yet.
type VideoConfig struct {
	CaptureStepID string `json:"captureStepId" yaml:"capture_step_id"`
	MaxDurationS  int    `json:"maxDurationSeconds,omitempty" yaml:"max_duration_seconds,omitempty"`
}

// AIImageConfig configures AI image generation.
type AIImageConfig struct {
	Model          string           `json:"model" yaml:"model"`
	PromptTemplate string           `json:"promptTemplate" yaml:"prompt_template"`
	AspectRatio    string           `json:"aspectRatio,omitempty" yaml:"aspect_ratio,omitempty"`
	ReferenceMedia []MediaReference `json:"referenceMedia,omitempty" yaml:"reference_media,omitempty"`
	CaptureStepID  string           `json:"captureStepId,omitempty" yaml:"capture_step_id,omitempty"`
}

// AIVideoConfig configures AI video generation.
type AIVideoConfig struct {
	Task            VideoTask        `json:"task" yaml:"task"`
	Model           string           `json:"model" yaml:"model"`
	PromptTemplate  string           `json:"promptTemplate" yaml:"prompt_template"`
	AspectRatio     string           `json:"aspectRatio,omitempty" yaml:"aspect_ratio,omitempty"`
	ReferenceMedia  []MediaReference `json:"referenceMedia,omitempty" yaml:"reference_media,omitempty"`
	CaptureStepID   string           `json:"captureStepId" yaml:"capture_step_id"`
	DurationSeconds int              `json:"durationSeconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// ExperienceConfig is the creator-maintained configuration for one
// experience. Exactly one type-specific slot is populated for the active
// Type; all others stay nil. Survey experiences populate no slot at all.
type ExperienceConfig struct {
	ID        string     `json:"id" yaml:"id"`
	ProjectID string     `json:"projectId,omitempty" yaml:"project_id,omitempty"`
	Version   int        `json:"version" yaml:"version"`
	Type      OutputType `json:"type" yaml:"type"`

	Photo   *PhotoConfig   `json:"photo,omitempty" yaml:"photo,omitempty"`
	Gif     *GifConfig     `json:"gif,omitempty" yaml:"gif,omitempty"`
	Video   *VideoConfig   `json:"video,omitempty" yaml:"video,omitempty"`
	AIImage *AIImageConfig `json:"aiImage,omitempty" yaml:"ai_image,omitempty"`
	AIVideo *AIVideoConfig `json:"aiVideo,omitempty" yaml:"ai_video,omitempty"`
}

// SwitchOutputType changes the experience to a new output type. The previous
// type's slot is cleared and the new type's slot gets zero-value defaults, so
// stale fields from the old type can never leak into later snapshots.
func (c *ExperienceConfig) SwitchOutputType(newType OutputType) {
	c.clearSlot(c.Type)
	c.Type = newType

	switch newType {
	case OutputPhoto:
		c.Photo = &PhotoConfig{}
	case OutputGif:
		c.Gif = &GifConfig{}
	case OutputVideo:
		c.Video = &VideoConfig{}
	case OutputAIImage:
		c.AIImage = &AIImageConfig{}
	case OutputAIVideo:
		c.AIVideo = &AIVideoConfig{Task: TaskImageToVideo}
	case OutputSurvey:
		// Surveys carry no output config.
	}
}

func (c *ExperienceConfig) clearSlot(t OutputType) {
	switch t {
	case OutputPhoto:
		c.Photo = nil
	case OutputGif:
		c.Gif = nil
	case OutputVideo:
		c.Video = nil
	case OutputAIImage:
		c.AIImage = nil
	case OutputAIVideo:
		c.AIVideo = nil
	}
}

// Validate checks that the active type has its slot populated and that no
// stale slots linger.
func (c *ExperienceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("experience id is required")
	}

	switch c.Type {
	case OutputPhoto:
		if c.Photo == nil {
			return fmt.Errorf("experience %s: type photo requires a photo config", c.ID)
		}
	case OutputGif:
		if c.Gif == nil {
			return fmt.Errorf("experience %s: type gif requires a gif config", c.ID)
		}
	case OutputVideo:
		if c.Video == nil {
			return fmt.Errorf("experience %s: type video requires a video config", c.ID)
		}
	case OutputAIImage:
		if c.AIImage == nil {
			return fmt.Errorf("experience %s: type ai.image requires an ai_image config", c.ID)
		}
	case OutputAIVideo:
		if c.AIVideo == nil {
			return fmt.Errorf("experience %s: type ai.video requires an ai_video config", c.ID)
		}
		switch c.AIVideo.Task {
		case TaskImageToVideo, TaskRefImagesToVideo, TaskTransform, TaskReimagine:
		default:
			return fmt.Errorf("experience %s: unknown video task %q", c.ID, c.AIVideo.Task)
		}
	case OutputSurvey:
		// No output config to check.
	default:
		return fmt.Errorf("experience %s: unknown output type %q", c.ID, c.Type)
	}

	return nil
}

// LoadExperienceConfig loads an experience document from a YAML file.
func LoadExperienceConfig(path string) (*ExperienceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ExperienceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
