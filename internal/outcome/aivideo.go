package outcome

import (
	"context"
	"time"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/mention"
	"github.com/lightbooth/boothflow/internal/models"
)

// maxExtraVideoRefs caps how many resolved reference images ride along with
// the capture on the ref-images-to-video path.
const maxExtraVideoRefs = 2

// AIVideoExecutor generates video from the captured photo. The task field
// selects the input shape: image-to-video sends the capture as a first-frame
// source, ref-images-to-video sends the capture plus reference images as a
// reference array. The upstream API treats these shapes as mutually
// exclusive, so the request is validated before it is issued.
type AIVideoExecutor struct {
	deps Deps
}

func (e *AIVideoExecutor) Name() string            { return "ai-video" }
func (e *AIVideoExecutor) Kind() models.OutputType { return models.OutputAIVideo }

func (e *AIVideoExecutor) Execute(ctx context.Context, snap *models.JobSnapshot) (*models.MediaOutput, error) {
	start := time.Now()

	cfg := snap.AIVideo
	if cfg == nil {
		return nil, faults.Configuration(faults.CodeMissingConfig, "snapshot carries no ai_video config")
	}
	if cfg.Model == "" {
		return nil, faults.Configuration(faults.CodeMissingConfig, "ai_video config has no model")
	}

	capture, err := captureReference(snap, cfg.CaptureStepID)
	if err != nil {
		return nil, err
	}

	resolution := mention.Resolve(cfg.PromptTemplate, snap.Responses, cfg.ReferenceMedia)
	for _, w := range resolution.Warnings {
		e.deps.warnf("prompt mention: %s", w)
	}

	req := &genapi.Request{
		Prompt:          resolution.ResolvedText,
		Model:           cfg.Model,
		AspectRatio:     cfg.AspectRatio,
		DurationSeconds: cfg.DurationSeconds,
	}

	switch cfg.Task {
	case models.TaskImageToVideo:
		// First-frame shape: the capture photo and nothing else.
		req.SourceMedia = &capture

	case models.TaskRefImagesToVideo:
		// Reference shape: capture first, then up to two resolved refs.
		refs := []models.MediaReference{capture}
		extra := resolution.MediaRefs
		if len(extra) > maxExtraVideoRefs {
			extra = extra[:maxExtraVideoRefs]
		}
		req.ReferenceMedia = append(refs, extra...)

	case models.TaskTransform, models.TaskReimagine:
		return nil, faults.Configuration(faults.CodeUnsupportedTask,
			"video task %q is not yet supported", cfg.Task)

	default:
		return nil, faults.Configuration(faults.CodeUnsupportedTask,
			"unknown video task %q", cfg.Task)
	}

	if err := validateVideoRequest(req); err != nil {
		return nil, err
	}

	result, err := e.deps.Generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	return mediaOutputFromResult(result, models.FormatVideo, start), nil
}

// validateVideoRequest enforces the upstream exclusivity rule: a request may
// carry a first-frame source or a reference array, never both.
func validateVideoRequest(req *genapi.Request) error {
	if req.SourceMedia != nil && len(req.ReferenceMedia) > 0 {
		return faults.Validation(faults.CodeInvalidReference,
			"video request cannot carry both a first-frame source and reference media")
	}
	return nil
}
