package outcome

import (
	"context"
	"time"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/mention"
	"github.com/lightbooth/boothflow/internal/models"
)

// AIImageExecutor resolves the prompt template against the snapshot's
// responses and calls the generation API with any mentioned reference media
// attached.
type AIImageExecutor struct {
	deps Deps
}

func (e *AIImageExecutor) Name() string            { return "ai-image" }
func (e *AIImageExecutor) Kind() models.OutputType { return models.OutputAIImage }

func (e *AIImageExecutor) Execute(ctx context.Context, snap *models.JobSnapshot) (*models.MediaOutput, error) {
	start := time.Now()

	cfg := snap.AIImage
	if cfg == nil {
		return nil, faults.Configuration(faults.CodeMissingConfig, "snapshot carries no ai_image config")
	}
	if cfg.Model == "" {
		return nil, faults.Configuration(faults.CodeMissingConfig, "ai_image config has no model")
	}

	resolution := mention.Resolve(cfg.PromptTemplate, snap.Responses, cfg.ReferenceMedia)
	for _, w := range resolution.Warnings {
		e.deps.warnf("prompt mention: %s", w)
	}

	result, err := e.deps.Generator.Generate(ctx, &genapi.Request{
		Prompt:         resolution.ResolvedText,
		Model:          cfg.Model,
		AspectRatio:    cfg.AspectRatio,
		ReferenceMedia: resolution.MediaRefs,
	})
	if err != nil {
		return nil, err
	}

	return mediaOutputFromResult(result, models.FormatImage, start), nil
}

// mediaOutputFromResult wraps a generation result as a MediaOutput,
// defaulting the format when the upstream omits it.
func mediaOutputFromResult(result *genapi.Result, fallback models.MediaFormat, start time.Time) *models.MediaOutput {
	format := result.Format
	if format == "" {
		format = fallback
	}
	return &models.MediaOutput{
		AssetID:          result.AssetID,
		URL:              result.URL,
		Format:           format,
		Dimensions:       models.Dimensions{Width: result.Width, Height: result.Height},
		SizeBytes:        result.SizeBytes,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ThumbnailURL:     result.ThumbnailURL,
	}
}
