// Package snapshot freezes a session and its experience configuration into
// the immutable copy a job executes against. Building happens exactly once
// per job; the result is persisted and never recomputed, which is what makes
// job results reproducible after later experience edits.
package snapshot

import (
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/models"
)

// Build copies the session's responses and the experience's active output
// configuration into a JobSnapshot. Only the active type's slot is copied;
// every other slot stays nil. Identical inputs always produce identical
// snapshots.
func Build(session *models.Session, cfg *models.ExperienceConfig) (*models.JobSnapshot, error) {
	if session == nil {
		return nil, faults.Configuration(faults.CodeInvalidSnapshot, "session is required")
	}
	if cfg == nil {
		return nil, faults.Configuration(faults.CodeInvalidSnapshot, "experience config is required")
	}
	if cfg.Type == models.OutputSurvey {
		return nil, faults.Configuration(faults.CodeUnsupportedType,
			"survey experiences produce no media and cannot enter the pipeline")
	}

	snap := &models.JobSnapshot{
		ExperienceVersion: cfg.Version,
		Type:              cfg.Type,
		Responses:         copyResponses(session.Responses),
	}

	switch cfg.Type {
	case models.OutputPhoto:
		if cfg.Photo == nil {
			return nil, faults.Configuration(faults.CodeMissingConfig, "experience %s: photo config missing", cfg.ID)
		}
		c := *cfg.Photo
		snap.Photo = &c
	case models.OutputAIImage:
		if cfg.AIImage == nil {
			return nil, faults.Configuration(faults.CodeMissingConfig, "experience %s: ai_image config missing", cfg.ID)
		}
		c := *cfg.AIImage
		c.ReferenceMedia = copyMedia(cfg.AIImage.ReferenceMedia)
		snap.AIImage = &c
	case models.OutputAIVideo:
		if cfg.AIVideo == nil {
			return nil, faults.Configuration(faults.CodeMissingConfig, "experience %s: ai_video config missing", cfg.ID)
		}
		c := *cfg.AIVideo
		c.ReferenceMedia = copyMedia(cfg.AIVideo.ReferenceMedia)
		snap.AIVideo = &c
	case models.OutputGif, models.OutputVideo:
		// These types have no executor yet. The snapshot still records the
		// type so the registry can fail with a precise configuration error
		// instead of a nil dereference.
	default:
		return nil, faults.Configuration(faults.CodeUnsupportedType,
			"experience %s: unknown output type %q", cfg.ID, cfg.Type)
	}

	return snap, nil
}

func copyResponses(responses []models.StepResponse) []models.StepResponse {
	out := make([]models.StepResponse, len(responses))
	copy(out, responses)
	for i := range out {
		out[i].Context = copyContext(responses[i].Context)
	}
	return out
}

// copyContext clones the payload recursively. Response contexts nest maps
// and lists (option metadata, media references); sharing any of them with
// the live session would let later edits reach into the frozen snapshot.
func copyContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

func copyMedia(refs []models.MediaReference) []models.MediaReference {
	if refs == nil {
		return nil
	}
	out := make([]models.MediaReference, len(refs))
	copy(out, refs)
	return out
}
