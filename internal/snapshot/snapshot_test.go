package snapshot

import (
	"testing"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageExperience() *models.ExperienceConfig {
	return &models.ExperienceConfig{
		ID:      "exp-1",
		Version: 7,
		Type:    models.OutputAIImage,
		AIImage: &models.AIImageConfig{
			Model:          "imagen-4",
			PromptTemplate: "@{step:color} cat",
			AspectRatio:    "1:1",
			ReferenceMedia: []models.MediaReference{{AssetID: "ref-1", DisplayName: "backdrop"}},
		},
	}
}

func sampleSession() *models.Session {
	return &models.Session{
		ID:     "sess-1",
		Status: models.SessionCompleted,
		Responses: []models.StepResponse{
			{StepID: "step-1", StepName: "color", Value: "blue"},
		},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	session := sampleSession()
	cfg := imageExperience()

	first, err := Build(session, cfg)
	require.NoError(t, err)
	second, err := Build(session, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must yield identical snapshots")
}

func TestBuildCopiesOnlyActiveSlot(t *testing.T) {
	snap, err := Build(sampleSession(), imageExperience())
	require.NoError(t, err)

	assert.Equal(t, 7, snap.ExperienceVersion)
	assert.Equal(t, models.OutputAIImage, snap.Type)
	require.NotNil(t, snap.AIImage)
	assert.Nil(t, snap.Photo)
	assert.Nil(t, snap.AIVideo)
}

func TestBuildIsolatedFromLaterEdits(t *testing.T) {
	session := sampleSession()
	cfg := imageExperience()

	snap, err := Build(session, cfg)
	require.NoError(t, err)

	// Edit the experience and the session after the snapshot was taken.
	cfg.AIImage.PromptTemplate = "a completely different prompt"
	cfg.AIImage.ReferenceMedia[0].AssetID = "mutated"
	cfg.Version = 8
	session.Responses[0].Value = "red"
	session.Responses[0].Context = map[string]any{"k": "v"}

	assert.Equal(t, "@{step:color} cat", snap.AIImage.PromptTemplate,
		"later config edits must never change an existing snapshot")
	assert.Equal(t, "ref-1", snap.AIImage.ReferenceMedia[0].AssetID)
	assert.Equal(t, 7, snap.ExperienceVersion)
	assert.Equal(t, "blue", snap.Responses[0].Value)
	assert.Nil(t, snap.Responses[0].Context)
}

func TestBuildDeepCopiesNestedContext(t *testing.T) {
	session := sampleSession()
	session.Responses[0].Context = map[string]any{
		"media":   map[string]any{"asset_id": "cap-1"},
		"options": []any{map[string]any{"value": "blue", "prompt_fragment": "deep blue"}},
	}

	snap, err := Build(session, imageExperience())
	require.NoError(t, err)

	// Mutate the live session's nested payload after the snapshot was taken.
	session.Responses[0].Context["media"].(map[string]any)["asset_id"] = "mutated"
	session.Responses[0].Context["options"].([]any)[0].(map[string]any)["prompt_fragment"] = "mutated"

	frozen := snap.Responses[0].Context
	assert.Equal(t, "cap-1", frozen["media"].(map[string]any)["asset_id"])
	assert.Equal(t, "deep blue", frozen["options"].([]any)[0].(map[string]any)["prompt_fragment"])
}

func TestBuildRejectsSurvey(t *testing.T) {
	cfg := &models.ExperienceConfig{ID: "exp-s", Type: models.OutputSurvey}
	_, err := Build(sampleSession(), cfg)
	require.Error(t, err)

	var cfgErr *faults.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, faults.CodeUnsupportedType, cfgErr.Code)
}

func TestBuildRejectsMissingSlot(t *testing.T) {
	cfg := &models.ExperienceConfig{ID: "exp-x", Type: models.OutputAIVideo}
	_, err := Build(sampleSession(), cfg)

	var cfgErr *faults.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, faults.CodeMissingConfig, cfgErr.Code)
}
