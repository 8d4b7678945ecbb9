package outcome

import (
	"testing"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateKnownTypes(t *testing.T) {
	deps := Deps{Generator: genapi.NewFakeClient()}

	for _, kind := range []models.OutputType{models.OutputPhoto, models.OutputAIImage, models.OutputAIVideo} {
		exec, err := Create(kind, deps)
		require.NoError(t, err, "type %s", kind)
		assert.Equal(t, kind, exec.Kind())
	}
}

func TestCreateFailsFastForUnregisteredTypes(t *testing.T) {
	tests := []struct {
		kind models.OutputType
	}{
		{models.OutputSurvey},
		{models.OutputGif},
		{models.OutputVideo},
		{"hologram"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			_, err := Create(tt.kind, Deps{})
			require.Error(t, err)

			var cfgErr *faults.ConfigurationError
			require.ErrorAs(t, err, &cfgErr, "unregistered types fail with a configuration error")
			assert.Equal(t, faults.CodeUnsupportedType, cfgErr.Code)
			assert.False(t, faults.IsRetryable(err))
		})
	}
}

func TestCaptureReference(t *testing.T) {
	snap := &models.JobSnapshot{
		Responses: []models.StepResponse{
			{
				StepID:   "capture",
				StepType: "camera",
				Context: map[string]any{
					"media": map[string]any{
						"asset_id":     "cap-1",
						"url":          "https://media.example/cap-1",
						"storage_path": "captures/cap-1.jpg",
					},
				},
			},
		},
	}

	ref, err := captureReference(snap, "capture")
	require.NoError(t, err)
	assert.Equal(t, "cap-1", ref.AssetID)
	assert.Equal(t, "captures/cap-1.jpg", ref.StoragePath)
}

func TestCaptureReferenceErrors(t *testing.T) {
	snap := &models.JobSnapshot{
		Responses: []models.StepResponse{
			{StepID: "no-media", Context: map[string]any{"media": map[string]any{}}},
		},
	}

	_, err := captureReference(snap, "")
	var cfgErr *faults.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr, "unbound capture step is a configuration error")

	_, err = captureReference(snap, "absent")
	var valErr *faults.ValidationError
	assert.ErrorAs(t, err, &valErr, "missing response is a validation error")

	_, err = captureReference(snap, "no-media")
	assert.ErrorAs(t, err, &valErr, "empty media payload is a validation error")
}
