package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validExperienceYAML = `id: exp-1
project_id: proj-1
version: 3
type: ai.image
ai_image:
  model: imagen-4
  prompt_template: "a @{step:color} cat"
  aspect_ratio: "1:1"
  capture_step_id: capture
  reference_media:
    - asset_id: ref-1
      display_name: styleA
`

const invalidExperienceYAML = `id: exp-1
type: hologram
ai_image:
  prompt_template: "missing model"
`

const legacyTaskExperienceYAML = `id: exp-2
type: ai.video
ai_video:
  task: animate
  model: veo-3
  capture_step_id: capture
`

const validSessionYAML = `id: sess-1
status: completed
mode: guest
config_source: published
responses:
  - step_id: capture
    step_type: photo
    context:
      media:
        asset_id: cap-1
  - step_id: step-2
    step_name: color
    value: blue
`

const invalidSessionYAML = `status: paused
responses:
  - step_name: no-id
`

func TestValidateExperienceBytes_Valid(t *testing.T) {
	errs := ValidateExperienceBytes([]byte(validExperienceYAML))
	require.Empty(t, errs, "valid experience should have no errors")
}

func TestValidateExperienceBytes_Invalid(t *testing.T) {
	errs := ValidateExperienceBytes([]byte(invalidExperienceYAML))
	require.NotEmpty(t, errs, "invalid experience should have errors")

	joined := joinErrs(errs)
	require.Contains(t, joined, "/type")
	require.Contains(t, joined, "model")
}

func TestValidateExperienceBytes_LegacyTaskValueAccepted(t *testing.T) {
	errs := ValidateExperienceBytes([]byte(legacyTaskExperienceYAML))
	require.Empty(t, errs, "legacy task value still loads; normalization happens at parse")
}

func TestValidateSessionBytes_Valid(t *testing.T) {
	errs := ValidateSessionBytes([]byte(validSessionYAML))
	require.Empty(t, errs, "valid session should have no errors")
}

func TestValidateSessionBytes_Invalid(t *testing.T) {
	errs := ValidateSessionBytes([]byte(invalidSessionYAML))
	require.NotEmpty(t, errs, "invalid session should have errors")

	joined := joinErrs(errs)
	require.Contains(t, joined, "id")
	require.Contains(t, joined, "status")
}

func TestValidateExperienceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experience.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validExperienceYAML), 0644))

	errs, err := ValidateExperienceFile(path)
	require.NoError(t, err)
	require.Empty(t, errs)
}

func TestValidateSessionFile_NotFound(t *testing.T) {
	_, err := ValidateSessionFile("/nonexistent/session.yaml")
	require.Error(t, err)
}

func TestValidateBytes_MalformedYAML(t *testing.T) {
	errs := ValidateSessionBytes([]byte("{not: [valid"))
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "YAML parse error")
}

func joinErrs(errs []string) string {
	result := ""
	for _, e := range errs {
		result += e + "\n"
	}
	return result
}
