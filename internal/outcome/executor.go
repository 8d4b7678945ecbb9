// Package outcome maps a job snapshot's output type to the executor that
// produces its media. Executor selection is a pure function of the snapshot
// type; unregistered types fail fast with a configuration error before any
// job state changes or external calls.
package outcome

import (
	"context"

	"github.com/go-viper/mapstructure/v2"
	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/models"
)

// Executor produces a MediaOutput from a frozen snapshot. Executors never
// write job state; persisting results and transitioning status belongs to
// the pipeline alone.
type Executor interface {
	// Name identifies the executor in progress messages.
	Name() string

	// Kind returns the output type this executor serves.
	Kind() models.OutputType

	// Execute runs the transform. It returns the finished artifact or a
	// typed error from the faults taxonomy.
	Execute(ctx context.Context, snap *models.JobSnapshot) (*models.MediaOutput, error)
}

// Deps carries the external collaborators executors share.
type Deps struct {
	Generator genapi.Client
	Assets    assets.Store

	// Warn receives non-fatal resolution warnings. Optional.
	Warn func(format string, args ...any)
}

func (d Deps) warnf(format string, args ...any) {
	if d.Warn != nil {
		d.Warn(format, args...)
	}
}

// Create selects the executor for an output type. Survey never enters the
// pipeline; gif and plain video have no generation path yet. All three fail
// here, before any state transition.
func Create(kind models.OutputType, deps Deps) (Executor, error) {
	switch kind {
	case models.OutputPhoto:
		return &PhotoExecutor{deps: deps}, nil
	case models.OutputAIImage:
		return &AIImageExecutor{deps: deps}, nil
	case models.OutputAIVideo:
		return &AIVideoExecutor{deps: deps}, nil
	case models.OutputSurvey:
		return nil, faults.Configuration(faults.CodeUnsupportedType,
			"survey experiences produce no media output")
	case models.OutputGif, models.OutputVideo:
		return nil, faults.Configuration(faults.CodeUnsupportedType,
			"output type %q is not implemented yet", kind)
	default:
		return nil, faults.Configuration(faults.CodeUnsupportedType,
			"%q is not a valid output type", kind)
	}
}

// capturedMedia is the context payload shape written by capture steps.
type capturedMedia struct {
	Media struct {
		AssetID     string `mapstructure:"asset_id"`
		URL         string `mapstructure:"url"`
		StoragePath string `mapstructure:"storage_path"`
		DisplayName string `mapstructure:"display_name"`
	} `mapstructure:"media"`
}

// captureReference extracts the captured media reference bound to stepID
// from the snapshot's responses.
func captureReference(snap *models.JobSnapshot, stepID string) (models.MediaReference, error) {
	if stepID == "" {
		return models.MediaReference{}, faults.Configuration(faults.CodeMissingConfig,
			"no capture step bound to this experience")
	}

	resp := snap.Response(stepID)
	if resp == nil {
		return models.MediaReference{}, faults.Validation(faults.CodeInvalidReference,
			"capture step %s has no response in this session", stepID)
	}

	var payload capturedMedia
	if err := mapstructure.Decode(resp.Context, &payload); err != nil {
		return models.MediaReference{}, faults.Validation(faults.CodeInvalidReference,
			"capture step %s: malformed media payload: %v", stepID, err)
	}
	if payload.Media.AssetID == "" && payload.Media.StoragePath == "" {
		return models.MediaReference{}, faults.Validation(faults.CodeInvalidReference,
			"capture step %s: response carries no captured media", stepID)
	}

	return models.MediaReference{
		AssetID:     payload.Media.AssetID,
		URL:         payload.Media.URL,
		StoragePath: payload.Media.StoragePath,
		DisplayName: payload.Media.DisplayName,
	}, nil
}
