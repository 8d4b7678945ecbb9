package outcome

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"time"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/lightbooth/boothflow/internal/models"
)

// PhotoExecutor delivers the captured photo as-is, optionally composited
// with a configured overlay. It never calls the generation API: passthrough
// is a pure copy and must stay fast.
type PhotoExecutor struct {
	deps Deps
}

func (e *PhotoExecutor) Name() string            { return "photo" }
func (e *PhotoExecutor) Kind() models.OutputType { return models.OutputPhoto }

func (e *PhotoExecutor) Execute(ctx context.Context, snap *models.JobSnapshot) (*models.MediaOutput, error) {
	start := time.Now()

	cfg := snap.Photo
	if cfg == nil {
		return nil, faults.Configuration(faults.CodeMissingConfig, "snapshot carries no photo config")
	}

	capture, err := captureReference(snap, cfg.CaptureStepID)
	if err != nil {
		return nil, err
	}

	reader, size, err := e.deps.Assets.Open(capture)
	if err != nil {
		return nil, faults.Validation(faults.CodeInvalidReference, "opening capture: %v", err)
	}
	defer reader.Close() //nolint:errcheck

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading capture %s: %w", capture.AssetID, err)
	}

	dims := decodeDimensions(content)

	if cfg.OverlayAssetID != "" {
		composited, err := e.composite(content, cfg.OverlayAssetID)
		if err != nil {
			// Overlay problems degrade to plain passthrough rather than
			// failing the guest's photo.
			e.deps.warnf("overlay %s not applied: %v", cfg.OverlayAssetID, err)
		} else {
			content = composited
			size = int64(len(content))
			dims = decodeDimensions(content)
		}
	}

	stored, err := e.deps.Assets.Put(capture.DisplayName, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("storing photo output: %w", err)
	}

	return &models.MediaOutput{
		AssetID:          stored.AssetID,
		URL:              stored.URL,
		Format:           models.FormatImage,
		Dimensions:       dims,
		SizeBytes:        size,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// composite draws the overlay image over the capture, scaled anchoring at
// the top-left. Both images must decode as PNG or JPEG.
func (e *PhotoExecutor) composite(capture []byte, overlayAssetID string) ([]byte, error) {
	base, format, err := image.Decode(bytes.NewReader(capture))
	if err != nil {
		return nil, fmt.Errorf("decoding capture: %w", err)
	}

	overlayReader, _, err := e.deps.Assets.Open(models.MediaReference{AssetID: overlayAssetID})
	if err != nil {
		return nil, fmt.Errorf("opening overlay: %w", err)
	}
	defer overlayReader.Close() //nolint:errcheck

	overlay, _, err := image.Decode(overlayReader)
	if err != nil {
		return nil, fmt.Errorf("decoding overlay: %w", err)
	}

	canvas := image.NewRGBA(base.Bounds())
	draw.Draw(canvas, base.Bounds(), base, image.Point{}, draw.Src)
	draw.Draw(canvas, overlay.Bounds(), overlay, image.Point{}, draw.Over)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(&buf, canvas)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding composited photo: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDimensions(content []byte) models.Dimensions {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return models.Dimensions{}
	}
	return models.Dimensions{Width: cfg.Width, Height: cfg.Height}
}
