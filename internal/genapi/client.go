// Package genapi is the client for the external media generation service.
// One blocking request produces one media result; the caller bounds the call
// with a context deadline appropriate to the media type.
package genapi

import (
	"context"

	"github.com/lightbooth/boothflow/internal/models"
)

// Request describes one generation call. SourceMedia and ReferenceMedia are
// mutually exclusive input shapes in the upstream API: a first-frame source
// is for image-to-video, a reference array is for ref-guided generation.
// Callers enforce the exclusivity before issuing the request.
type Request struct {
	Prompt          string                  `json:"prompt"`
	Model           string                  `json:"model"`
	AspectRatio     string                  `json:"aspectRatio,omitempty"`
	SourceMedia     *models.MediaReference  `json:"sourceMedia,omitempty"`
	ReferenceMedia  []models.MediaReference `json:"referenceMedia,omitempty"`
	DurationSeconds int                     `json:"durationSeconds,omitempty"`
}

// Result is the media produced by a generation call.
type Result struct {
	AssetID      string             `json:"assetId"`
	URL          string             `json:"url"`
	Format       models.MediaFormat `json:"format"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	SizeBytes    int64              `json:"sizeBytes"`
	ThumbnailURL string             `json:"thumbnailUrl,omitempty"`
}

// Client executes generation requests.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}
