package delivery

import "github.com/lightbooth/boothflow/internal/models"

// placeholderThumbnailURL stands in when a video result ships no thumbnail.
const placeholderThumbnailURL = "https://static.lightbooth.example/video-placeholder.png"

// Notification is the guest-facing message assembled for a finished job.
// Images and gifs embed the media directly; videos link out to the hosted
// result page and never embed inline.
type Notification struct {
	Format         models.MediaFormat `json:"format"`
	ResultMediaURL string             `json:"resultMediaUrl,omitempty"`
	ThumbnailURL   string             `json:"thumbnailUrl,omitempty"`
	ResultPageURL  string             `json:"resultPageUrl"`
	Action         string             `json:"action"`
}

// ComposeNotification builds the notification for a finished output.
func ComposeNotification(output *models.MediaOutput, resultPageURL string) Notification {
	n := Notification{
		Format:        output.Format,
		ResultPageURL: resultPageURL,
	}

	switch output.Format {
	case models.FormatVideo:
		n.ThumbnailURL = output.ThumbnailURL
		if n.ThumbnailURL == "" {
			n.ThumbnailURL = placeholderThumbnailURL
		}
		n.Action = "Watch Video"
	default:
		n.ResultMediaURL = output.URL
		n.Action = "View & Download"
	}
	return n
}
