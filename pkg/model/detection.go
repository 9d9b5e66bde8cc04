package model

import "time"

// Image categories assigned by the detection collaborator and carried into
// fct_image_detections.
const (
	CategoryPromotional    = "promotional"
	CategoryProductDisplay = "product_display"
	CategoryLifestyle      = "lifestyle"
	CategoryOther          = "other"
)

// Detection is one (message, detected class) row produced by the object
// detector for a single image.
type Detection struct {
	MessageID       int64     `db:"message_id"`
	ChannelName     string    `db:"channel_name"`
	ImagePath       string    `db:"image_path"`
	DetectedClass   string    `db:"detected_class"`
	ConfidenceScore float64   `db:"confidence_score"`
	ImageCategory   string    `db:"image_category"`
	NumDetections   int       `db:"num_detections"`
	LoadedAt        time.Time `db:"loaded_at"`
}
