package model

import "time"

// ChannelDim is one row per distinct channel observed in the staged input.
// ChannelKey is a pure function of ChannelName, stable across runs.
type ChannelDim struct {
	ChannelKey       string    `db:"channel_key"`
	ChannelName      string    `db:"channel_name"`
	FirstMessageDate time.Time `db:"first_message_date"`
	LastMessageDate  time.Time `db:"last_message_date"`
	TotalMessages    int64     `db:"total_messages"`
}

// DateDim is one row per calendar day across a fixed configured range,
// independent of observed data. DateKey is the yyyymmdd integer encoding.
type DateDim struct {
	DateKey    int       `db:"date_key"`
	FullDate   time.Time `db:"full_date"`
	Year       int       `db:"year"`
	Quarter    int       `db:"quarter"`
	Month      int       `db:"month"`
	Week       int       `db:"week"`
	DayOfMonth int       `db:"day_of_month"`
	DayOfWeek  int       `db:"day_of_week"` // ISO: Monday=1 .. Sunday=7
	DayName    string    `db:"day_name"`
	IsWeekend  bool      `db:"is_weekend"`
}

// MessageFact is the atomic fact: one row per staged message that joined to
// both dimensions. Business keys are replaced by surrogate keys.
type MessageFact struct {
	MessageID        int64     `db:"message_id"`
	ChannelKey       string    `db:"channel_key"`
	DateKey          int       `db:"date_key"`
	MessageTimestamp time.Time `db:"message_timestamp"`
	MessageText      string    `db:"message_text"`
	MessageLength    int       `db:"message_length"`
	Views            int64     `db:"views"`
	Forwards         int64     `db:"forwards"`
	HasMedia         bool      `db:"has_media"`
	HasImage         bool      `db:"has_image"`
	ImagePath        string    `db:"image_path"`
}

// DetectionFact extends the message fact with visual enrichment, one row per
// (message, detected class), restricted to image-bearing facts.
type DetectionFact struct {
	MessageID       int64   `db:"message_id"`
	ChannelKey      string  `db:"channel_key"`
	DateKey         int     `db:"date_key"`
	DetectedClass   string  `db:"detected_class"`
	ConfidenceScore float64 `db:"confidence_score"`
	ImageCategory   string  `db:"image_category"`
	NumDetections   int     `db:"num_detections"`
	Views           int64   `db:"views"`
	Forwards        int64   `db:"forwards"`
	ImagePath       string  `db:"image_path"`
	HasImage        bool    `db:"has_image"`
}
