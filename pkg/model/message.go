package model

import (
	"encoding/json"
	"time"
)

// RawMessage is one post as received from the scrape collaborator, before
// any cleaning. Nullable source fields stay pointers so that absent and
// zero-valued inputs remain distinguishable until staging.
type RawMessage struct {
	MessageID   int64           `json:"message_id" db:"message_id"`
	ChannelName string          `json:"channel_name" db:"channel_name"`
	MessageDate *time.Time      `json:"message_date" db:"message_date"`
	MessageText *string         `json:"message_text" db:"message_text"`
	Views       *int64          `json:"views" db:"views"`
	Forwards    *int64          `json:"forwards" db:"forwards"`
	HasMedia    *bool           `json:"has_media" db:"has_media"`
	ImagePath   *string         `json:"image_path" db:"image_path"`
	RawData     json.RawMessage `json:"-" db:"raw_data"`
	LoadedAt    time.Time       `json:"-" db:"loaded_at"`
}

// HasBusinessKey reports whether the record carries the fields the staging
// transform requires. Records failing this are skippable, never fatal.
func (m RawMessage) HasBusinessKey() bool {
	return m.MessageID != 0 && m.ChannelName != "" && m.MessageDate != nil
}

// StagedMessage is one cleaned row per valid RawMessage. All nullable
// counters are resolved to concrete values; MessageLength and HasImage are
// derived here and nowhere else.
type StagedMessage struct {
	MessageID     int64     `db:"message_id"`
	ChannelName   string    `db:"channel_name"`
	MessageDate   time.Time `db:"message_date"`
	MessageText   string    `db:"message_text"`
	MessageLength int       `db:"message_length"`
	Views         int64     `db:"views"`
	Forwards      int64     `db:"forwards"`
	HasMedia      bool      `db:"has_media"`
	HasImage      bool      `db:"has_image"`
	ImagePath     string    `db:"image_path"`
}
