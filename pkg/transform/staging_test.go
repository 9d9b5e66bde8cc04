package transform_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chanpulse/warehouse/pkg/model"
	"github.com/chanpulse/warehouse/pkg/transform"
)

func ptr[T any](v T) *T { return &v }

func rawMessage(id int64, channel string, date time.Time) model.RawMessage {
	return model.RawMessage{
		MessageID:   id,
		ChannelName: channel,
		MessageDate: &date,
	}
}

func TestStageDropsRowsMissingBusinessKey(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     model.RawMessage
		dropped bool
	}{
		{
			name:    "complete row",
			raw:     rawMessage(1, "CheMed", date),
			dropped: false,
		},
		{
			name:    "missing message id",
			raw:     model.RawMessage{ChannelName: "CheMed", MessageDate: &date},
			dropped: true,
		},
		{
			name:    "missing channel name",
			raw:     model.RawMessage{MessageID: 1, MessageDate: &date},
			dropped: true,
		},
		{
			name:    "missing timestamp",
			raw:     model.RawMessage{MessageID: 1, ChannelName: "CheMed"},
			dropped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staged, dropped := transform.Stage([]model.RawMessage{tt.raw})
			if tt.dropped {
				require.Empty(t, staged)
				require.Equal(t, 1, dropped)
			} else {
				require.Len(t, staged, 1)
				require.Zero(t, dropped)
			}
		})
	}
}

func TestStageCounterDefaults(t *testing.T) {
	raw := rawMessage(1, "CheMed", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	staged, _ := transform.Stage([]model.RawMessage{raw})
	require.Len(t, staged, 1)
	require.Zero(t, staged[0].Views)
	require.Zero(t, staged[0].Forwards)
	require.False(t, staged[0].HasMedia)
}

func TestStageNegativeCountersPassThrough(t *testing.T) {
	// Negative values are not clamped here; the quality gate is the only
	// enforcement point.
	raw := rawMessage(1, "CheMed", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	raw.Views = ptr(int64(-5))

	staged, _ := transform.Stage([]model.RawMessage{raw})
	require.Len(t, staged, 1)
	require.Equal(t, int64(-5), staged[0].Views)
}

func TestStageTextDerivation(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	noText := rawMessage(1, "CheMed", date)
	withText := rawMessage(2, "CheMed", date)
	withText.MessageText = ptr("paracetamol 500mg")
	unicodeText := rawMessage(3, "CheMed", date)
	unicodeText.MessageText = ptr("መድሃኒት")

	staged, _ := transform.Stage([]model.RawMessage{noText, withText, unicodeText})
	require.Len(t, staged, 3)

	require.Zero(t, staged[0].MessageLength)
	require.Equal(t, 17, staged[1].MessageLength)
	// Character count, not byte count.
	require.Equal(t, 5, staged[2].MessageLength)
}

func TestStageHasImage(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		imagePath *string
		hasImage  bool
	}{
		{"nil path", nil, false},
		{"empty path", ptr(""), false},
		{"whitespace path", ptr("   "), false},
		{"real path", ptr("data/raw/images/CheMed/1.jpg"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawMessage(1, "CheMed", date)
			raw.ImagePath = tt.imagePath

			staged, _ := transform.Stage([]model.RawMessage{raw})
			require.Len(t, staged, 1)
			require.Equal(t, tt.hasImage, staged[0].HasImage)
		})
	}
}

func TestStageIsRecomputable(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	raw := []model.RawMessage{rawMessage(1, "CheMed", date), rawMessage(2, "Tikvah", date)}

	first, firstDropped := transform.Stage(raw)
	second, secondDropped := transform.Stage(raw)
	require.Equal(t, first, second)
	require.Equal(t, firstDropped, secondDropped)
}
