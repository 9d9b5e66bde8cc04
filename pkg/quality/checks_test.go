package quality_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chanpulse/warehouse/pkg/model"
	"github.com/chanpulse/warehouse/pkg/quality"
	"github.com/chanpulse/warehouse/pkg/transform"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func validTables() quality.Tables {
	staged := []model.StagedMessage{
		{
			MessageID:   1,
			ChannelName: "CheMed",
			MessageDate: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			Views:       10,
			Forwards:    2,
			HasImage:    true,
			ImagePath:   "data/raw/images/CheMed/1.jpg",
		},
	}
	channels := transform.BuildChannelDim(staged)
	dates := transform.BuildDateDim(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	facts, _ := transform.BuildMessageFacts(staged, channels, dates)
	dets, _ := transform.BuildDetectionFacts([]model.Detection{
		{
			MessageID:       1,
			ChannelName:     "CheMed",
			DetectedClass:   "bottle",
			ConfidenceScore: 0.87,
			ImageCategory:   model.CategoryProductDisplay,
			NumDetections:   1,
		},
	}, facts, channels)

	return quality.Tables{
		Channels:   channels,
		Dates:      dates,
		Messages:   facts,
		Detections: dets,
	}
}

func TestCheckPassesOnConsistentTables(t *testing.T) {
	report := quality.Check(validTables(), now)
	require.True(t, report.Passed())
	require.Empty(t, report.Violations)
}

func TestCheckFlagsNegativeViews(t *testing.T) {
	tables := validTables()
	tables.Messages[0].Views = -5

	report := quality.Check(tables, now)
	require.False(t, report.Passed())

	errs := report.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, "non_negative_counters", errs[0].Check)
	require.Equal(t, int64(1), errs[0].AffectedRows)
}

func TestCheckAllowsZeroCounters(t *testing.T) {
	tables := validTables()
	tables.Messages[0].Views = 0
	tables.Messages[0].Forwards = 0

	require.True(t, quality.Check(tables, now).Passed())
}

func TestCheckFlagsFutureDateOnce(t *testing.T) {
	tables := validTables()
	// Date inside the dimension range but after the run timestamp.
	report := quality.Check(tables, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.False(t, report.Passed())

	futures := 0
	for _, v := range report.Errors() {
		if v.Check == "no_future_dates" {
			futures++
			require.Equal(t, int64(1), v.AffectedRows)
		}
	}
	require.Equal(t, 1, futures)
}

func TestCheckFlagsDuplicateMessageID(t *testing.T) {
	tables := validTables()
	tables.Messages = append(tables.Messages, tables.Messages[0])

	report := quality.Check(tables, now)
	require.False(t, report.Passed())

	var checks []string
	for _, v := range report.Errors() {
		checks = append(checks, v.Check)
	}
	require.Contains(t, checks, "unique_message_id")
}

func TestCheckFlagsOrphanChannelKey(t *testing.T) {
	tables := validTables()
	tables.Messages[0].ChannelKey = "deadbeef"

	report := quality.Check(tables, now)
	require.False(t, report.Passed())

	var checks []string
	for _, v := range report.Errors() {
		checks = append(checks, v.Check)
	}
	require.Contains(t, checks, "fk_channel_key")
}

func TestCheckFlagsOrphanDetection(t *testing.T) {
	tables := validTables()
	tables.Detections[0].MessageID = 99

	report := quality.Check(tables, now)
	require.False(t, report.Passed())

	var checks []string
	for _, v := range report.Errors() {
		checks = append(checks, v.Check)
	}
	require.Contains(t, checks, "fk_message_id")
}

func TestCheckWarnsOnUnknownCategory(t *testing.T) {
	tables := validTables()
	tables.Detections[0].ImageCategory = "misc"

	report := quality.Check(tables, now)
	// Warnings do not block publication.
	require.True(t, report.Passed())
	require.Len(t, report.Violations, 1)
	require.Equal(t, quality.SeverityWarning, report.Violations[0].Severity)
}

func TestCheckFlagsConfidenceOutOfRange(t *testing.T) {
	tables := validTables()
	tables.Detections[0].ConfidenceScore = 1.3

	report := quality.Check(tables, now)
	require.False(t, report.Passed())

	var checks []string
	for _, v := range report.Errors() {
		checks = append(checks, v.Check)
	}
	require.Contains(t, checks, "confidence_range")
}
