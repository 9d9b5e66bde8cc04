package transform_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chanpulse/warehouse/pkg/model"
	"github.com/chanpulse/warehouse/pkg/transform"
)

func buildCore(t *testing.T, rows []model.StagedMessage) ([]model.MessageFact, []model.ChannelDim, int) {
	t.Helper()

	channels := transform.BuildChannelDim(rows)
	dates := transform.BuildDateDim(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	facts, excluded := transform.BuildMessageFacts(rows, channels, dates)
	return facts, channels, excluded
}

func TestBuildMessageFactsJoinsSurrogateKeys(t *testing.T) {
	rows := []model.StagedMessage{
		{
			MessageID:     1,
			ChannelName:   "CheMed",
			MessageDate:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			MessageText:   "promo",
			MessageLength: 5,
			Views:         10,
			Forwards:      2,
		},
	}

	facts, _, excluded := buildCore(t, rows)
	require.Zero(t, excluded)
	require.Len(t, facts, 1)

	f := facts[0]
	require.Equal(t, int64(1), f.MessageID)
	require.Equal(t, transform.SurrogateKey("CheMed"), f.ChannelKey)
	require.Equal(t, 20240115, f.DateKey)
	require.Equal(t, int64(10), f.Views)
	require.Equal(t, int64(2), f.Forwards)
}

func TestBuildMessageFactsExcludesDatesOutsideRange(t *testing.T) {
	rows := []model.StagedMessage{
		staged(1, "CheMed", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		staged(2, "CheMed", time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)),
	}

	facts, _, excluded := buildCore(t, rows)
	require.Len(t, facts, 1)
	require.Equal(t, 1, excluded)
	require.Equal(t, int64(1), facts[0].MessageID)
}

func TestBuildMessageFactsExcludesUnknownChannel(t *testing.T) {
	rows := []model.StagedMessage{
		staged(1, "CheMed", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
	dates := transform.BuildDateDim(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	)

	// A dimension built from different data does not contain CheMed.
	otherChannels := transform.BuildChannelDim([]model.StagedMessage{
		staged(9, "Tikvah", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	})

	facts, excluded := transform.BuildMessageFacts(rows, otherChannels, dates)
	require.Empty(t, facts)
	require.Equal(t, 1, excluded)
}

func TestBuildMessageFactsIdempotent(t *testing.T) {
	rows := []model.StagedMessage{
		staged(3, "CheMed", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)),
		staged(1, "Tikvah", time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)),
		staged(2, "CheMed", time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)),
	}

	first, _, _ := buildCore(t, rows)
	second, _, _ := buildCore(t, rows)
	require.Equal(t, first, second)

	// Output order is by message id regardless of input order.
	require.Equal(t, int64(1), first[0].MessageID)
	require.Equal(t, int64(2), first[1].MessageID)
	require.Equal(t, int64(3), first[2].MessageID)
}

func detection(id int64, channel, class string) model.Detection {
	return model.Detection{
		MessageID:       id,
		ChannelName:     channel,
		DetectedClass:   class,
		ConfidenceScore: 0.9,
		ImageCategory:   model.CategoryOther,
		NumDetections:   1,
	}
}

func TestBuildDetectionFactsJoin(t *testing.T) {
	rows := []model.StagedMessage{
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
	facts, channels, _ := buildCore(t, rows)

	dets := []model.Detection{
		detection(1, "CheMed", "bottle"),
		detection(1, "CheMed", "person"),
	}

	out, excluded := transform.BuildDetectionFacts(dets, facts, channels)
	require.Zero(t, excluded)
	require.Len(t, out, 2)

	require.Equal(t, "bottle", out[0].DetectedClass)
	require.Equal(t, "person", out[1].DetectedClass)
	for _, f := range out {
		require.Equal(t, transform.SurrogateKey("CheMed"), f.ChannelKey)
		require.Equal(t, 20240115, f.DateKey)
		require.Equal(t, int64(10), f.Views)
		require.Equal(t, int64(2), f.Forwards)
	}
}

func TestBuildDetectionFactsExcludesNonImageFacts(t *testing.T) {
	rows := []model.StagedMessage{
		staged(1, "CheMed", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)),
	}
	facts, channels, _ := buildCore(t, rows)

	out, excluded := transform.BuildDetectionFacts(
		[]model.Detection{detection(1, "CheMed", "bottle")}, facts, channels)
	require.Empty(t, out)
	require.Equal(t, 1, excluded)
}

func TestBuildDetectionFactsExcludesUnknownMessage(t *testing.T) {
	rows := []model.StagedMessage{
		staged(1, "CheMed", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)),
	}
	facts, channels, _ := buildCore(t, rows)

	out, excluded := transform.BuildDetectionFacts(
		[]model.Detection{detection(42, "CheMed", "bottle")}, facts, channels)
	require.Empty(t, out)
	require.Equal(t, 1, excluded)
}

func TestBuildDetectionFactsChannelKeyDisagreement(t *testing.T) {
	rows := []model.StagedMessage{
		{
			MessageID:   1,
			ChannelName: "CheMed",
			MessageDate: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			HasImage:    true,
			ImagePath:   "data/raw/images/CheMed/1.jpg",
		},
	}
	facts, channels, _ := buildCore(t, rows)

	// A casing difference in the detection source re-derives a different
	// channel key, so the consistency check silently drops the row.
	out, excluded := transform.BuildDetectionFacts(
		[]model.Detection{detection(1, "chemed", "bottle")}, facts, channels)
	require.Empty(t, out)
	require.Equal(t, 1, excluded)
}

func TestEndToEndCheMedScenario(t *testing.T) {
	text := "promo"
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	raw := []model.RawMessage{
		{
			MessageID:   1,
			ChannelName: "CheMed",
			MessageDate: &date,
			MessageText: &text,
			Views:       ptr(int64(10)),
			Forwards:    ptr(int64(2)),
			HasMedia:    ptr(false),
		},
	}

	stagedRows, dropped := transform.Stage(raw)
	require.Zero(t, dropped)

	channels := transform.BuildChannelDim(stagedRows)
	dates := transform.BuildDateDim(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	facts, excluded := transform.BuildMessageFacts(stagedRows, channels, dates)

	require.Len(t, channels, 1)
	require.Equal(t, int64(1), channels[0].TotalMessages)

	require.Zero(t, excluded)
	require.Len(t, facts, 1)
	require.Equal(t, int64(1), facts[0].MessageID)
	require.Equal(t, transform.SurrogateKey("CheMed"), facts[0].ChannelKey)
	require.Equal(t, 20240115, facts[0].DateKey)
}
