package scrape_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/lake"
	"github.com/chanpulse/warehouse/pkg/model"
	"github.com/chanpulse/warehouse/pkg/scrape"
)

type fakeSource struct {
	messages map[string][]model.RawMessage
	fail     map[string]bool
}

func (f *fakeSource) FetchMessages(_ context.Context, channel string, _ int) ([]model.RawMessage, error) {
	if f.fail[channel] {
		return nil, errors.New("flood wait")
	}
	return f.messages[channel], nil
}

func rawMsg(id int64, channel string) model.RawMessage {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return model.RawMessage{MessageID: id, ChannelName: channel, MessageDate: &date}
}

func TestScrapeAllWritesOnePartitionPerChannel(t *testing.T) {
	dir := t.TempDir()
	l := lake.New(dir, zap.NewNop())

	source := &fakeSource{messages: map[string][]model.RawMessage{
		"CheMed": {rawMsg(1, "CheMed"), rawMsg(2, "CheMed")},
		"Tikvah": {rawMsg(3, "Tikvah")},
	}}
	s := scrape.NewScraper(source, l, []string{"CheMed", "Tikvah"}, 100, zap.NewNop())

	stats, err := s.ScrapeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.FilesProcessed)
	require.Equal(t, 3, stats.Loaded)
	require.Zero(t, stats.Errored)

	files, err := l.ListPartitions()
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestScrapeAllSkipsFailedChannel(t *testing.T) {
	l := lake.New(t.TempDir(), zap.NewNop())
	source := &fakeSource{
		messages: map[string][]model.RawMessage{"CheMed": {rawMsg(1, "CheMed")}},
		fail:     map[string]bool{"Tikvah": true},
	}
	s := scrape.NewScraper(source, l, []string{"CheMed", "Tikvah"}, 100, zap.NewNop())

	stats, err := s.ScrapeAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesProcessed)
	require.Equal(t, 1, stats.Errored)
}

func TestScrapeAllFailsWhenEveryChannelFails(t *testing.T) {
	l := lake.New(t.TempDir(), zap.NewNop())
	source := &fakeSource{fail: map[string]bool{"CheMed": true, "Tikvah": true}}
	s := scrape.NewScraper(source, l, []string{"CheMed", "Tikvah"}, 100, zap.NewNop())

	_, err := s.ScrapeAll(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "all 2 channels failed")
}

func TestScrapeAllHonoursCancellation(t *testing.T) {
	l := lake.New(t.TempDir(), zap.NewNop())
	source := &fakeSource{}
	s := scrape.NewScraper(source, l, []string{"CheMed"}, 100, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScrapeAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
