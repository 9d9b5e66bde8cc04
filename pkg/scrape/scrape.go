// Package scrape pulls channel posts from the message source and lands
// them in the raw lake, one partition per (day, channel).
package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/lake"
	"github.com/chanpulse/warehouse/pkg/model"
)

// Source fetches recent posts for one channel. Implementations own their
// transport and rate limiting.
type Source interface {
	FetchMessages(ctx context.Context, channel string, limit int) ([]model.RawMessage, error)
}

// Scraper lands fetched messages in the lake.
type Scraper struct {
	source   Source
	lake     *lake.Lake
	channels []string
	limit    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewScraper creates a scraper over the configured channel list.
func NewScraper(source Source, l *lake.Lake, channels []string, limit int, logger *zap.Logger) *Scraper {
	return &Scraper{
		source:   source,
		lake:     l,
		channels: channels,
		limit:    limit,
		logger:   logger,
		now:      time.Now,
	}
}

// ScrapeAll fetches every configured channel and writes one partition per
// channel under today's date. A channel that fails is logged and skipped;
// the scrape fails only when no channel succeeds.
func (s *Scraper) ScrapeAll(ctx context.Context) (model.LoadStats, error) {
	stats := model.LoadStats{}
	day := s.now().UTC()

	succeeded := 0
	for _, channel := range s.channels {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("scrape cancelled: %w", err)
		}

		messages, err := s.source.FetchMessages(ctx, channel, s.limit)
		if err != nil {
			stats.Errored++
			s.logger.Warn("Failed to fetch channel",
				zap.String("channel", channel),
				zap.Error(err))
			continue
		}

		if err := s.lake.WritePartition(day, channel, messages); err != nil {
			stats.Errored++
			s.logger.Warn("Failed to write partition",
				zap.String("channel", channel),
				zap.Error(err))
			continue
		}

		succeeded++
		stats.FilesProcessed++
		stats.Loaded += len(messages)
	}

	if succeeded == 0 && len(s.channels) > 0 {
		return stats, fmt.Errorf("all %d channels failed to scrape", len(s.channels))
	}

	s.logger.Info("Scrape completed",
		zap.Int("channels", succeeded),
		zap.Int("messages", stats.Loaded),
		zap.Int("failed", stats.Errored))
	return stats, nil
}
