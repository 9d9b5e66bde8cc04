// Package loader moves lake files into the raw schema with idempotent
// upserts keyed on the source business keys.
package loader

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/connector"
	"github.com/chanpulse/warehouse/pkg/lake"
	"github.com/chanpulse/warehouse/pkg/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RawLoader loads message partitions into raw.telegram_messages.
type RawLoader struct {
	postgres connector.DatabaseConnector
	lake     *lake.Lake
	logger   *zap.Logger
	timeout  time.Duration
}

// NewRawLoader creates a new raw message loader
func NewRawLoader(postgres connector.DatabaseConnector, l *lake.Lake, logger *zap.Logger) *RawLoader {
	return &RawLoader{
		postgres: postgres,
		lake:     l,
		logger:   logger,
		timeout:  time.Minute * 2,
	}
}

// WithTimeout sets a custom per-statement timeout
func (l *RawLoader) WithTimeout(timeout time.Duration) *RawLoader {
	l.timeout = timeout
	return l
}

// LoadAll walks every lake partition and upserts its records. Partitions
// that fail to parse are counted and skipped so one bad file cannot sink
// the run; statement errors on individual records are counted the same
// way.
func (l *RawLoader) LoadAll(ctx context.Context) (model.LoadStats, error) {
	stats := model.LoadStats{}

	files, err := l.lake.ListPartitions()
	if err != nil {
		return stats, fmt.Errorf("failed to list lake partitions: %w", err)
	}

	for _, path := range files {
		fileStats, err := l.LoadPartition(ctx, path)
		stats.Add(fileStats)
		if err != nil {
			if ctx.Err() != nil {
				return stats, err
			}
			l.logger.Warn("Skipping unreadable partition",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
	}

	l.logger.Info("Raw load completed",
		zap.Int("files", stats.FilesProcessed),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errored", stats.Errored))
	return stats, nil
}

// LoadPartition upserts one partition file.
func (l *RawLoader) LoadPartition(ctx context.Context, path string) (model.LoadStats, error) {
	stats := model.LoadStats{FilesProcessed: 1}

	messages, skipped, err := l.lake.ReadPartition(path)
	if err != nil {
		stats.Errored++
		return stats, err
	}
	stats.Skipped += skipped

	for _, msg := range messages {
		if msg.MessageID == 0 || msg.ChannelName == "" {
			stats.Skipped++
			continue
		}
		if err := l.upsert(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("raw load cancelled: %w", ctx.Err())
			}
			stats.Errored++
			l.logger.Warn("Failed to upsert raw message",
				zap.Int64("messageID", msg.MessageID),
				zap.String("channel", msg.ChannelName),
				zap.Error(err))
			continue
		}
		stats.Loaded++
	}

	return stats, nil
}

func (l *RawLoader) upsert(ctx context.Context, msg model.RawMessage) error {
	query, args, err := psql.
		Insert("raw.telegram_messages").
		Columns(
			"message_id", "channel_name", "message_date", "message_text",
			"views", "forwards", "has_media", "image_path", "raw_data", "loaded_at",
		).
		Values(
			msg.MessageID, msg.ChannelName, msg.MessageDate, msg.MessageText,
			msg.Views, msg.Forwards, msg.HasMedia, msg.ImagePath,
			[]byte(msg.RawData), sq.Expr("NOW()"),
		).
		Suffix(`ON CONFLICT (message_id, channel_name) DO UPDATE SET
			message_date = EXCLUDED.message_date,
			message_text = EXCLUDED.message_text,
			views = EXCLUDED.views,
			forwards = EXCLUDED.forwards,
			has_media = EXCLUDED.has_media,
			image_path = EXCLUDED.image_path,
			raw_data = EXCLUDED.raw_data,
			loaded_at = EXCLUDED.loaded_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}

	if _, err := l.postgres.ExecWithTimeout(ctx, query, l.timeout, args...); err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	return nil
}
