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

// DetectionLoader loads detector CSV output into raw.image_detections.
type DetectionLoader struct {
	postgres connector.DatabaseConnector
	logger   *zap.Logger
	timeout  time.Duration
}

// NewDetectionLoader creates a new detection loader
func NewDetectionLoader(postgres connector.DatabaseConnector, logger *zap.Logger) *DetectionLoader {
	return &DetectionLoader{
		postgres: postgres,
		logger:   logger,
		timeout:  time.Minute * 2,
	}
}

// WithTimeout sets a custom per-statement timeout
func (l *DetectionLoader) WithTimeout(timeout time.Duration) *DetectionLoader {
	l.timeout = timeout
	return l
}

// LoadCSV reads the detections file and upserts each row keyed on
// (message_id, detected_class). Rows with an empty class or non-positive
// message id are skipped.
func (l *DetectionLoader) LoadCSV(ctx context.Context, path string) (model.LoadStats, error) {
	stats := model.LoadStats{}

	detections, err := lake.ReadDetectionsCSV(path)
	if err != nil {
		return stats, fmt.Errorf("failed to read detections: %w", err)
	}
	if len(detections) > 0 {
		stats.FilesProcessed = 1
	}

	for _, d := range detections {
		if d.MessageID <= 0 || d.DetectedClass == "" {
			stats.Skipped++
			continue
		}
		if err := l.upsert(ctx, d); err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("detection load cancelled: %w", ctx.Err())
			}
			stats.Errored++
			l.logger.Warn("Failed to upsert detection",
				zap.Int64("messageID", d.MessageID),
				zap.String("class", d.DetectedClass),
				zap.Error(err))
			continue
		}
		stats.Loaded++
	}

	l.logger.Info("Detection load completed",
		zap.String("path", path),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errored", stats.Errored))
	return stats, nil
}

func (l *DetectionLoader) upsert(ctx context.Context, d model.Detection) error {
	query, args, err := psql.
		Insert("raw.image_detections").
		Columns(
			"message_id", "channel_name", "image_path", "detected_class",
			"confidence_score", "image_category", "num_detections", "loaded_at",
		).
		Values(
			d.MessageID, d.ChannelName, d.ImagePath, d.DetectedClass,
			d.ConfidenceScore, d.ImageCategory, d.NumDetections, sq.Expr("NOW()"),
		).
		Suffix(`ON CONFLICT (message_id, detected_class) DO UPDATE SET
			channel_name = EXCLUDED.channel_name,
			image_path = EXCLUDED.image_path,
			confidence_score = EXCLUDED.confidence_score,
			image_category = EXCLUDED.image_category,
			num_detections = EXCLUDED.num_detections,
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
