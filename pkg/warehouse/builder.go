package warehouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/connector"
	"github.com/chanpulse/warehouse/pkg/model"
	"github.com/chanpulse/warehouse/pkg/quality"
	"github.com/chanpulse/warehouse/pkg/transform"
)

// Builder reads the raw schema, runs the pure transforms and gates the
// result. Building never touches the marts schema; publication is the
// writer's job.
type Builder struct {
	postgres connector.DatabaseConnector
	logger   *zap.Logger

	dateRangeStart time.Time
	dateRangeEnd   time.Time
	timeout        time.Duration
}

// NewBuilder creates a new warehouse builder
func NewBuilder(postgres connector.DatabaseConnector, start, end time.Time, logger *zap.Logger) *Builder {
	return &Builder{
		postgres:       postgres,
		logger:         logger,
		dateRangeStart: start,
		dateRangeEnd:   end,
		timeout:        time.Minute * 5,
	}
}

// WithTimeout sets a custom timeout for raw-schema reads
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// Build produces the full set of warehouse tables from the current raw
// schema contents. The same raw contents always produce byte-identical
// tables.
func (b *Builder) Build(ctx context.Context) (quality.Tables, model.BuildStats, error) {
	var tables quality.Tables
	var stats model.BuildStats

	raw, err := b.readRawMessages(ctx)
	if err != nil {
		return tables, stats, fmt.Errorf("failed to read raw messages: %w", err)
	}
	stats.RawRows = len(raw)

	detections, err := b.readRawDetections(ctx)
	if err != nil {
		return tables, stats, fmt.Errorf("failed to read raw detections: %w", err)
	}

	staged, dropped := transform.Stage(raw)
	stats.StagedRows = len(staged)
	stats.StagedDropped = dropped

	tables.Channels = transform.BuildChannelDim(staged)
	tables.Dates = transform.BuildDateDim(b.dateRangeStart, b.dateRangeEnd)

	tables.Messages, stats.FactExcluded = transform.BuildMessageFacts(staged, tables.Channels, tables.Dates)
	stats.FactRows = len(tables.Messages)

	tables.Detections, stats.DetectionsExcluded = transform.BuildDetectionFacts(detections, tables.Messages, tables.Channels)
	stats.DetectionRows = len(tables.Detections)

	b.logger.Info("Warehouse build completed",
		zap.Int("rawRows", stats.RawRows),
		zap.Int("stagedRows", stats.StagedRows),
		zap.Int("stagedDropped", stats.StagedDropped),
		zap.Int("factRows", stats.FactRows),
		zap.Int("factExcluded", stats.FactExcluded),
		zap.Int("detectionRows", stats.DetectionRows),
		zap.Int("detectionsExcluded", stats.DetectionsExcluded))

	return tables, stats, nil
}

func (b *Builder) readRawMessages(ctx context.Context) ([]model.RawMessage, error) {
	queryCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var raw []model.RawMessage
	query := `
		SELECT message_id, channel_name, message_date, message_text,
			views, forwards, has_media, image_path, raw_data, loaded_at
		FROM raw.telegram_messages
		ORDER BY channel_name, message_id
	`
	if err := b.postgres.DB().SelectContext(queryCtx, &raw, query); err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *Builder) readRawDetections(ctx context.Context) ([]model.Detection, error) {
	queryCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var detections []model.Detection
	query := `
		SELECT message_id, channel_name, image_path, detected_class,
			confidence_score, image_category, num_detections, loaded_at
		FROM raw.image_detections
		ORDER BY message_id, detected_class
	`
	if err := b.postgres.DB().SelectContext(queryCtx, &detections, query); err != nil {
		return nil, err
	}
	return detections, nil
}
