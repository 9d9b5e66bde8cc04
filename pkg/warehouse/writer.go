package warehouse

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/connector"
	"github.com/chanpulse/warehouse/pkg/quality"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// insertBatchSize keeps each INSERT under the Postgres placeholder limit.
const insertBatchSize = 500

// Writer publishes built tables into the marts schema. Every table is
// replaced in full inside one transaction, so readers see either the
// previous run or the new one, never a mix.
type Writer struct {
	postgres connector.DatabaseConnector
	logger   *zap.Logger
	timeout  time.Duration
}

// NewWriter creates a new warehouse writer
func NewWriter(postgres connector.DatabaseConnector, logger *zap.Logger) *Writer {
	return &Writer{
		postgres: postgres,
		logger:   logger,
		timeout:  time.Minute * 10,
	}
}

// WithTimeout sets a custom timeout for the publish transaction
func (w *Writer) WithTimeout(timeout time.Duration) *Writer {
	w.timeout = timeout
	return w
}

// Publish replaces all four marts tables with the built contents.
func (w *Writer) Publish(ctx context.Context, tables quality.Tables) error {
	txCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	tx, err := w.postgres.DB().BeginTxx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	start := time.Now()

	if err := w.writeChannels(txCtx, tx, tables); err != nil {
		return err
	}
	if err := w.writeDates(txCtx, tx, tables); err != nil {
		return err
	}
	if err := w.writeMessages(txCtx, tx, tables); err != nil {
		return err
	}
	if err := w.writeDetections(txCtx, tx, tables); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	w.logger.Info("Published warehouse tables",
		zap.Int("channels", len(tables.Channels)),
		zap.Int("dates", len(tables.Dates)),
		zap.Int("messages", len(tables.Messages)),
		zap.Int("detections", len(tables.Detections)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (w *Writer) writeChannels(ctx context.Context, tx *sqlx.Tx, tables quality.Tables) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM marts.dim_channels"); err != nil {
		return fmt.Errorf("failed to clear dim_channels: %w", err)
	}

	for start := 0; start < len(tables.Channels); start += insertBatchSize {
		end := min(start+insertBatchSize, len(tables.Channels))

		builder := psql.Insert("marts.dim_channels").Columns(
			"channel_key", "channel_name", "first_message_date",
			"last_message_date", "total_messages",
		)
		for _, c := range tables.Channels[start:end] {
			builder = builder.Values(
				c.ChannelKey, c.ChannelName, c.FirstMessageDate,
				c.LastMessageDate, c.TotalMessages,
			)
		}
		if err := execInsert(ctx, tx, builder, "dim_channels"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeDates(ctx context.Context, tx *sqlx.Tx, tables quality.Tables) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM marts.dim_dates"); err != nil {
		return fmt.Errorf("failed to clear dim_dates: %w", err)
	}

	for start := 0; start < len(tables.Dates); start += insertBatchSize {
		end := min(start+insertBatchSize, len(tables.Dates))

		builder := psql.Insert("marts.dim_dates").Columns(
			"date_key", "full_date", "year", "quarter", "month",
			"week", "day_of_month", "day_of_week", "day_name", "is_weekend",
		)
		for _, d := range tables.Dates[start:end] {
			builder = builder.Values(
				d.DateKey, d.FullDate, d.Year, d.Quarter, d.Month,
				d.Week, d.DayOfMonth, d.DayOfWeek, d.DayName, d.IsWeekend,
			)
		}
		if err := execInsert(ctx, tx, builder, "dim_dates"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeMessages(ctx context.Context, tx *sqlx.Tx, tables quality.Tables) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM marts.fct_messages"); err != nil {
		return fmt.Errorf("failed to clear fct_messages: %w", err)
	}

	for start := 0; start < len(tables.Messages); start += insertBatchSize {
		end := min(start+insertBatchSize, len(tables.Messages))

		builder := psql.Insert("marts.fct_messages").Columns(
			"message_id", "channel_key", "date_key", "message_timestamp",
			"message_text", "message_length", "views", "forwards",
			"has_media", "has_image", "image_path",
		)
		for _, m := range tables.Messages[start:end] {
			builder = builder.Values(
				m.MessageID, m.ChannelKey, m.DateKey, m.MessageTimestamp,
				m.MessageText, m.MessageLength, m.Views, m.Forwards,
				m.HasMedia, m.HasImage, m.ImagePath,
			)
		}
		if err := execInsert(ctx, tx, builder, "fct_messages"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeDetections(ctx context.Context, tx *sqlx.Tx, tables quality.Tables) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM marts.fct_image_detections"); err != nil {
		return fmt.Errorf("failed to clear fct_image_detections: %w", err)
	}

	for start := 0; start < len(tables.Detections); start += insertBatchSize {
		end := min(start+insertBatchSize, len(tables.Detections))

		builder := psql.Insert("marts.fct_image_detections").Columns(
			"message_id", "channel_key", "date_key", "detected_class",
			"confidence_score", "image_category", "num_detections",
			"views", "forwards", "image_path", "has_image",
		)
		for _, d := range tables.Detections[start:end] {
			builder = builder.Values(
				d.MessageID, d.ChannelKey, d.DateKey, d.DetectedClass,
				d.ConfidenceScore, d.ImageCategory, d.NumDetections,
				d.Views, d.Forwards, d.ImagePath, d.HasImage,
			)
		}
		if err := execInsert(ctx, tx, builder, "fct_image_detections"); err != nil {
			return err
		}
	}
	return nil
}

func execInsert(ctx context.Context, tx *sqlx.Tx, builder sq.InsertBuilder, table string) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s insert: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}
