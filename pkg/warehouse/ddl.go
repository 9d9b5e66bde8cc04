// Package warehouse builds and publishes the dimensional model from the raw
// schema.
package warehouse

import (
	"context"
	"fmt"

	"github.com/chanpulse/warehouse/pkg/connector"
)

type tableDef struct {
	schema     string
	name       string
	columns    []string
	primaryKey string
}

var warehouseTables = []tableDef{
	{
		schema: "raw",
		name:   "telegram_messages",
		columns: []string{
			"message_id BIGINT NOT NULL",
			"channel_name TEXT NOT NULL",
			"message_date TIMESTAMPTZ",
			"message_text TEXT",
			"views BIGINT",
			"forwards BIGINT",
			"has_media BOOLEAN",
			"image_path TEXT",
			"raw_data JSONB",
			"loaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		},
		primaryKey: "message_id, channel_name",
	},
	{
		schema: "raw",
		name:   "image_detections",
		columns: []string{
			"message_id BIGINT NOT NULL",
			"channel_name TEXT NOT NULL",
			"image_path TEXT",
			"detected_class TEXT NOT NULL",
			"confidence_score DOUBLE PRECISION NOT NULL",
			"image_category TEXT NOT NULL",
			"num_detections INTEGER NOT NULL",
			"loaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		},
		primaryKey: "message_id, detected_class",
	},
	{
		schema: "marts",
		name:   "dim_channels",
		columns: []string{
			"channel_key TEXT NOT NULL",
			"channel_name TEXT NOT NULL",
			"first_message_date TIMESTAMPTZ NOT NULL",
			"last_message_date TIMESTAMPTZ NOT NULL",
			"total_messages BIGINT NOT NULL",
		},
		primaryKey: "channel_key",
	},
	{
		schema: "marts",
		name:   "dim_dates",
		columns: []string{
			"date_key INTEGER NOT NULL",
			"full_date DATE NOT NULL",
			"year INTEGER NOT NULL",
			"quarter INTEGER NOT NULL",
			"month INTEGER NOT NULL",
			"week INTEGER NOT NULL",
			"day_of_month INTEGER NOT NULL",
			"day_of_week INTEGER NOT NULL",
			"day_name TEXT NOT NULL",
			"is_weekend BOOLEAN NOT NULL",
		},
		primaryKey: "date_key",
	},
	{
		schema: "marts",
		name:   "fct_messages",
		columns: []string{
			"message_id BIGINT NOT NULL",
			"channel_key TEXT NOT NULL",
			"date_key INTEGER NOT NULL",
			"message_timestamp TIMESTAMPTZ NOT NULL",
			"message_text TEXT NOT NULL",
			"message_length INTEGER NOT NULL",
			"views BIGINT NOT NULL",
			"forwards BIGINT NOT NULL",
			"has_media BOOLEAN NOT NULL",
			"has_image BOOLEAN NOT NULL",
			"image_path TEXT NOT NULL",
		},
		primaryKey: "message_id",
	},
	{
		schema: "marts",
		name:   "fct_image_detections",
		columns: []string{
			"message_id BIGINT NOT NULL",
			"channel_key TEXT NOT NULL",
			"date_key INTEGER NOT NULL",
			"detected_class TEXT NOT NULL",
			"confidence_score DOUBLE PRECISION NOT NULL",
			"image_category TEXT NOT NULL",
			"num_detections INTEGER NOT NULL",
			"views BIGINT NOT NULL",
			"forwards BIGINT NOT NULL",
			"image_path TEXT NOT NULL",
			"has_image BOOLEAN NOT NULL",
		},
		primaryKey: "message_id, detected_class",
	},
	{
		schema: "ops",
		name:   "pipeline_runs",
		columns: []string{
			"run_key TEXT NOT NULL",
			"triggered_by TEXT NOT NULL",
			"state TEXT NOT NULL",
			"started_at TIMESTAMPTZ NOT NULL",
			"finished_at TIMESTAMPTZ",
			"error TEXT",
		},
		primaryKey: "run_key",
	},
	{
		schema: "ops",
		name:   "step_executions",
		columns: []string{
			"id UUID NOT NULL",
			"run_key TEXT NOT NULL",
			"step TEXT NOT NULL",
			"attempt INTEGER NOT NULL",
			"state TEXT NOT NULL",
			"started_at TIMESTAMPTZ NOT NULL",
			"finished_at TIMESTAMPTZ",
			"error TEXT",
		},
		primaryKey: "run_key, step, attempt",
	},
}

// EnsureTables creates every warehouse table that does not yet exist.
func EnsureTables(ctx context.Context, postgres connector.DatabaseConnector) error {
	for _, t := range warehouseTables {
		if err := postgres.CreateTableIfNotExists(ctx, t.schema, t.name, t.columns, t.primaryKey); err != nil {
			return fmt.Errorf("failed to ensure %s.%s: %w", t.schema, t.name, err)
		}
	}
	return nil
}
