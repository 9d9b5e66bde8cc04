package quality

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/connector"
)

// Verifier re-runs the gate checks against the published warehouse tables.
// The in-memory gate guards what is about to be written; the verifier
// confirms what actually landed, so a partial or concurrent write is caught
// after the fact.
type Verifier struct {
	postgres connector.DatabaseConnector
	logger   *zap.Logger
	timeout  time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(postgres connector.DatabaseConnector, logger *zap.Logger) *Verifier {
	return &Verifier{
		postgres: postgres,
		logger:   logger,
		timeout:  time.Minute * 5,
	}
}

// WithTimeout sets a custom timeout for verification queries
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

type sqlCheck struct {
	name     string
	table    string
	severity Severity
	query    string
}

// Each query returns the number of offending rows.
var warehouseChecks = []sqlCheck{
	{
		name:     "unique_message_id",
		table:    "fct_messages",
		severity: SeverityError,
		query: `SELECT COALESCE(SUM(n - 1), 0) FROM (
			SELECT COUNT(*) AS n FROM marts.fct_messages GROUP BY message_id HAVING COUNT(*) > 1
		) d`,
	},
	{
		name:     "fk_channel_key",
		table:    "fct_messages",
		severity: SeverityError,
		query: `SELECT COUNT(*) FROM marts.fct_messages f
			LEFT JOIN marts.dim_channels c ON c.channel_key = f.channel_key
			WHERE c.channel_key IS NULL`,
	},
	{
		name:     "fk_date_key",
		table:    "fct_messages",
		severity: SeverityError,
		query: `SELECT COUNT(*) FROM marts.fct_messages f
			LEFT JOIN marts.dim_dates d ON d.date_key = f.date_key
			WHERE d.date_key IS NULL`,
	},
	{
		name:     "non_negative_counters",
		table:    "fct_messages",
		severity: SeverityError,
		query:    `SELECT COUNT(*) FROM marts.fct_messages WHERE views < 0 OR forwards < 0`,
	},
	{
		name:     "no_future_dates",
		table:    "fct_messages",
		severity: SeverityError,
		query:    `SELECT COUNT(*) FROM marts.fct_messages WHERE message_timestamp > NOW()`,
	},
	{
		name:     "fk_message_id",
		table:    "fct_image_detections",
		severity: SeverityError,
		query: `SELECT COUNT(*) FROM marts.fct_image_detections i
			LEFT JOIN marts.fct_messages f ON f.message_id = i.message_id
			WHERE f.message_id IS NULL`,
	},
	{
		name:     "fk_channel_key",
		table:    "fct_image_detections",
		severity: SeverityError,
		query: `SELECT COUNT(*) FROM marts.fct_image_detections i
			LEFT JOIN marts.dim_channels c ON c.channel_key = i.channel_key
			WHERE c.channel_key IS NULL`,
	},
	{
		name:     "confidence_range",
		table:    "fct_image_detections",
		severity: SeverityError,
		query: `SELECT COUNT(*) FROM marts.fct_image_detections
			WHERE confidence_score < 0 OR confidence_score > 1`,
	},
	{
		name:     "iso_day_of_week",
		table:    "dim_dates",
		severity: SeverityError,
		query:    `SELECT COUNT(*) FROM marts.dim_dates WHERE day_of_week < 1 OR day_of_week > 7`,
	},
}

// Verify runs every warehouse check and returns the combined report.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{CheckedAt: start}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	for _, check := range warehouseChecks {
		affected, err := v.countOffenders(ctx, check.query)
		if err != nil {
			return nil, fmt.Errorf("check %s on %s failed: %w", check.name, check.table, err)
		}
		if affected > 0 {
			report.add(check.name, check.table, check.severity, affected,
				"%d offending rows in %s", affected, check.table)
			v.logger.Warn("Warehouse check failed",
				zap.String("check", check.name),
				zap.String("table", check.table),
				zap.Int64("affectedRows", affected))
		}
	}

	v.logger.Info("Warehouse verification completed",
		zap.Int("checks", len(warehouseChecks)),
		zap.Int("violations", len(report.Violations)),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

// VerifyRowCounts compares the published table counts against the counts
// the build produced in memory.
func (v *Verifier) VerifyRowCounts(ctx context.Context, expected map[string]int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	matches := true
	for table, want := range expected {
		got, err := v.countOffenders(ctx, fmt.Sprintf("SELECT COUNT(*) FROM marts.%s", table))
		if err != nil {
			return false, fmt.Errorf("failed to count %s: %w", table, err)
		}
		if got != want {
			matches = false
			v.logger.Warn("Row count mismatch",
				zap.String("table", table),
				zap.Int64("expected", want),
				zap.Int64("actual", got))
		}
	}
	return matches, nil
}

func (v *Verifier) countOffenders(ctx context.Context, query string) (int64, error) {
	rows, err := v.postgres.QueryWithTimeout(ctx, query, v.timeout)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var count int64
	if !rows.Next() {
		return 0, fmt.Errorf("no result returned")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}
	return count, rows.Err()
}
