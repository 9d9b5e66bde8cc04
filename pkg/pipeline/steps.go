package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/config"
	"github.com/chanpulse/warehouse/pkg/connector"
	"github.com/chanpulse/warehouse/pkg/detect"
	"github.com/chanpulse/warehouse/pkg/lake"
	"github.com/chanpulse/warehouse/pkg/loader"
	"github.com/chanpulse/warehouse/pkg/quality"
	"github.com/chanpulse/warehouse/pkg/scrape"
	"github.com/chanpulse/warehouse/pkg/warehouse"
)

// Components are the collaborators the standard pipeline sequences. Scraper
// and Detector are optional; their steps are skipped when absent.
type Components struct {
	Postgres connector.DatabaseConnector
	Lake     *lake.Lake
	Scraper  *scrape.Scraper
	Detector *detect.Runner

	LakeCfg     config.LakeConfig
	PipelineCfg config.PipelineConfig

	Logger *zap.Logger
}

// BuildSteps assembles the standard run: land raw data, build and gate the
// dimensional model, publish it, then verify what landed.
func BuildSteps(c Components) []Step {
	rawLoader := loader.NewRawLoader(c.Postgres, c.Lake, c.Logger.Named("raw-loader"))
	detLoader := loader.NewDetectionLoader(c.Postgres, c.Logger.Named("detection-loader"))
	builder := warehouse.NewBuilder(c.Postgres,
		c.PipelineCfg.DateRangeStart, c.PipelineCfg.DateRangeEnd,
		c.Logger.Named("builder"))
	writer := warehouse.NewWriter(c.Postgres, c.Logger.Named("writer"))
	verifier := quality.NewVerifier(c.Postgres, c.Logger.Named("verifier"))
	gateLogger := c.Logger.Named("quality-gate")

	steps := []Step{
		{Name: "ensure_tables", Run: func(ctx context.Context) error {
			return warehouse.EnsureTables(ctx, c.Postgres)
		}},
	}

	if c.Scraper != nil {
		steps = append(steps, Step{Name: "scrape", Run: func(ctx context.Context) error {
			_, err := c.Scraper.ScrapeAll(ctx)
			return err
		}})
	}

	steps = append(steps, Step{Name: "load_raw", Run: func(ctx context.Context) error {
		_, err := rawLoader.LoadAll(ctx)
		return err
	}})

	if c.Detector != nil {
		steps = append(steps, Step{Name: "detect", Run: func(ctx context.Context) error {
			detections, err := c.Detector.Run(ctx, c.LakeCfg.ImagesDir)
			if err != nil {
				return err
			}
			if len(detections) == 0 {
				return nil
			}
			return lake.WriteDetectionsCSV(c.LakeCfg.DetectionsCSV, detections)
		}})
	}

	steps = append(steps, Step{Name: "load_detections", Run: func(ctx context.Context) error {
		_, err := detLoader.LoadCSV(ctx, c.LakeCfg.DetectionsCSV)
		return err
	}})

	steps = append(steps, Step{Name: "build_and_publish", Run: func(ctx context.Context) error {
		tables, _, err := builder.Build(ctx)
		if err != nil {
			return err
		}

		report := quality.Check(tables, time.Now())
		for _, v := range report.Violations {
			gateLogger.Warn("Quality check violation",
				zap.String("check", v.Check),
				zap.String("table", v.Table),
				zap.String("severity", string(v.Severity)),
				zap.Int64("affectedRows", v.AffectedRows))
		}
		if !report.Passed() {
			failures := make([]string, 0, len(report.Errors()))
			for _, v := range report.Errors() {
				failures = append(failures, fmt.Sprintf("%s on %s (%d rows)",
					v.Check, v.Table, v.AffectedRows))
			}
			return &QualityError{Failures: failures}
		}

		return writer.Publish(ctx, tables)
	}})

	steps = append(steps, Step{Name: "verify", Run: func(ctx context.Context) error {
		report, err := verifier.Verify(ctx)
		if err != nil {
			return err
		}
		if !report.Passed() {
			failures := make([]string, 0, len(report.Errors()))
			for _, v := range report.Errors() {
				failures = append(failures, fmt.Sprintf("%s on %s", v.Check, v.Table))
			}
			return &QualityError{Failures: failures}
		}
		return nil
	}})

	return steps
}
