package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/config"
	"github.com/chanpulse/warehouse/pkg/connector"
	"github.com/chanpulse/warehouse/pkg/detect"
	"github.com/chanpulse/warehouse/pkg/lake"
	"github.com/chanpulse/warehouse/pkg/logging"
	"github.com/chanpulse/warehouse/pkg/pipeline"
	"github.com/chanpulse/warehouse/pkg/scrape"
)

const (
	exitFailure = 1
	// exitQuality distinguishes a gate rejection from infrastructure
	// failure for the surrounding scheduler.
	exitQuality = 2
)

func main() {
	once := flag.Bool("once", false, "run the pipeline once and exit instead of scheduling")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(exitFailure)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitFailure)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitFailure)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, *once))
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) int {
	postgres, err := connector.NewPostgresConnector(ctx, cfg.Postgres)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", zap.Error(err))
		return exitFailure
	}
	defer postgres.Close()

	if err := postgres.Validate(); err != nil {
		logger.Error("PostgreSQL validation failed", zap.Error(err))
		return exitFailure
	}

	l := lake.New(cfg.Lake.MessagesDir, logger.Named("lake"))

	components := pipeline.Components{
		Postgres:    postgres,
		Lake:        l,
		LakeCfg:     cfg.Lake,
		PipelineCfg: cfg.Pipeline,
		Logger:      logger,
	}

	if cfg.Scrape.BaseURL != "" && len(cfg.Scrape.Channels) > 0 {
		source := scrape.NewHTTPSource(cfg.Scrape.BaseURL, cfg.Scrape.Timeout, logger.Named("source"))
		components.Scraper = scrape.NewScraper(source, l,
			cfg.Scrape.Channels, cfg.Scrape.MessageLimit, logger.Named("scraper"))
	} else {
		logger.Info("Scrape source not configured, running from existing lake data")
	}

	if cfg.Detect.Command != "" {
		components.Detector = detect.NewRunner(cfg.Detect.Command,
			cfg.Detect.ConfidenceThreshold, logger.Named("detector"))
	} else {
		logger.Info("Detector not configured, skipping image detection")
	}

	steps := pipeline.BuildSteps(components)
	policy := pipeline.RetryPolicy{
		Attempts: cfg.Pipeline.RetryAttempts,
		Delay:    cfg.Pipeline.RetryDelay,
		MaxDelay: cfg.Pipeline.RetryMaxDelay,
	}
	store := pipeline.NewPostgresRunStore(postgres)
	runner := pipeline.NewRunner(steps, policy, store, logger.Named("pipeline"))

	if once {
		runKey := pipeline.RunKey("manual", time.Now())
		if err := runner.Execute(ctx, runKey, "manual"); err != nil {
			var qerr *pipeline.QualityError
			if errors.As(err, &qerr) {
				logger.Error("Run blocked by quality gate", zap.Strings("failures", qerr.Failures))
				return exitQuality
			}
			logger.Error("Run failed", zap.Error(err))
			return exitFailure
		}
		return 0
	}

	scheduler := pipeline.NewScheduler(runner,
		cfg.Pipeline.ScheduleHour, cfg.Pipeline.ScheduleMinute, logger.Named("scheduler"))
	if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Scheduler failed", zap.Error(err))
		return exitFailure
	}
	return 0
}
