package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Database connection
	Postgres *PostgresConfig

	// Pipeline settings
	Pipeline PipelineConfig

	// Data lake layout
	Lake LakeConfig

	// Collaborators
	Scrape ScrapeConfig
	Detect DetectConfig

	// Analytics API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// PipelineConfig controls orchestration behaviour and the generated
// date-dimension range.
type PipelineConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// Inclusive calendar range for dim_dates.
	DateRangeStart time.Time
	DateRangeEnd   time.Time

	// Daily schedule time, UTC.
	ScheduleHour   int
	ScheduleMinute int
}

// LakeConfig describes where the raw data lake lives on disk.
type LakeConfig struct {
	MessagesDir   string
	ImagesDir     string
	DetectionsCSV string
}

// ScrapeConfig configures the message source collaborator.
type ScrapeConfig struct {
	BaseURL      string
	Channels     []string
	MessageLimit int
	Timeout      time.Duration
}

// DetectConfig configures the external object-detection command.
type DetectConfig struct {
	Command             string
	ConfidenceThreshold float64
}

// APIConfig configures the read-only analytics API server.
type APIConfig struct {
	Addr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Pipeline: PipelineConfig{
			RetryAttempts:  getEnvAsInt("RETRY_ATTEMPTS", 3),
			RetryDelay:     time.Duration(getEnvAsInt("RETRY_DELAY_MS", 30000)) * time.Millisecond,
			RetryMaxDelay:  time.Duration(getEnvAsInt("RETRY_MAX_DELAY_MS", 300000)) * time.Millisecond,
			ScheduleHour:   getEnvAsInt("SCHEDULE_HOUR_UTC", 2),
			ScheduleMinute: getEnvAsInt("SCHEDULE_MINUTE_UTC", 0),
		},
		Lake: LakeConfig{
			MessagesDir:   getEnv("DATA_RAW_MESSAGES", "data/raw/telegram_messages"),
			ImagesDir:     getEnv("DATA_RAW_IMAGES", "data/raw/images"),
			DetectionsCSV: getEnv("DETECTIONS_CSV", "data/processed/detections.csv"),
		},
		Scrape: ScrapeConfig{
			BaseURL:      getEnv("SCRAPE_BASE_URL", ""),
			MessageLimit: getEnvAsInt("SCRAPE_MESSAGE_LIMIT", 100),
			Timeout:      time.Duration(getEnvAsInt("SCRAPE_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Detect: DetectConfig{
			Command:             getEnv("DETECTOR_COMMAND", ""),
			ConfidenceThreshold: getEnvAsFloat("DETECTOR_CONFIDENCE_THRESHOLD", 0.25),
		},
		API: APIConfig{
			Addr: getEnv("API_ADDR", ":8000"),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Date dimension range, inclusive. Defaults cover the active years of
	// the scraped channels with headroom on both sides.
	var err error
	cfg.Pipeline.DateRangeStart, err = parseDateEnv("DATE_RANGE_START", "2020-01-01")
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.DateRangeEnd, err = parseDateEnv("DATE_RANGE_END", "2026-12-31")
	if err != nil {
		return nil, err
	}

	// Load database configuration
	pgConfig, err := LoadPostgresConfig()
	if err != nil {
		return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
	}
	cfg.Postgres = pgConfig

	// Channel list comes from a YAML file when configured
	if path := getEnv("CHANNELS_FILE", ""); path != "" {
		channels, err := loadChannelsFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load channels file: %w", err)
		}
		cfg.Scrape.Channels = channels
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Postgres == nil {
		return errors.New("postgreSQL configuration is required")
	}

	if c.Pipeline.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}

	if c.Pipeline.RetryDelay < 0 {
		return errors.New("retry delay cannot be negative")
	}

	if c.Pipeline.DateRangeEnd.Before(c.Pipeline.DateRangeStart) {
		return errors.New("date range end must not precede date range start")
	}

	if c.Detect.ConfidenceThreshold < 0 || c.Detect.ConfidenceThreshold > 1 {
		return errors.New("detector confidence threshold must be in [0,1]")
	}

	return nil
}

// channelsFile is the on-disk YAML shape of the channel list.
type channelsFile struct {
	Channels []string `yaml:"channels"`
}

func loadChannelsFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f channelsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}

	if len(f.Channels) == 0 {
		return nil, errors.New("channels file lists no channels")
	}

	return f.Channels, nil
}

func parseDateEnv(key, defaultValue string) (time.Time, error) {
	value := getEnv(key, defaultValue)
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date in %s: %w", key, err)
	}
	return t, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
