// Package config loads the collector's configuration from an optional YAML
// file plus environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the admin HTTP surface.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres/TimescaleDB connection pool.
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME_SECONDS"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// CollectorConfig controls the upstream ENTSO-E HTTP client.
type CollectorConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url" env:"COLLECTOR_BASE_URL"`
	APITokenEnv           string `json:"api_token_env" yaml:"api_token_env" env:"COLLECTOR_API_TOKEN_ENV"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds" env:"COLLECTOR_REQUEST_TIMEOUT_SECONDS"`
}

// BackfillConfig controls the historical backfill engine.
type BackfillConfig struct {
	HistoricalYears    int     `json:"historical_years" yaml:"historical_years" env:"BACKFILL_HISTORICAL_YEARS"`
	ChunkMonths        int     `json:"chunk_months" yaml:"chunk_months" env:"BACKFILL_CHUNK_MONTHS"`
	RateLimitDelay     float64 `json:"rate_limit_delay" yaml:"rate_limit_delay" env:"BACKFILL_RATE_LIMIT_DELAY"`
	MaxConcurrentAreas int     `json:"max_concurrent_areas" yaml:"max_concurrent_areas" env:"BACKFILL_MAX_CONCURRENT_AREAS"`
}

// MonitoringConfig controls the monitoring engine's thresholds and retention.
type MonitoringConfig struct {
	MetricsRetentionDays    int     `json:"metrics_retention_days" yaml:"metrics_retention_days" env:"MONITORING_METRICS_RETENTION_DAYS"`
	PerformanceThresholdMS  float64 `json:"performance_threshold_ms" yaml:"performance_threshold_ms" env:"MONITORING_PERFORMANCE_THRESHOLD_MS"`
	SuccessRateThreshold    float64 `json:"success_rate_threshold" yaml:"success_rate_threshold" env:"MONITORING_SUCCESS_RATE_THRESHOLD"`
	AnomalyDetectionEnabled bool    `json:"anomaly_detection_enabled" yaml:"anomaly_detection_enabled" env:"MONITORING_ANOMALY_DETECTION_ENABLED"`
}

// SchedulerConfig controls job triggers and retry policy.
type SchedulerConfig struct {
	Enabled                           bool `json:"enabled" yaml:"enabled" env:"SCHEDULER_ENABLED"`
	RealTimeCollectionIntervalMinutes int  `json:"real_time_collection_interval_minutes" yaml:"real_time_collection_interval_minutes" env:"SCHEDULER_REAL_TIME_COLLECTION_INTERVAL_MINUTES"`
	GapAnalysisIntervalHours          int  `json:"gap_analysis_interval_hours" yaml:"gap_analysis_interval_hours" env:"SCHEDULER_GAP_ANALYSIS_INTERVAL_HOURS"`
	DailyBackfillAnalysisHour         int  `json:"daily_backfill_analysis_hour" yaml:"daily_backfill_analysis_hour" env:"SCHEDULER_DAILY_BACKFILL_ANALYSIS_HOUR"`
	DailyBackfillAnalysisMinute       int  `json:"daily_backfill_analysis_minute" yaml:"daily_backfill_analysis_minute" env:"SCHEDULER_DAILY_BACKFILL_ANALYSIS_MINUTE"`
	JobHealthCheckIntervalMinutes     int  `json:"job_health_check_interval_minutes" yaml:"job_health_check_interval_minutes" env:"SCHEDULER_JOB_HEALTH_CHECK_INTERVAL_MINUTES"`
	UsePersistentJobStore             bool `json:"use_persistent_job_store" yaml:"use_persistent_job_store" env:"SCHEDULER_USE_PERSISTENT_JOB_STORE"`
	MaxRetryAttempts                  int  `json:"max_retry_attempts" yaml:"max_retry_attempts" env:"SCHEDULER_MAX_RETRY_ATTEMPTS"`
	RetryBackoffBaseSeconds           int  `json:"retry_backoff_base_seconds" yaml:"retry_backoff_base_seconds" env:"SCHEDULER_RETRY_BACKOFF_BASE_SECONDS"`
	RetryBackoffMaxSeconds            int  `json:"retry_backoff_max_seconds" yaml:"retry_backoff_max_seconds" env:"SCHEDULER_RETRY_BACKOFF_MAX_SECONDS"`
	JobDefaultsCoalesce               bool `json:"job_defaults_coalesce" yaml:"job_defaults_coalesce" env:"SCHEDULER_JOB_DEFAULTS_COALESCE"`
	JobDefaultsMaxInstances           int  `json:"job_defaults_max_instances" yaml:"job_defaults_max_instances" env:"SCHEDULER_JOB_DEFAULTS_MAX_INSTANCES"`
	JobDefaultsMisfireGraceSeconds    int  `json:"job_defaults_misfire_grace_time_seconds" yaml:"job_defaults_misfire_grace_time_seconds" env:"SCHEDULER_JOB_DEFAULTS_MISFIRE_GRACE_TIME_SECONDS"`
	FailedJobNotificationThreshold    int  `json:"failed_job_notification_threshold" yaml:"failed_job_notification_threshold" env:"SCHEDULER_FAILED_JOB_NOTIFICATION_THRESHOLD"`
}

// AlertsConfig controls the alert rule engine.
type AlertsConfig struct {
	Enabled                bool   `json:"enabled" yaml:"enabled" env:"ALERTS_ENABLED"`
	RulesPath              string `json:"rules_path" yaml:"rules_path" env:"ALERTS_RULES_PATH"`
	DefaultCooldownMinutes int    `json:"default_cooldown_minutes" yaml:"default_cooldown_minutes" env:"ALERTS_DEFAULT_COOLDOWN_MINUTES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Collector  CollectorConfig  `json:"collector" yaml:"collector"`
	Backfill   BackfillConfig   `json:"backfill" yaml:"backfill"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
	Scheduler  SchedulerConfig  `json:"scheduler" yaml:"scheduler"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "entsoe-collector",
		},
		Collector: CollectorConfig{
			BaseURL:               "https://web-api.tp.entsoe.eu/api",
			APITokenEnv:           "ENTSOE_API_TOKEN",
			RequestTimeoutSeconds: 30,
		},
		Backfill: BackfillConfig{
			HistoricalYears:    2,
			ChunkMonths:        1,
			RateLimitDelay:     1.0,
			MaxConcurrentAreas: 3,
		},
		Monitoring: MonitoringConfig{
			MetricsRetentionDays:    90,
			PerformanceThresholdMS:  5000,
			SuccessRateThreshold:    0.95,
			AnomalyDetectionEnabled: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:                           true,
			RealTimeCollectionIntervalMinutes: 15,
			GapAnalysisIntervalHours:          6,
			DailyBackfillAnalysisHour:         2,
			DailyBackfillAnalysisMinute:       0,
			JobHealthCheckIntervalMinutes:     5,
			UsePersistentJobStore:             true,
			MaxRetryAttempts:                  5,
			RetryBackoffBaseSeconds:           30,
			RetryBackoffMaxSeconds:            1800,
			JobDefaultsCoalesce:               true,
			JobDefaultsMaxInstances:           1,
			JobDefaultsMisfireGraceSeconds:    60,
			FailedJobNotificationThreshold:    3,
		},
		Alerts: AlertsConfig{
			Enabled:                true,
			DefaultCooldownMinutes: 60,
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
// Environment variables always override file-provided values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a JSON config file over the defaults, then applies the
// DATABASE_URL override.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN,
// matching common PaaS deployment conventions.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
