// Package config loads the flockwatch YAML configuration into typed structs,
// applies environment overrides for secrets, and validates the tunables the
// scoring pipeline depends on.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/ingest"
	"github.com/flockwatch/flockwatch/internal/persistence/postgres"
	"github.com/flockwatch/flockwatch/internal/sentiment"
)

// Environment variables that override file values, so credentials stay out
// of checked-in YAML.
const (
	EnvAPIKey      = "FLOCKWATCH_API_KEY"
	EnvPostgresDSN = "FLOCKWATCH_PG_DSN"
)

// Config is the root configuration document.
type Config struct {
	PollIntervalSeconds      int              `yaml:"poll_interval_seconds"`
	MaxWindows               int              `yaml:"max_windows"`
	WarmupPeriod             int              `yaml:"warmup_period"`
	NoiseFloor               float64          `yaml:"noise_floor"`
	RoboticThreshold         float64          `yaml:"robotic_threshold"`
	RoboticPenaltyMultiplier float64          `yaml:"robotic_penalty_multiplier"`
	Weights                  baseline.Weights `yaml:"weights"`
	Validation               ValidationConfig `yaml:"validation"`
	LogLevel                 string           `yaml:"log_level"`

	Source    SourceConfig    `yaml:"source"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Database  DatabaseConfig  `yaml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Alerts    AlertsConfig    `yaml:"alerts"`

	// Videos are the ids the watch and replay commands operate on.
	Videos []string `yaml:"videos"`
}

// ValidationConfig holds tolerances for config validation itself.
type ValidationConfig struct {
	WeightSumTolerance float64 `yaml:"weight_sum_tolerance"`
}

// SourceConfig configures the comment source API client and its guards.
type SourceConfig struct {
	BaseURL               string       `yaml:"base_url"`
	APIKey                string       `yaml:"api_key"`
	PageSize              int          `yaml:"page_size"`
	RequestTimeoutSeconds int          `yaml:"request_timeout_seconds"`
	Rate                  RateConfig   `yaml:"rate"`
	Budget                BudgetConfig `yaml:"budget"`
}

// RateConfig tunes the per-host token bucket in front of an upstream.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BudgetConfig tunes the daily request allowance for the comment source.
// A zero DailyLimit disables budget tracking.
type BudgetConfig struct {
	DailyLimit    int64   `yaml:"daily_limit"`
	ResetHourUTC  int     `yaml:"reset_hour_utc"`
	WarnThreshold float64 `yaml:"warn_threshold"`
}

// SentimentConfig configures the sentiment service client and its cache.
type SentimentConfig struct {
	BaseURL               string      `yaml:"base_url"`
	BatchSize             int         `yaml:"batch_size"`
	RequestTimeoutSeconds int         `yaml:"request_timeout_seconds"`
	Cache                 CacheConfig `yaml:"cache"`
}

// CacheConfig configures the redis sentiment score cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// DatabaseConfig configures the postgres connection pool.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	QueryTimeoutSeconds    int    `yaml:"query_timeout_seconds"`
}

// MonitorConfig configures the optional HTTP monitor server.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// AlertsConfig selects alert sinks and sizes the in-process alert history.
type AlertsConfig struct {
	Sinks       []string `yaml:"sinks"`
	HistorySize int      `yaml:"history_size"`
}

// DefaultConfig returns the production defaults. LoadConfig unmarshals the
// file over these, so absent keys keep their default.
func DefaultConfig() *Config {
	return &Config{
		PollIntervalSeconds:      600,
		MaxWindows:               20,
		WarmupPeriod:             10,
		NoiseFloor:               1.0,
		RoboticThreshold:         -1.5,
		RoboticPenaltyMultiplier: 2.0,
		Weights: baseline.Weights{
			Concentration: 0.4,
			GapVariance:   0.3,
			SentimentVar:  0.2,
			Count:         0.1,
		},
		Validation: ValidationConfig{WeightSumTolerance: 0.001},
		LogLevel:   "info",
		Source: SourceConfig{
			PageSize:              100,
			RequestTimeoutSeconds: 10,
			Rate:                  RateConfig{RPS: 2, Burst: 4},
			Budget:                BudgetConfig{DailyLimit: 10000, ResetHourUTC: 0, WarnThreshold: 0.8},
		},
		Sentiment: SentimentConfig{
			BatchSize:             32,
			RequestTimeoutSeconds: 15,
			Cache:                 CacheConfig{Addr: "localhost:6379", TTLHours: 168},
		},
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
			QueryTimeoutSeconds:    30,
		},
		Monitor: MonitorConfig{Listen: ":8087"},
		Alerts:  AlertsConfig{Sinks: []string{"log", "stdout"}, HistorySize: 100},
	}
}

// LoadConfig reads and validates the configuration at path. Secrets can be
// supplied through FLOCKWATCH_API_KEY and FLOCKWATCH_PG_DSN, which take
// precedence over file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Database.DSN = v
	}
}

// Validate checks the tunables the pipeline cannot run without. The DSN is
// deliberately not checked here; commands that open the pool report its
// absence themselves.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.MaxWindows <= 0 {
		return fmt.Errorf("max_windows must be positive, got %d", c.MaxWindows)
	}
	if c.WarmupPeriod <= 0 {
		return fmt.Errorf("warmup_period must be positive, got %d", c.WarmupPeriod)
	}
	if c.WarmupPeriod > c.MaxWindows {
		return fmt.Errorf("warmup_period %d exceeds max_windows %d, the baseline could never warm up",
			c.WarmupPeriod, c.MaxWindows)
	}
	if c.RoboticPenaltyMultiplier < 1 {
		return fmt.Errorf("robotic_penalty_multiplier must be >= 1, got %.3f", c.RoboticPenaltyMultiplier)
	}

	weights := map[string]float64{
		"concentration": c.Weights.Concentration,
		"gap_variance":  c.Weights.GapVariance,
		"sentiment_var": c.Weights.SentimentVar,
		"count":         c.Weights.Count,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("weight %s out of range [0,1]: %.3f", name, w)
		}
	}

	tolerance := c.Validation.WeightSumTolerance
	if tolerance <= 0 {
		tolerance = DefaultConfig().Validation.WeightSumTolerance
	}
	sum := c.Weights.Concentration + c.Weights.GapVariance + c.Weights.SentimentVar + c.Weights.Count
	if math.Abs(sum-1.0) > tolerance {
		return fmt.Errorf("score weights sum to %.4f, expected 1.0 within tolerance %.4f", sum, tolerance)
	}

	if c.Monitor.Enabled && c.Monitor.Listen == "" {
		return fmt.Errorf("monitor.listen is required when the monitor is enabled")
	}

	for _, sink := range c.Alerts.Sinks {
		switch sink {
		case "log", "stdout":
		default:
			return fmt.Errorf("unknown alert sink %q (supported: log, stdout)", sink)
		}
	}

	if c.Source.Budget.ResetHourUTC < 0 || c.Source.Budget.ResetHourUTC > 23 {
		return fmt.Errorf("source.budget.reset_hour_utc must be in [0,23], got %d", c.Source.Budget.ResetHourUTC)
	}

	return nil
}

// PollInterval returns the live polling cadence, which is also the window
// length for both live and replay evaluation.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ScoreParams assembles the scorer parameters from the top-level tunables.
func (c *Config) ScoreParams() baseline.ScoreParams {
	return baseline.ScoreParams{
		NoiseFloor:               c.NoiseFloor,
		RoboticThreshold:         c.RoboticThreshold,
		RoboticPenaltyMultiplier: c.RoboticPenaltyMultiplier,
		Weights:                  c.Weights,
	}
}

// ClientConfig converts the source block into the ingest client config.
func (c SourceConfig) ClientConfig() ingest.Config {
	return ingest.Config{
		BaseURL:        c.BaseURL,
		APIKey:         c.APIKey,
		PageSize:       c.PageSize,
		RequestTimeout: time.Duration(c.RequestTimeoutSeconds) * time.Second,
	}
}

// ClientConfig converts the sentiment block into the sentiment client config.
func (c SentimentConfig) ClientConfig() sentiment.Config {
	return sentiment.Config{
		BaseURL:        c.BaseURL,
		BatchSize:      c.BatchSize,
		RequestTimeout: time.Duration(c.RequestTimeoutSeconds) * time.Second,
	}
}

// CacheClientConfig converts the cache block into the sentiment cache config.
func (c SentimentConfig) CacheClientConfig() sentiment.CacheConfig {
	return sentiment.CacheConfig{
		Enabled:  c.Cache.Enabled,
		Addr:     c.Cache.Addr,
		Password: c.Cache.Password,
		DB:       c.Cache.DB,
		TTL:      time.Duration(c.Cache.TTLHours) * time.Hour,
	}
}

// PoolConfig converts the database block into the postgres pool config.
// Zero-valued pool settings keep the postgres defaults.
func (c DatabaseConfig) PoolConfig() postgres.Config {
	pool := postgres.DefaultConfig()
	pool.DSN = c.DSN
	if c.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetimeMinutes > 0 {
		pool.ConnMaxLifetime = time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
	}
	if c.QueryTimeoutSeconds > 0 {
		pool.QueryTimeout = time.Duration(c.QueryTimeoutSeconds) * time.Second
	}
	return pool
}
