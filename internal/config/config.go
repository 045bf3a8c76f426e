// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	DatabaseDSN string `yaml:"database_dsn" env:"DATABASE_DSN"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR"`

	ShopifyAPIKey    string `yaml:"shopify_api_key" env:"SHOPIFY_API_KEY"`
	ShopifyAPISecret string `yaml:"shopify_api_secret" env:"SHOPIFY_API_SECRET"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"LOG_FILE"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig controls the batch job scheduler.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	DryRun        bool   `yaml:"dry_run" env:"SCHEDULER_DRY_RUN"`
	Daily         string `yaml:"daily" env:"SCHEDULER_DAILY"` // cron spec for the daily reward run.
	RetentionDays int    `yaml:"retention_days" env:"SCHEDULER_RETENTION_DAYS"` // age limit for activity log and settled guest points rows.
}

// Load reads configuration from path (optional) and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:  ":8080",
		DatabaseDSN: "file:perkmill.db",
		LogLevel:    "info",
		Scheduler: SchedulerConfig{
			Enabled: true,
			Daily:   "0 6 * * *",
		},
	}

	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}

	if errEnv := env.Parse(cfg); errEnv != nil {
		return nil, fmt.Errorf("config: parse env: %w", errEnv)
	}

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("config: database_dsn is required")
	}
	return cfg, nil
}
