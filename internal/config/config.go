// Package config provides configuration management for the strategy-lab toolchain.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Engine       EngineConfig       `mapstructure:"engine" validate:"required"`
	Optimization OptimizationConfig `mapstructure:"optimization" validate:"required"`
	Backtest     BacktestConfig     `mapstructure:"backtest" validate:"required"`
	Artifacts    ArtifactsConfig    `mapstructure:"artifacts" validate:"required"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Metrics      MetricsConfig      `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// EngineConfig represents the external trading-engine CLI configuration.
// The engine is a black box; only its invocation surface is configured here.
type EngineConfig struct {
	Binary         string `mapstructure:"binary" validate:"required"`
	UserDataDir    string `mapstructure:"user_data_dir" validate:"required"`
	ConfigPath     string `mapstructure:"config_path" validate:"required"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes" validate:"required,gt=0"`
}

// OptimizationConfig represents hyperparameter-search defaults
type OptimizationConfig struct {
	Epochs           int      `mapstructure:"epochs" validate:"required,gt=0"`
	HyperoptFunction string   `mapstructure:"hyperopt_function" validate:"required"`
	Spaces           []string `mapstructure:"spaces" validate:"required,min=1,spaces"`
	Timeframe        string   `mapstructure:"timeframe" validate:"required,timeframe"`
	Timerange        string   `mapstructure:"timerange" validate:"required"`
	RunsPerStrategy  int      `mapstructure:"runs_per_strategy" validate:"required,gt=0"`
}

// BacktestConfig represents validation-run defaults
type BacktestConfig struct {
	Timeframe string `mapstructure:"timeframe" validate:"required,timeframe"`
	Timerange string `mapstructure:"timerange" validate:"required"`
	MinTrades int    `mapstructure:"min_trades" validate:"gte=0"`
}

// ArtifactsConfig represents the side-channel document store layout
type ArtifactsConfig struct {
	BaseDir string `mapstructure:"base_dir" validate:"required"`
}

// SchedulerConfig represents scheduled batch-run configuration
type SchedulerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	CronExpression string   `mapstructure:"cron_expression"`
	Strategies     []string `mapstructure:"strategies"`
}

// NotifyConfig represents webhook notification configuration
type NotifyConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	WebhookURL    string  `mapstructure:"webhook_url" validate:"omitempty,url"`
	RatePerMinute float64 `mapstructure:"rate_per_minute" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// EngineTimeout returns the engine invocation timeout as a duration
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutMinutes) * time.Minute
}
