// Package config provides configuration management for the strategy-lab toolchain.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Register custom validation functions
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("timeframe", validateTimeframe)
	_ = v.RegisterValidation("spaces", validateSpaces)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional cross-field validations
	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	switch env {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	level := fl.Field().String()
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateTimeframe validates candle timeframe identifiers
func validateTimeframe(fl validator.FieldLevel) bool {
	validTimeframes := map[string]bool{
		"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
		"1h": true, "2h": true, "4h": true, "8h": true, "12h": true,
		"1d": true, "1w": true,
	}
	return validTimeframes[fl.Field().String()]
}

// validateSpaces validates hyperopt search-space identifiers
func validateSpaces(fl validator.FieldLevel) bool {
	spaces, ok := fl.Field().Interface().([]string)
	if !ok || len(spaces) == 0 {
		return false
	}

	validSpaces := map[string]bool{
		"buy": true, "sell": true, "roi": true, "stoploss": true,
		"trailing": true, "protection": true, "trades": true,
		"default": true, "all": true,
	}

	for _, space := range spaces {
		if !validSpaces[space] {
			return false
		}
	}
	return true
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	// Validate production environment requirements
	if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	// Validate connection pool settings
	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	// A scheduled batch needs a cron expression and at least one strategy
	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.CronExpression == "" {
			return fmt.Errorf("scheduler requires cron_expression when enabled")
		}
		if len(cfg.Scheduler.Strategies) == 0 {
			return fmt.Errorf("scheduler requires at least one strategy when enabled")
		}
	}

	// Notifications need a target
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL == "" {
		return fmt.Errorf("notify requires webhook_url when enabled")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "timeframe":
			errMsg += fmt.Sprintf("- Field '%s' must be a supported candle timeframe, got '%v'\n", field, value)
		case "spaces":
			errMsg += fmt.Sprintf("- Field '%s' contains an unknown hyperopt space\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
