// Package config provides configuration management for the strategy-lab toolchain.
package config

import (
	"os"
	"testing"
	"time"
)

const (
	validConfigPath              = "testdata/valid_config.yaml"
	expansionConfigPath          = "testdata/expansion_config.yaml"
	expansionConfigMissingPath   = "testdata/expansion_config_missing.yaml"
	nonexistentConfigPath        = "testdata/nonexistent_config.yaml"
	expectedNoErrorLoadingConfig = "expected no error loading config, got %v"
	expectedNoErrorMsg           = "expected no error, got %v"
	expectedNonNilConfig         = "expected non-nil config"
	strategyLabName              = "strategy-lab"
	developmentEnv               = "development"
	invalidEnv                   = "invalid"
	localhostHost                = "localhost"
	postgresPort                 = 5432
	postgresPrefix               = "postgres://"
	testAppName                  = "test-app"
	testDBPassword               = "TEST_DB_PASSWORD"
	testMissingVar               = "TEST_MISSING_VAR"
	expandedSecretValue          = "expanded_secret_value"
	spacesValidationError        = "spaces"
	spacesValidationErrorCaps    = "Spaces"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg == nil {
		t.Fatal(expectedNonNilConfig)
	}

	if cfg.App.Name != strategyLabName {
		t.Errorf("expected app name '%s', got '%s'", strategyLabName, cfg.App.Name)
	}

	if cfg.App.Environment != developmentEnv {
		t.Errorf("expected environment '%s', got '%s'", developmentEnv, cfg.App.Environment)
	}

	if cfg.Database.Host != localhostHost {
		t.Errorf("expected database host '%s', got '%s'", localhostHost, cfg.Database.Host)
	}

	if cfg.Database.Port != postgresPort {
		t.Errorf("expected database port %d, got %d", postgresPort, cfg.Database.Port)
	}

	if cfg.Engine.Binary != "freqtrade" {
		t.Errorf("expected engine binary 'freqtrade', got '%s'", cfg.Engine.Binary)
	}

	if cfg.Optimization.Epochs != 500 {
		t.Errorf("expected 500 epochs, got %d", cfg.Optimization.Epochs)
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	// Set an environment variable
	os.Setenv("STRATEGY_LAB_APP_NAME", testAppName)
	defer os.Unsetenv("STRATEGY_LAB_APP_NAME")

	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != testAppName {
		t.Errorf("expected app name '%s' from environment, got '%s'", testAppName, cfg.App.Name)
	}
}

// TestLoadWithDefaults tests that defaults apply when the file is absent
func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.Engine.Binary != "freqtrade" {
		t.Errorf("expected default engine binary 'freqtrade', got '%s'", cfg.Engine.Binary)
	}

	if cfg.Optimization.Epochs != 100 {
		t.Errorf("expected default 100 epochs, got %d", cfg.Optimization.Epochs)
	}

	if cfg.Artifacts.BaseDir != "optimization_results" {
		t.Errorf("expected default artifacts dir, got '%s'", cfg.Artifacts.BaseDir)
	}
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	err = Validate(cfg)
	if err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateInvalidEnvironment tests validation of invalid environment
func TestValidateInvalidEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.App.Environment = invalidEnv
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
}

// TestValidateInvalidSpaces tests validation of unknown hyperopt spaces
func TestValidateInvalidSpaces(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	// Set invalid spaces
	cfg.Optimization.Spaces = []string{"foo", "bar"}
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid spaces")
	}

	if !containsSubstring(err.Error(), spacesValidationError) && !containsSubstring(err.Error(), spacesValidationErrorCaps) {
		t.Errorf("expected spaces validation error, got: %v", err)
	}
}

// TestValidateEmptySpaces tests validation of empty spaces array
func TestValidateEmptySpaces(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	// Set empty spaces
	cfg.Optimization.Spaces = []string{}
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for empty spaces")
	}
}

// TestValidateValidSpaces tests validation of valid space combinations
func TestValidateValidSpaces(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	// Test with single valid space
	cfg.Optimization.Spaces = []string{"buy"}
	err = Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error for single valid space, got %v", err)
	}

	// Test with multiple valid spaces
	cfg.Optimization.Spaces = []string{"buy", "sell", "roi", "stoploss", "trailing"}
	err = Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error for multiple valid spaces, got %v", err)
	}
}

// TestValidateInvalidTimeframe tests validation of an unsupported timeframe
func TestValidateInvalidTimeframe(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.Optimization.Timeframe = "7m"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for unsupported timeframe")
	}
}

// TestValidateProductionRequiresSSL tests the production SSL cross-field rule
func TestValidateProductionRequiresSSL(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "disable"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for production without SSL")
	}
}

// TestValidateIdleConnectionsBound tests the connection pool cross-field rule
func TestValidateIdleConnectionsBound(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.Database.MaxConnections = 5
	cfg.Database.MaxIdleConnections = 10
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error when idle connections exceed max connections")
	}
}

// TestValidateSchedulerRequiresCron tests scheduler cross-field validation
func TestValidateSchedulerRequiresCron(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.CronExpression = ""
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for enabled scheduler without cron expression")
	}

	cfg.Scheduler.CronExpression = "0 2 * * *"
	cfg.Scheduler.Strategies = nil
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for enabled scheduler without strategies")
	}

	cfg.Scheduler.Strategies = []string{"SMA200Strategy"}
	err = Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error for fully configured scheduler, got %v", err)
	}
}

// TestValidateNotifyRequiresWebhook tests notify cross-field validation
func TestValidateNotifyRequiresWebhook(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.Notify.Enabled = true
	cfg.Notify.WebhookURL = ""
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for enabled notify without webhook URL")
	}
}

// TestGetDatabaseDSN tests DSN generation
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	dsn := cfg.GetDatabaseDSN()
	if dsn == "" {
		t.Fatal("expected non-empty DSN")
	}

	if !containsSubstring(dsn, postgresPrefix) {
		t.Errorf("expected DSN to start with '%s', got '%s'", postgresPrefix, dsn)
	}
}

// TestEngineTimeout tests engine timeout conversion
func TestEngineTimeout(t *testing.T) {
	cfg := &Config{
		Engine: EngineConfig{TimeoutMinutes: 120},
	}

	if cfg.EngineTimeout() != 2*time.Hour {
		t.Errorf("expected 2h timeout, got %v", cfg.EngineTimeout())
	}
}

// TestIsDevelopment tests environment check function
func TestIsDevelopment(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: developmentEnv},
	}

	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return true")
	}

	if cfg.IsProduction() {
		t.Error("expected IsProduction() to return false")
	}
}

// TestIsProduction tests production environment check
func TestIsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}

	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to return true")
	}

	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false")
	}
}

// TestIsStaging tests staging environment check
func TestIsStaging(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "staging"},
	}

	if !cfg.IsStaging() {
		t.Error("expected IsStaging() to return true")
	}

	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false")
	}
}

// TestLoadConfigEnvironmentVariableExpansion tests environment variable expansion in config file
func TestLoadConfigEnvironmentVariableExpansion(t *testing.T) {
	// Set environment variable
	os.Setenv(testDBPassword, expandedSecretValue)
	defer os.Unsetenv(testDBPassword)

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf("expected no error loading config with expansion, got %v", err)
	}

	if cfg.Database.Password != expandedSecretValue {
		t.Errorf("expected password '%s' from environment expansion, got '%s'", expandedSecretValue, cfg.Database.Password)
	}
}

// TestLoadConfigMissingEnvironmentVariable tests handling of missing environment variables
func TestLoadConfigMissingEnvironmentVariable(t *testing.T) {
	// Ensure environment variable is not set
	os.Unsetenv(testMissingVar)

	cfg, err := Load(expansionConfigMissingPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	// os.ExpandEnv replaces an unset ${VAR} with the empty string
	if cfg.Database.Password != "" {
		t.Logf("note: missing env var became: %q (expected empty)", cfg.Database.Password)
	}
}

// TestOverlaySecretsOnConfig tests applying a secrets overlay
func TestOverlaySecretsOnConfig(t *testing.T) {
	cfg := &Config{}
	secrets := &SecretsOverlay{
		DatabasePassword: "from-secrets",
		WebhookURL:       "https://hooks.example.com/lab",
	}

	overlaySecretsOnConfig(cfg, secrets)

	if cfg.Database.Password != "from-secrets" {
		t.Errorf("expected overlaid password, got '%s'", cfg.Database.Password)
	}

	if cfg.Notify.WebhookURL != "https://hooks.example.com/lab" {
		t.Errorf("expected overlaid webhook URL, got '%s'", cfg.Notify.WebhookURL)
	}
}

// Helper function
func containsSubstring(str, substr string) bool {
	for i := 0; i <= len(str)-len(substr); i++ {
		if str[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
