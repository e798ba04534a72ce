package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "valuations.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.autopricing.io", cfg.Pricing.BaseURL)
	assert.Equal(t, 20, cfg.Listings.Limit)
	assert.Equal(t, 30, cfg.Stages.Baseline.TimeoutSecs)
	assert.Equal(t, 2, cfg.Stages.Baseline.Retries)
	assert.Equal(t, 45, cfg.Stages.Market.TimeoutSecs)
	assert.Equal(t, 1, cfg.Stages.Internal.Retries)
	assert.Equal(t, 60, cfg.Stages.Synthesis.TimeoutSecs)
	assert.Equal(t, 0, cfg.Stages.Feedback.Retries)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, 1000, cfg.Batch.ItemDelayMs)
	assert.Equal(t, 300, cfg.Batch.StagePacingMs)
	assert.Equal(t, 30, cfg.Batch.FeedbackLimit)
	assert.Equal(t, "valuation.progress", cfg.NATS.Subject)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dealer
  pool:
    max_conns: 4
log:
  level: debug
  format: console
stages:
  market:
    retries: 5
batch:
  workers: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	require.NotNil(t, cfg.Store.Pool)
	assert.Equal(t, int32(4), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Stages.Market.Retries)
	assert.Equal(t, 3, cfg.Batch.Workers)
	// Defaults still apply for unset values
	assert.Equal(t, 45, cfg.Stages.Market.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("VALUATION_STORE_DRIVER", "postgres")
	t.Setenv("VALUATION_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("VALUATION_ANTHROPIC_KEY", "sk-ant")
	t.Setenv("VALUATION_PRICING_KEY", "pk")
	t.Setenv("VALUATION_LISTINGS_KEY", "lk")
	t.Setenv("VALUATION_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
	assert.Equal(t, "pk", cfg.Pricing.Key)
	assert.Equal(t, "lk", cfg.Listings.Key)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.NoError(t, cfg.Validate("valuate"))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "valuations.db"
	cfg.Batch.Workers = 1
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateValuate_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Pricing.Key = "pricing-key"
	cfg.Listings.Key = "listings-key"

	assert.NoError(t, cfg.Validate("valuate"))
}

func TestValidateValuate_MissingKeys(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("valuate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "pricing.key is required")
	assert.Contains(t, err.Error(), "listings.key is required")
}

func TestValidateOffline_NoKeysNeeded(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("offline"))
	assert.NoError(t, cfg.Validate("serve-offline"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.Workers = 0
	assert.NoError(t, cfg.Validate("store"), "batch settings are not checked for store commands")

	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve-offline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Workers = 0
	err := cfg.Validate("offline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.workers must be between 1 and 16")

	cfg.Batch.Workers = 17
	assert.Error(t, cfg.Validate("offline"))

	cfg.Batch.Workers = 16
	assert.NoError(t, cfg.Validate("offline"))

	cfg.Batch.ItemDelayMs = -1
	err = cfg.Validate("offline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.item_delay_ms")
}
