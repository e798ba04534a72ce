package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/valuation-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Listings  ListingsConfig  `yaml:"listings" mapstructure:"listings"`
	Stages    StagesConfig    `yaml:"stages" mapstructure:"stages"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	NATS      NATSConfig      `yaml:"nats" mapstructure:"nats"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// AnthropicConfig holds settings for the synthesis model.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PricingConfig holds the baseline pricing API settings.
type PricingConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ListingsConfig holds the market listings API settings.
type ListingsConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	YearWindow int     `yaml:"year_window" mapstructure:"year_window"`
	Limit      int     `yaml:"limit" mapstructure:"limit"`
}

// StageConfig is the timeout and retry budget of one external call.
type StageConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int `yaml:"retries" mapstructure:"retries"`
	DelayMs     int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// StagesConfig holds the budget of every enrichment stage.
type StagesConfig struct {
	Baseline  StageConfig `yaml:"baseline" mapstructure:"baseline"`
	Market    StageConfig `yaml:"market" mapstructure:"market"`
	Internal  StageConfig `yaml:"internal" mapstructure:"internal"`
	Synthesis StageConfig `yaml:"synthesis" mapstructure:"synthesis"`
	Persist   StageConfig `yaml:"persist" mapstructure:"persist"`
	Feedback  StageConfig `yaml:"feedback" mapstructure:"feedback"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers"`
	ItemDelayMs   int `yaml:"item_delay_ms" mapstructure:"item_delay_ms"`
	StagePacingMs int `yaml:"stage_pacing_ms" mapstructure:"stage_pacing_ms"`
	FeedbackLimit int `yaml:"feedback_limit" mapstructure:"feedback_limit"`
}

// NATSConfig enables progress publishing to NATS when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

const maxWorkers = 16

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VALUATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have empty defaults so AutomaticEnv can see them.
	for _, key := range []string{"anthropic.key", "pricing.key", "listings.key", "nats.url"} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "valuations.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("pricing.base_url", "https://api.autopricing.io")
	v.SetDefault("pricing.rate_limit", 2)
	v.SetDefault("listings.base_url", "https://api.listingsearch.io")
	v.SetDefault("listings.rate_limit", 1)
	v.SetDefault("listings.year_window", 1)
	v.SetDefault("listings.limit", 20)
	v.SetDefault("stages.baseline.timeout_secs", 30)
	v.SetDefault("stages.baseline.retries", 2)
	v.SetDefault("stages.baseline.delay_ms", 1000)
	v.SetDefault("stages.market.timeout_secs", 45)
	v.SetDefault("stages.market.retries", 2)
	v.SetDefault("stages.market.delay_ms", 1000)
	v.SetDefault("stages.internal.timeout_secs", 15)
	v.SetDefault("stages.internal.retries", 1)
	v.SetDefault("stages.internal.delay_ms", 1000)
	v.SetDefault("stages.synthesis.timeout_secs", 60)
	v.SetDefault("stages.synthesis.retries", 2)
	v.SetDefault("stages.synthesis.delay_ms", 1000)
	v.SetDefault("stages.persist.timeout_secs", 15)
	v.SetDefault("stages.persist.retries", 1)
	v.SetDefault("stages.persist.delay_ms", 1000)
	v.SetDefault("stages.feedback.timeout_secs", 10)
	v.SetDefault("stages.feedback.retries", 0)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.item_delay_ms", 1000)
	v.SetDefault("batch.stage_pacing_ms", 300)
	v.SetDefault("batch.feedback_limit", 30)
	v.SetDefault("nats.subject", "valuation.progress")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "valuate"
// (live services), "offline", "serve", "serve-offline" or "store".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	online := false
	switch mode {
	case "valuate", "serve":
		online = true
	case "offline", "serve-offline", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	require(c.Store.DatabaseURL != "", "store.database_url is required")

	if online {
		require(c.Anthropic.Key != "", "anthropic.key is required")
		require(c.Pricing.Key != "", "pricing.key is required")
		require(c.Listings.Key != "", "listings.key is required")
	}
	if strings.HasPrefix(mode, "serve") {
		require(c.Server.Port > 0, "server.port must be > 0")
	}
	if mode != "store" {
		require(c.Batch.Workers >= 1 && c.Batch.Workers <= maxWorkers,
			fmt.Sprintf("batch.workers must be between 1 and %d", maxWorkers))
		require(c.Batch.ItemDelayMs >= 0, "batch.item_delay_ms must be >= 0")
		require(c.Batch.StagePacingMs >= 0, "batch.stage_pacing_ms must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
