package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Raster      RasterConfig      `yaml:"raster" mapstructure:"raster"`
	DataCommons DataCommonsConfig `yaml:"datacommons" mapstructure:"datacommons"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Signals     SignalsConfig     `yaml:"signals" mapstructure:"signals"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the store catalog backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
}

// RasterConfig configures the raster analytics backend.
type RasterConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Project     string  `yaml:"project" mapstructure:"project"`
	Key         string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// RetryAttempts counts the first try. 1 makes a single attempt.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// DataCommonsConfig holds knowledge-graph API settings.
type DataCommonsConfig struct {
	Key         string   `yaml:"key" mapstructure:"key"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	Variables   []string `yaml:"variables" mapstructure:"variables"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	// RetryAttempts counts the first try. 1 makes a single attempt.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// AnthropicConfig holds settings for the stocking-action writer.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SignalsConfig configures classification.
type SignalsConfig struct {
	// ThresholdsFile optionally points at a versioned YAML thresholds profile.
	ThresholdsFile string `yaml:"thresholds_file" mapstructure:"thresholds_file"`
	InlineActions  bool   `yaml:"inline_actions" mapstructure:"inline_actions"`
}

// BatchConfig configures catalog-wide analysis.
type BatchConfig struct {
	MaxConcurrentStores int `yaml:"max_concurrent_stores" mapstructure:"max_concurrent_stores"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// StaticDir holds a built frontend served on unmatched GET paths when it
	// exists.
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GREENGROWTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names used by existing deployments.
	_ = v.BindEnv("raster.project", "GREENGROWTH_RASTER_PROJECT", "GCP_PROJECT")
	_ = v.BindEnv("datacommons.key", "GREENGROWTH_DATACOMMONS_KEY", "DATA_COMMONS_API_KEY")

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "file:stores.db")
	v.SetDefault("store.csv_path", "Homedepot_Locations.csv")
	v.SetDefault("raster.base_url", "http://localhost:8090")
	v.SetDefault("raster.timeout_secs", 120)
	v.SetDefault("raster.rate_limit", 10)
	v.SetDefault("raster.retry_attempts", 1)
	v.SetDefault("datacommons.base_url", "https://api.datacommons.org")
	v.SetDefault("datacommons.variables", []string{"Count_Person", "Median_Income_Person", "UnemploymentRate_Person"})
	v.SetDefault("datacommons.timeout_secs", 15)
	v.SetDefault("datacommons.rate_limit", 5)
	v.SetDefault("datacommons.retry_attempts", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 64)
	v.SetDefault("signals.inline_actions", false)
	v.SetDefault("batch.max_concurrent_stores", 4)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings required by a command mode: "analyze",
// "serve" or "stores".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "analyze":
		if c.Raster.BaseURL == "" {
			problems = append(problems, "raster.base_url is required")
		}
		if c.Batch.MaxConcurrentStores < 1 || c.Batch.MaxConcurrentStores > 32 {
			problems = append(problems, "batch.max_concurrent_stores must be between 1 and 32")
		}
	case "serve":
		if c.Raster.BaseURL == "" {
			problems = append(problems, "raster.base_url is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "stores":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "stores" {
		if c.Raster.RateLimit <= 0 {
			problems = append(problems, "raster.rate_limit must be > 0")
		}
		if c.DataCommons.RateLimit <= 0 {
			problems = append(problems, "datacommons.rate_limit must be > 0")
		}
		if c.Raster.RetryAttempts < 1 || c.DataCommons.RetryAttempts < 1 {
			problems = append(problems, "retry_attempts must be >= 1")
		}
	}

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
