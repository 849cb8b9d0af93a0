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
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Stream    StreamConfig    `yaml:"stream" mapstructure:"stream"`
	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the PIM backend client.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Token       string `yaml:"token" mapstructure:"token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// StreamConfig configures the event-stream subscription.
type StreamConfig struct {
	URL                string `yaml:"url" mapstructure:"url"`
	MaxAttempts        int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs int    `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MaxBackoffSecs     int    `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// ConsensusConfig configures the voting engine.
type ConsensusConfig struct {
	MinVotes          int     `yaml:"min_votes" mapstructure:"min_votes"`
	ConflictThreshold float64 `yaml:"conflict_threshold" mapstructure:"conflict_threshold"`
}

// QualityConfig configures quality scoring and promotion gates.
type QualityConfig struct {
	Weights WeightsConfig  `yaml:"weights" mapstructure:"weights"`
	Silver  TierGateConfig `yaml:"silver" mapstructure:"silver"`
	Golden  TierGateConfig `yaml:"golden" mapstructure:"golden"`
}

// WeightsConfig holds the quality sub-score aggregation weights.
type WeightsConfig struct {
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Accuracy     float64 `yaml:"accuracy" mapstructure:"accuracy"`
	Consistency  float64 `yaml:"consistency" mapstructure:"consistency"`
	SourceWeight float64 `yaml:"source_weight" mapstructure:"source_weight"`
}

// TierGateConfig holds one promotion tier's requirements.
type TierGateConfig struct {
	MinScore       float64  `yaml:"min_score" mapstructure:"min_score"`
	MinSources     int      `yaml:"min_sources" mapstructure:"min_sources"`
	RequiredFields []string `yaml:"required_fields" mapstructure:"required_fields"`
	MinSpecs       int      `yaml:"min_specs" mapstructure:"min_specs"`
}

// BatchConfig configures batch confidence updates.
type BatchConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("GOLDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "golden.db")
	v.SetDefault("stream.url", "ws://localhost:3000/api/stream")
	v.SetDefault("stream.max_attempts", 10)
	v.SetDefault("stream.initial_backoff_secs", 1)
	v.SetDefault("stream.max_backoff_secs", 30)
	v.SetDefault("consensus.min_votes", 1)
	v.SetDefault("consensus.conflict_threshold", 0.1)
	v.SetDefault("quality.weights.completeness", 0.3)
	v.SetDefault("quality.weights.accuracy", 0.3)
	v.SetDefault("quality.weights.consistency", 0.2)
	v.SetDefault("quality.weights.source_weight", 0.2)
	v.SetDefault("quality.silver.min_score", 0.6)
	v.SetDefault("quality.silver.min_sources", 2)
	v.SetDefault("quality.silver.required_fields", []string{"brand", "category"})
	v.SetDefault("quality.golden.min_score", 0.85)
	v.SetDefault("quality.golden.min_sources", 3)
	v.SetDefault("quality.golden.required_fields", []string{"gtin", "brand", "mpn", "category"})
	v.SetDefault("quality.golden.min_specs", 5)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.rate_per_second", 10)
	v.SetDefault("server.port", 8080)
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
