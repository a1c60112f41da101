package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Coverage CoverageConfig `yaml:"coverage" mapstructure:"coverage"`
	Detect   DetectConfig   `yaml:"detect" mapstructure:"detect"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// RetryAttempts bounds attempts on transient store errors.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// BatchConfig bounds reconciliation fan-out.
type BatchConfig struct {
	MaxConcurrentProfiles  int `yaml:"max_concurrent_profiles" mapstructure:"max_concurrent_profiles"`
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// MatchConfig holds the transaction matching tolerances.
type MatchConfig struct {
	DateToleranceDays    int     `yaml:"date_tolerance_days" mapstructure:"date_tolerance_days"`
	AmountTolerancePct   float64 `yaml:"amount_tolerance_pct" mapstructure:"amount_tolerance_pct"`
	AmountToleranceCents int64   `yaml:"amount_tolerance_cents" mapstructure:"amount_tolerance_cents"`
	ProviderSimilarity   float64 `yaml:"provider_similarity" mapstructure:"provider_similarity"`
}

// CoverageConfig configures cell state derivation.
type CoverageConfig struct {
	SettlementToleranceCents int64 `yaml:"settlement_tolerance_cents" mapstructure:"settlement_tolerance_cents"`
}

// DetectConfig holds issue rule thresholds.
type DetectConfig struct {
	MathToleranceCents    int64   `yaml:"math_tolerance_cents" mapstructure:"math_tolerance_cents"`
	CoverageGapPct        float64 `yaml:"coverage_gap_pct" mapstructure:"coverage_gap_pct"`
	HighMatchConfidence   float64 `yaml:"high_match_confidence" mapstructure:"high_match_confidence"`
	MediumMatchConfidence float64 `yaml:"medium_match_confidence" mapstructure:"medium_match_confidence"`
	HighMarginMultiple    float64 `yaml:"high_margin_multiple" mapstructure:"high_margin_multiple"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
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
	v.SetEnvPrefix("CLAIMRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claimrecon.db")
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("batch.max_concurrent_profiles", 4)
	v.SetDefault("batch.max_concurrent_documents", 8)
	v.SetDefault("match.date_tolerance_days", 3)
	v.SetDefault("match.amount_tolerance_pct", 0.01)
	v.SetDefault("match.amount_tolerance_cents", 500)
	v.SetDefault("match.provider_similarity", 0.8)
	v.SetDefault("coverage.settlement_tolerance_cents", 100)
	v.SetDefault("detect.math_tolerance_cents", 1)
	v.SetDefault("detect.coverage_gap_pct", 0.10)
	v.SetDefault("detect.high_match_confidence", 0.9)
	v.SetDefault("detect.medium_match_confidence", 0.7)
	v.SetDefault("detect.high_margin_multiple", 2.0)

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

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "reconcile", "runs":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimitRPS <= 0 {
			errs = append(errs, "server.rate_limit_rps must be > 0")
		}
		if c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server.rate_limit_burst must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.RetryAttempts < 1 {
		errs = append(errs, "store.retry_attempts must be >= 1")
	}

	if c.Batch.MaxConcurrentProfiles < 1 || c.Batch.MaxConcurrentProfiles > 64 {
		errs = append(errs, "batch.max_concurrent_profiles must be between 1 and 64")
	}
	if c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 256 {
		errs = append(errs, "batch.max_concurrent_documents must be between 1 and 256")
	}

	if c.Match.DateToleranceDays < 0 {
		errs = append(errs, "match.date_tolerance_days must be >= 0")
	}
	if c.Match.AmountTolerancePct < 0 || c.Match.AmountTolerancePct > 1 {
		errs = append(errs, "match.amount_tolerance_pct must be between 0 and 1")
	}
	if c.Match.AmountToleranceCents < 0 {
		errs = append(errs, "match.amount_tolerance_cents must be >= 0")
	}
	if c.Match.ProviderSimilarity <= 0 || c.Match.ProviderSimilarity > 1 {
		errs = append(errs, "match.provider_similarity must be in (0, 1]")
	}
	if c.Coverage.SettlementToleranceCents < 0 {
		errs = append(errs, "coverage.settlement_tolerance_cents must be >= 0")
	}
	if c.Detect.MathToleranceCents < 0 {
		errs = append(errs, "detect.math_tolerance_cents must be >= 0")
	}
	if c.Detect.CoverageGapPct <= 0 || c.Detect.CoverageGapPct > 1 {
		errs = append(errs, "detect.coverage_gap_pct must be in (0, 1]")
	}
	if c.Detect.MediumMatchConfidence > c.Detect.HighMatchConfidence {
		errs = append(errs, "detect.medium_match_confidence must not exceed detect.high_match_confidence")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
