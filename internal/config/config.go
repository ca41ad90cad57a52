package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tunegate/resolver/internal/match"
	"github.com/tunegate/resolver/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig                `yaml:"store" mapstructure:"store"`
	Spotify     SpotifyConfig              `yaml:"spotify" mapstructure:"spotify"`
	Deezer      DeezerConfig               `yaml:"deezer" mapstructure:"deezer"`
	MusicBrainz MusicBrainzConfig          `yaml:"musicbrainz" mapstructure:"musicbrainz"`
	Authorities map[string]AuthorityConfig `yaml:"authorities" mapstructure:"authorities"`
	Breaker     BreakerConfig              `yaml:"breaker" mapstructure:"breaker"`
	Retry       RetryConfig                `yaml:"retry" mapstructure:"retry"`
	Match       match.Config               `yaml:"match" mapstructure:"match"`
	Resolve     ResolveConfig              `yaml:"resolve" mapstructure:"resolve"`
	Server      ServerConfig               `yaml:"server" mapstructure:"server"`
	Log         LogConfig                  `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// SpotifyConfig holds Spotify API credentials.
type SpotifyConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DeezerConfig holds Deezer API settings. The public API needs no key.
type DeezerConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MusicBrainzConfig holds MusicBrainz API settings. MusicBrainz requires
// an identifying User-Agent and caps anonymous clients at 1 req/s.
type MusicBrainzConfig struct {
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// AuthorityConfig holds per-authority resolution policy.
type AuthorityConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Priority  int     `yaml:"priority" mapstructure:"priority"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// BreakerConfig configures the per-authority circuit breakers.
type BreakerConfig struct {
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	WindowSecs        int     `yaml:"window_secs" mapstructure:"window_secs"`
	ResetSecs         int     `yaml:"reset_secs" mapstructure:"reset_secs"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	MaxResetSecs      int     `yaml:"max_reset_secs" mapstructure:"max_reset_secs"`
}

// RetryConfig configures transient-error retries on authority calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ResolveConfig configures orchestrator behavior.
type ResolveConfig struct {
	SearchLimit      int  `yaml:"search_limit" mapstructure:"search_limit"`
	Enrichment       bool `yaml:"enrichment" mapstructure:"enrichment"`
	BatchConcurrency int  `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "resolver.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	// Bare hosts: the clients append their own path prefixes (/v1, /ws/2).
	v.SetDefault("spotify.base_url", "https://api.spotify.com")
	v.SetDefault("deezer.base_url", "https://api.deezer.com")
	v.SetDefault("musicbrainz.base_url", "https://musicbrainz.org")
	v.SetDefault("musicbrainz.user_agent", "tunegate-resolver/1.0 (ops@tunegate.io)")
	v.SetDefault("authorities.spotify.enabled", true)
	v.SetDefault("authorities.spotify.priority", 1)
	v.SetDefault("authorities.spotify.rate_limit", 10.0)
	v.SetDefault("authorities.spotify.burst", 5)
	v.SetDefault("authorities.deezer.enabled", true)
	v.SetDefault("authorities.deezer.priority", 2)
	v.SetDefault("authorities.deezer.rate_limit", 10.0)
	v.SetDefault("authorities.deezer.burst", 5)
	v.SetDefault("authorities.musicbrainz.enabled", true)
	v.SetDefault("authorities.musicbrainz.priority", 3)
	v.SetDefault("authorities.musicbrainz.rate_limit", 1.0)
	v.SetDefault("authorities.musicbrainz.burst", 1)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.window_secs", 60)
	v.SetDefault("breaker.reset_secs", 30)
	v.SetDefault("breaker.backoff_multiplier", 2.0)
	v.SetDefault("breaker.max_reset_secs", 300)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("match.min_confidence", 0.65)
	v.SetDefault("match.tier_weights.primary", 1.0)
	v.SetDefault("match.tier_weights.credited", 0.85)
	v.SetDefault("match.tier_weights.other", 0.6)
	v.SetDefault("match.max_suggestions", 3)
	v.SetDefault("resolve.search_limit", 5)
	v.SetDefault("resolve.enrichment", true)
	v.SetDefault("resolve.batch_concurrency", 4)

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

// BreakerPolicy converts the config into a breaker policy. Transient
// classification is fixed: malformed payloads never trip a breaker.
func (c BreakerConfig) BreakerPolicy() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold:       c.FailureThreshold,
		FailureWindow:          time.Duration(c.WindowSecs) * time.Second,
		ResetTimeout:           time.Duration(c.ResetSecs) * time.Second,
		ResetBackoffMultiplier: c.BackoffMultiplier,
		MaxResetTimeout:        time.Duration(c.MaxResetSecs) * time.Second,
		ShouldTrip:             resilience.IsTransient,
	}
}

// RetryPolicy converts the config into a retry policy.
func (c RetryConfig) RetryPolicy() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
	}
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
