// Package config loads and validates all runtime configuration for the
// gateway.
//
// Configuration is read from environment variables (preferred for
// containers), an optional .env file, or a config.yaml in the working
// directory. Environment variables take precedence over the YAML file.
//
// The API key is deliberately NOT required at startup: its absence is
// reported per request as a missing-credential error before any network call,
// so the static quiz app keeps working on template questions.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8787.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn,
	// error. Default: info.
	LogLevel string

	// Gemini holds the upstream credentials and endpoint override.
	Gemini GeminiConfig

	// PrimaryModel is the fast, cheap model dispatched immediately.
	PrimaryModel string

	// FallbackModel is the slower, more capable model started after
	// Race.FallbackDelay.
	FallbackModel string

	// Race controls the dual-model dispatch timings.
	Race RaceConfig

	// CORSOrigins is the list of allowed CORS origins. ["*"] allows any
	// origin (default).
	CORSOrigins []string
}

// GeminiConfig holds upstream API configuration.
type GeminiConfig struct {
	// APIKey is the upstream API key. May be empty; requests then fail with
	// a missing-credential error before any network call.
	APIKey string

	// BaseURL overrides the default API endpoint. Useful for the bundled
	// mock upstream and for tests.
	BaseURL string
}

// RaceConfig controls the dual-model dispatcher.
type RaceConfig struct {
	// FallbackDelay is the head start granted to the primary model before
	// the fallback call is fired. Default: 3500ms.
	FallbackDelay time.Duration

	// AttemptTimeout is the hard per-call deadline; the in-flight connection
	// is cancelled when it fires. Default: 8s.
	AttemptTimeout time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// .env and config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8787)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PRIMARY_MODEL", "gemini-2.0-flash")
	v.SetDefault("FALLBACK_MODEL", "gemini-2.5-pro")
	v.SetDefault("FALLBACK_DELAY", "3500ms")
	v.SetDefault("ATTEMPT_TIMEOUT", "8s")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Gemini: GeminiConfig{
			APIKey:  v.GetString("GEMINI_API_KEY"),
			BaseURL: v.GetString("GEMINI_BASE_URL"),
		},

		PrimaryModel:  v.GetString("PRIMARY_MODEL"),
		FallbackModel: v.GetString("FALLBACK_MODEL"),

		Race: RaceConfig{
			FallbackDelay:  v.GetDuration("FALLBACK_DELAY"),
			AttemptTimeout: v.GetDuration("ATTEMPT_TIMEOUT"),
		},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// defaults.
func (c *Config) validate() error {
	if c.PrimaryModel == "" {
		return fmt.Errorf("config: PRIMARY_MODEL must not be empty")
	}
	if c.FallbackModel == "" {
		return fmt.Errorf("config: FALLBACK_MODEL must not be empty")
	}
	if c.PrimaryModel == c.FallbackModel {
		return fmt.Errorf("config: PRIMARY_MODEL and FALLBACK_MODEL must differ, both are %q", c.PrimaryModel)
	}

	if c.Race.FallbackDelay < 0 {
		return fmt.Errorf("config: FALLBACK_DELAY must not be negative")
	}
	if c.Race.AttemptTimeout <= 0 {
		return fmt.Errorf("config: ATTEMPT_TIMEOUT must be a positive duration")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	return nil
}

// HasAPIKey reports whether an upstream key is configured. Whitespace-only
// values count as missing.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.Gemini.APIKey) != ""
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
