// Package config loads the GLS_ environment configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/history"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "GLS_"

const (
	defaultPort          = 3001
	defaultRateLimit     = 20
	defaultRateBurst     = 40
	defaultMaxUploadSize = 10 << 20
	defaultMinAge        = 10 * time.Minute

	maxPort = 65535
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the application configuration.
type Config struct {
	DataDir           string        `koanf:"data_dir"`           // Catalog directory (GLS_DATA_DIR)
	UploadsDir        string        `koanf:"uploads_dir"`        // Asset root (GLS_UPLOADS_DIR)
	Port              int           `koanf:"port"`               // HTTP port (GLS_PORT)
	LogFormat         string        `koanf:"log_format"`         // text or json (GLS_LOG_FORMAT)
	RateLimit         float64       `koanf:"rate_limit"`         // Mutating requests per second, 0 disables (GLS_RATE_LIMIT)
	RateBurst         int           `koanf:"rate_burst"`         // Rate limiter burst (GLS_RATE_BURST)
	ReconcileInterval time.Duration `koanf:"reconcile_interval"` // Periodic reconciliation, 0 disables (GLS_RECONCILE_INTERVAL)
	ReconcilePrune    bool          `koanf:"reconcile_prune"`    // Delete orphaned directories (GLS_RECONCILE_PRUNE)
	ReconcileMinAge   time.Duration `koanf:"reconcile_min_age"`  // Grace period for unknown directories (GLS_RECONCILE_MIN_AGE)
	History           bool          `koanf:"history"`            // Git-version the catalog (GLS_HISTORY)
	MaxUploadSize     int64         `koanf:"max_upload_size"`    // Upload limit in bytes (GLS_MAX_UPLOAD_SIZE)

	GitURL    string `koanf:"git_url"`    // History remote (GLS_GIT_URL)
	GitPass   string `koanf:"git_pass"`   // HTTPS token (GLS_GIT_PASS)
	GitBranch string `koanf:"git_branch"` // Remote branch (GLS_GIT_BRANCH)
	GitUser   string `koanf:"git_user"`   // Commit author (GLS_GIT_USER)
	GitEmail  string `koanf:"git_email"`  // Commit email (GLS_GIT_EMAIL)
	Push      *bool  `koanf:"push"`       // Push after commits (GLS_PUSH)
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		DataDir:         "data",
		UploadsDir:      "uploads",
		Port:            defaultPort,
		LogFormat:       LogFormatText,
		RateLimit:       defaultRateLimit,
		RateBurst:       defaultRateBurst,
		MaxUploadSize:   defaultMaxUploadSize,
		ReconcileMinAge: defaultMinAge,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Environ)
}

// LoadFrom reads the configuration from the given environment source.
func LoadFrom(environ func() []string) (Config, error) {
	konfig := koanf.New(".")
	err := konfig.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// Empty values keep the default
			if value == "" {
				return "", nil
			}
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
		EnvironFunc: environ,
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := konfig.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("%w: GLS_DATA_DIR must not be empty", apperrors.ErrInvalidConfig)
	case c.UploadsDir == "":
		return fmt.Errorf("%w: GLS_UPLOADS_DIR must not be empty", apperrors.ErrInvalidConfig)
	case c.Port < 1 || c.Port > maxPort:
		return fmt.Errorf("%w: GLS_PORT %d out of range", apperrors.ErrInvalidConfig, c.Port)
	case c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON:
		return fmt.Errorf("%w: GLS_LOG_FORMAT must be text or json, got %q", apperrors.ErrInvalidConfig, c.LogFormat)
	case c.RateLimit < 0 || c.RateBurst < 0:
		return fmt.Errorf("%w: GLS_RATE_LIMIT and GLS_RATE_BURST must not be negative", apperrors.ErrInvalidConfig)
	case c.ReconcileInterval < 0:
		return fmt.Errorf("%w: GLS_RECONCILE_INTERVAL must not be negative", apperrors.ErrInvalidConfig)
	case c.ReconcileMinAge < 0:
		return fmt.Errorf("%w: GLS_RECONCILE_MIN_AGE must not be negative", apperrors.ErrInvalidConfig)
	case c.MaxUploadSize <= 0:
		return fmt.Errorf("%w: GLS_MAX_UPLOAD_SIZE must be positive", apperrors.ErrInvalidConfig)
	}
	return nil
}

// Remote returns the catalog history remote settings.
func (c *Config) Remote() *history.RemoteConfig {
	cfg := history.RemoteConfig{
		URL:      c.GitURL,
		Password: c.GitPass,
		Branch:   c.GitBranch,
		User:     c.GitUser,
		Email:    c.GitEmail,
		Push:     c.Push,
	}.WithDefaults()
	return &cfg
}
