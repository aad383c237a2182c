package config

import (
	"errors"
	"testing"
	"time"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(environ("HOME=/root", "APP_PORT=1"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(environ(
		"GLS_DATA_DIR=/srv/data",
		"GLS_UPLOADS_DIR=/srv/uploads",
		"GLS_PORT=8080",
		"GLS_LOG_FORMAT=JSON",
		"GLS_RATE_LIMIT=2.5",
		"GLS_RATE_BURST=5",
		"GLS_RECONCILE_INTERVAL=15m",
		"GLS_RECONCILE_PRUNE=true",
		"GLS_RECONCILE_MIN_AGE=1h",
		"GLS_HISTORY=1",
		"GLS_MAX_UPLOAD_SIZE=2048",
		"GLS_GIT_URL=git@example.com:gallery.git",
		"GLS_PUSH=false",
	))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.DataDir != "/srv/data" || cfg.UploadsDir != "/srv/uploads" {
		t.Errorf("unexpected dirs: %s %s", cfg.DataDir, cfg.UploadsDir)
	}
	if cfg.Port != 8080 || cfg.LogFormat != LogFormatJSON {
		t.Errorf("unexpected port/format: %d %s", cfg.Port, cfg.LogFormat)
	}
	if cfg.RateLimit != 2.5 || cfg.RateBurst != 5 {
		t.Errorf("unexpected rate settings: %v %d", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.ReconcileInterval != 15*time.Minute || !cfg.ReconcilePrune || cfg.ReconcileMinAge != time.Hour {
		t.Errorf("unexpected reconcile settings: %v %v %v", cfg.ReconcileInterval, cfg.ReconcilePrune, cfg.ReconcileMinAge)
	}
	if !cfg.History || cfg.MaxUploadSize != 2048 {
		t.Errorf("unexpected history/upload settings: %v %d", cfg.History, cfg.MaxUploadSize)
	}
	if cfg.Push == nil || *cfg.Push {
		t.Errorf("expected push explicitly disabled, got %v", cfg.Push)
	}

	remote := cfg.Remote()
	if !remote.IsSSH() || remote.IsPushEnabled() {
		t.Errorf("unexpected remote: %+v", remote)
	}
	if remote.Branch != "main" {
		t.Errorf("expected default branch, got %q", remote.Branch)
	}
}

func TestLoadFrom_EmptyValueKeepsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(environ("GLS_PORT=", "GLS_DATA_DIR="))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Port != defaultPort || cfg.DataDir != "data" {
		t.Errorf("expected defaults, got %d %q", cfg.Port, cfg.DataDir)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"port not a number": {"GLS_PORT=http"},
		"port out of range": {"GLS_PORT=70000"},
		"bad log format":    {"GLS_LOG_FORMAT=xml"},
		"negative rate":     {"GLS_RATE_LIMIT=-1"},
		"bad interval":      {"GLS_RECONCILE_INTERVAL=soon"},
		"negative interval": {"GLS_RECONCILE_INTERVAL=-5s"},
		"negative min age":  {"GLS_RECONCILE_MIN_AGE=-1m"},
		"zero upload limit": {"GLS_MAX_UPLOAD_SIZE=0"},
		"bad boolean":       {"GLS_HISTORY=maybe"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadFrom(environ(vars...)); !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("expected invalid config, got %v", err)
			}
		})
	}
}
