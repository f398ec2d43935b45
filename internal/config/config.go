package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	JWTSecret    string

	// Engine settings.
	EngineSchedule  string        // cron expression for the batch cycle
	LookbackWindow  time.Duration // audit-event window fed to the scorer
	RunOnBoot       bool          // run one cycle immediately at startup
	NotificationURL string        // shoutrrr URL for restrict-tier alerts, empty = disabled
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:     getEnv("AEGIS_ENV", "development"),
		HTTPPort:        getEnv("AEGIS_HTTP_PORT", "8080"),
		DatabasePath:    getEnv("AEGIS_DB_PATH", filepath.Join("data", "aegis.db")),
		JWTSecret:       getEnv("AEGIS_JWT_SECRET", ""),
		EngineSchedule:  getEnv("AEGIS_ENGINE_SCHEDULE", "@every 15m"),
		RunOnBoot:       getEnvBool("AEGIS_ENGINE_RUN_ON_BOOT", true),
		NotificationURL: getEnv("AEGIS_NOTIFY_URL", ""),
	}

	hours, err := strconv.Atoi(getEnv("AEGIS_LOOKBACK_HOURS", "24"))
	if err != nil || hours <= 0 {
		return Config{}, fmt.Errorf("invalid AEGIS_LOOKBACK_HOURS: %q", getEnv("AEGIS_LOOKBACK_HOURS", "24"))
	}
	cfg.LookbackWindow = time.Duration(hours) * time.Hour

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
