package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage
	DBPath string

	// Section registry override; empty uses the built-in definitions.
	SectionsFile string

	// Request limits
	MaxBodyBytes int64

	// Editing sessions
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	// Save throttling per report
	SaveRatePerSec float64
	SaveBurst      int

	// Latency stats window
	StatsWindow time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8095"),

		APIKey: os.Getenv("BRSR_API_KEY"),

		DBPath: envOr("DB_PATH", "brsr.db"),

		SectionsFile: os.Getenv("SECTIONS_FILE"),

		MaxBodyBytes: envInt64("MAX_BODY_BYTES", 5<<20),

		SessionTTL:             envDuration("SESSION_TTL", 2*time.Hour),
		SessionCleanupInterval: envDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),

		SaveRatePerSec: envFloat("SAVE_RATE_PER_SEC", 5),
		SaveBurst:      envInt("SAVE_BURST", 10),

		StatsWindow: envDuration("STATS_WINDOW", time.Hour),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.SessionCleanupInterval <= 0 {
		cfg.SessionCleanupInterval = 5 * time.Minute
	}
	if cfg.SaveRatePerSec <= 0 {
		cfg.SaveRatePerSec = 5
	}
	if cfg.SaveBurst <= 0 {
		cfg.SaveBurst = 10
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("BRSR_API_KEY is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
