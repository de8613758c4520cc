package config

import (
	"fmt"
	"os"
	"time"
)

// Runtime settings for the sync hub, sourced from the environment.
type Config struct {
	Addr         string
	DBPath       string
	SaveDebounce time.Duration
	RoomIdleTTL  time.Duration
	LogLevel     string
	Dev          bool
}

func Default() Config {
	return Config{
		Addr:         ":8080",
		DBPath:       "./data/quill.db",
		SaveDebounce: 2 * time.Second,
		RoomIdleTTL:  15 * time.Minute,
		LogLevel:     "info",
	}
}

// Reads configuration from QUILL_* environment variables, falling back
// to defaults for anything unset.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.Addr = getEnvOrDefault("QUILL_ADDR", cfg.Addr)
	cfg.DBPath = getEnvOrDefault("QUILL_DB_PATH", cfg.DBPath)
	cfg.LogLevel = getEnvOrDefault("QUILL_LOG_LEVEL", cfg.LogLevel)
	cfg.Dev = os.Getenv("QUILL_DEV") == "1" || os.Getenv("QUILL_DEV") == "true"

	if v := os.Getenv("QUILL_SAVE_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUILL_SAVE_DEBOUNCE %q: %w", v, err)
		}
		cfg.SaveDebounce = d
	}

	if v := os.Getenv("QUILL_ROOM_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUILL_ROOM_IDLE_TTL %q: %w", v, err)
		}
		cfg.RoomIdleTTL = d
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
