package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.SaveDebounce)
	assert.Equal(t, 15*time.Minute, cfg.RoomIdleTTL)
	assert.False(t, cfg.Dev)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("QUILL_ADDR", ":9999")
	t.Setenv("QUILL_DB_PATH", "/tmp/test.db")
	t.Setenv("QUILL_SAVE_DEBOUNCE", "500ms")
	t.Setenv("QUILL_ROOM_IDLE_TTL", "1h")
	t.Setenv("QUILL_LOG_LEVEL", "debug")
	t.Setenv("QUILL_DEV", "1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, 500*time.Millisecond, cfg.SaveDebounce)
	assert.Equal(t, time.Hour, cfg.RoomIdleTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Dev)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("QUILL_SAVE_DEBOUNCE", "soon")

	_, err := FromEnv()
	assert.Error(t, err)
}
