package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, 20, cfg.Chat.ContextWindow)
	assert.Equal(t, 2*time.Hour, cfg.Inactivity.IdleThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Inactivity.ScanInterval)
	assert.Equal(t, 3, cfg.Notification.MaxRetries)
	assert.Equal(t, []string{"amqp", "log"}, cfg.Push.Priority)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("IDLE_THRESHOLD", "45m")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("AI_PROVIDER_PRIORITY", " openai , backup ,")
	t.Setenv("LOG_DEVELOPMENT", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Inactivity.IdleThreshold)
	assert.Equal(t, 5, cfg.Notification.MaxRetries)
	assert.Equal(t, []string{"openai", "backup"}, cfg.AI.Priority)
	assert.True(t, cfg.Log.Development)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CONTEXT_WINDOW", "many")
	t.Setenv("AI_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Chat.ContextWindow)
	assert.Equal(t, 10*time.Second, cfg.AI.Timeout)
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "cassandra")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER")
}

func TestValidateRejectsBadRetryWindow(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("RETRY_BASE_DELAY", "2h")
	t.Setenv("RETRY_MAX_DELAY", "1h")

	_, err := Load()
	require.Error(t, err)
}
