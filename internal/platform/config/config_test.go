package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("RUN_MIGRATIONS", "not-a-bool")

	cfg := Load()
	assert.Equal(t, "carepay.db", cfg.DatabasePath)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, int64(1048576), cfg.MaxBodyBytes)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 72*time.Hour, cfg.PendingStaleAfter)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ADDR", "0.0.0.0:9090")
	t.Setenv("PENDING_SWEEP_INTERVAL", "1m")
	t.Setenv("SHUTDOWN_TIMEOUT", "garbage")
	t.Setenv("LOG_FORMAT", "text")

	cfg := Load()
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.PendingSweepInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())

	cfg.LogFormat = "xml"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	cfg := Load()
	cfg.Environment = "production"
	cfg.JWTSecret = ""
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = "s3cret"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsSmallBodyLimit(t *testing.T) {
	cfg := Load()
	cfg.MaxBodyBytes = 10
	require.Error(t, cfg.Validate())
}
