package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", env.Env)
	assert.Equal(t, "3100", env.HTTPPort)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, time.Minute, env.SweepEnv.Interval)
	assert.Equal(t, 4, env.SweepEnv.Concurrency)
	assert.True(t, env.DispatchEnv.PolicyWatch)
	assert.Equal(t, "fieldops.assignments", env.AMQPEnv.Exchange)
	assert.Error(t, env.RequireAPIKey())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIELDOPS_API_KEY", "secret")
	t.Setenv("FIELDOPS_SWEEP_INTERVAL", "15s")
	t.Setenv("FIELDOPS_STORAGE_TYPE", "s3")
	t.Setenv("FIELDOPS_LOG_LEVEL", "warn")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.NoError(t, env.RequireAPIKey())
	assert.Equal(t, 15*time.Second, env.SweepEnv.Interval)
	assert.Equal(t, "s3", env.StorageEnv.Type)
	assert.Equal(t, slog.LevelWarn, env.SlogLevel())
}

func TestSlogLevelFallsBackToDebug(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&BaseEnv{LogLevel: "loud"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (*BaseEnv)(nil).SlogLevel())
}
