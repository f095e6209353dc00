package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("defaults", func(t *testing.T) {
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, 8, cfg.Engine.CodeLength)
		assert.Equal(t, 3, cfg.Engine.VerifyCodeLength)
		assert.Equal(t, time.Minute, cfg.Engine.SweepInterval)
		assert.Equal(t, 15*time.Second, cfg.Stream.Heartbeat)
		assert.Empty(t, cfg.MySQL.Host)
		assert.Empty(t, cfg.Redis.Addr)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("HTTP_ADDR", ":9090")
		t.Setenv("VERIFY_CODE_LENGTH", "4")
		t.Setenv("STREAM_HEARTBEAT", "5s")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.HTTPAddr)
		assert.Equal(t, 4, cfg.Engine.VerifyCodeLength)
		assert.Equal(t, 5*time.Second, cfg.Stream.Heartbeat)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("CODE_LENGTH", "2")
		_, err := New()
		assert.Error(t, err)
	})
}
