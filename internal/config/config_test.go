package config_test

import (
	"testing"
	"time"

	"codecollab/backend/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := config.FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, config.DefaultExecTimeout, cfg.ExecTimeout)
	assert.Equal(t, config.DefaultMaxConcurrent, cfg.MaxConcurrentExecutions)
	assert.Equal(t, config.DefaultPairSessionIdleTTL, cfg.PairSessionIdleTTL)
	assert.False(t, cfg.RateLimitEnabled())
	assert.True(t, cfg.BroadcastSignaling)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("exec_timeout", "3s")
	v.Set("public_base_url", "https://collab.example.com/")
	v.Set("redis_addr", "localhost:6379")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.ExecTimeout)
	assert.Equal(t, "https://collab.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.RateLimitEnabled())
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown driver", "database_driver", "mysql"},
		{"zero timeout", "exec_timeout", "0s"},
		{"zero concurrency", "max_concurrent_executions", 0},
		{"zero output", "max_output_bytes", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := config.FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestFromViper_PostgresNeedsDSN(t *testing.T) {
	v := viper.New()
	v.Set("database_driver", "postgres")
	v.Set("database_dsn", "")

	_, err := config.FromViper(v)
	assert.Error(t, err)
}
