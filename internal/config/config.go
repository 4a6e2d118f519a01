// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and exposes the protocol constants shared by the
// rest of the backend.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable of the server and the collab CLI.
type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	LogLevel      string

	// Snippet store. Driver is "sqlite" (default, in-memory) or "postgres".
	DatabaseDriver string
	DatabaseDSN    string

	// Redis backs the execution rate limiter. Empty disables limiting.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitRequests int
	RateLimitWindow   time.Duration

	ExecTimeout             time.Duration
	MaxOutputBytes          int
	MaxConcurrentExecutions int
	WorkspaceDir            string

	PairSessionIdleTTL time.Duration

	// BroadcastSignaling restores the legacy behaviour of relaying
	// offer/answer/ice-candidate frames to everyone when no targetId is set.
	BroadcastSignaling bool
}

// Load reads .env (if present) and COLLAB_* environment variables.
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		HTTPAddr:                v.GetString("http_addr"),
		PublicBaseURL:           strings.TrimRight(v.GetString("public_base_url"), "/"),
		LogLevel:                strings.ToLower(v.GetString("log_level")),
		DatabaseDriver:          strings.ToLower(v.GetString("database_driver")),
		DatabaseDSN:             v.GetString("database_dsn"),
		RedisAddr:               v.GetString("redis_addr"),
		RedisPassword:           v.GetString("redis_password"),
		RedisDB:                 v.GetInt("redis_db"),
		RateLimitRequests:       v.GetInt("rate_limit_requests"),
		RateLimitWindow:         v.GetDuration("rate_limit_window"),
		ExecTimeout:             v.GetDuration("exec_timeout"),
		MaxOutputBytes:          v.GetInt("max_output_bytes"),
		MaxConcurrentExecutions: v.GetInt("max_concurrent_executions"),
		WorkspaceDir:            v.GetString("workspace_dir"),
		PairSessionIdleTTL:      v.GetDuration("pair_session_idle_ttl"),
		BroadcastSignaling:      v.GetBool("broadcast_signaling"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == DriverPostgres && c.DatabaseDSN == "" {
		return fmt.Errorf("database dsn is required for the postgres driver")
	}
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("exec timeout must be positive, got %s", c.ExecTimeout)
	}
	if c.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("max concurrent executions must be positive, got %d", c.MaxConcurrentExecutions)
	}
	if c.MaxOutputBytes <= 0 {
		return fmt.Errorf("max output bytes must be positive, got %d", c.MaxOutputBytes)
	}
	if c.RedisAddr != "" && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requires positive requests and window")
	}
	return nil
}

// RateLimitEnabled reports whether the Redis limiter should be wired in.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rate_limit_requests", 20)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("exec_timeout", DefaultExecTimeout)
	v.SetDefault("max_output_bytes", DefaultMaxOutputBytes)
	v.SetDefault("max_concurrent_executions", DefaultMaxConcurrent)
	v.SetDefault("workspace_dir", "")
	v.SetDefault("pair_session_idle_ttl", DefaultPairSessionIdleTTL)
	v.SetDefault("broadcast_signaling", true)
}
