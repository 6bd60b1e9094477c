package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docket-systems/custodia/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RATE_LIMIT_RPM", "")
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("JWT_SECRET", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "custodia.db") // Default is local
	assert.Equal(t, 600, cfg.RateLimitRPM)
	assert.Equal(t, 60, cfg.RateBurst)
	assert.Empty(t, cfg.JWTSecret)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/custodia")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_LIMIT_RPM", "120")
	t.Setenv("RATE_LIMIT_BURST", "12")
	t.Setenv("OTLP_ENDPOINT", "otel-collector:4317")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/custodia", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 120, cfg.RateLimitRPM)
	assert.Equal(t, 12, cfg.RateBurst)
	assert.Equal(t, "otel-collector:4317", cfg.OTLPEndpoint)
}

// TestLoad_BadIntFallsBack verifies malformed numeric envs fall back to
// defaults rather than failing boot.
func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPM", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-5")

	cfg := config.Load()

	assert.Equal(t, 600, cfg.RateLimitRPM)
	assert.Equal(t, 60, cfg.RateBurst)
}
