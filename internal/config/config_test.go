package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "staging")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.False(t, cfg.IsDevelopment())
}

func TestProductionRequiresRedis(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "")

	assert.Panics(t, func() { Load() })
}

func TestProductionWithRedis(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	assert.NotPanics(t, func() { Load() })
}
