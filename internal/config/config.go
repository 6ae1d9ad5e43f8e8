package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server.
type Config struct {
	Port     string
	Env      string
	RedisURL string
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present. Production requires a Redis URL so that
// queued ciphertexts survive a client disconnect across relay instances.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		RedisURL: os.Getenv("REDIS_URL"),
	}

	if cfg.Env == "production" && cfg.RedisURL == "" {
		panic("REDIS_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
