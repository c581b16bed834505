// Package config loads service configuration from the environment, with a
// .env file picked up for local development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store backend selectors.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds everything outside the database connection settings, which
// live with the database package.
type Config struct {
	Port      string
	Store     string
	JWTSecret string
	TokenTTL  time.Duration
	LogLevel  string
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		Store:     getEnv("STORE", StorePostgres),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:  getDuration("TOKEN_TTL", 24*time.Hour),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
