// Package config centralizes the environment variables used by the binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config aggregates every parameter needed by the API and the reconciler.
type Config struct {
	HTTPAddress string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSAllowedOrigins []string

	JWTSecret    string
	JWTTTLHours  int
	AuthRequired bool

	RateLimitEnabled       bool
	RateLimitMaxActions    int
	RateLimitWindowSeconds int
	RateLimitKeyPrefix     string

	AutoMigrate bool

	ReconcileIntervalSeconds int
	ReconcilerMetricsAddress string
}

func Load() (Config, error) {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddress:              getEnv("HTTP_ADDRESS", ":8080"),
		PostgresHost:             getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:             getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:             getEnv("POSTGRES_USER", "pollboard"),
		PostgresPassword:         getEnv("POSTGRES_PASSWORD", "pollboard"),
		PostgresDB:               getEnv("POSTGRES_DB", "pollboard"),
		PostgresSSLMode:          getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		JWTSecret:                getEnv("JWT_SECRET", "dev-only-secret"),
		JWTTTLHours:              getEnvAsInt("JWT_TTL_HOURS", 24),
		AuthRequired:             getEnvAsBool("AUTH_REQUIRED", false),
		RateLimitEnabled:         getEnvAsBool("VOTE_RATE_LIMIT_ENABLED", true),
		RateLimitMaxActions:      getEnvAsInt("VOTE_RATE_LIMIT_MAX", 30),
		RateLimitWindowSeconds:   getEnvAsInt("VOTE_RATE_LIMIT_WINDOW", 60),
		RateLimitKeyPrefix:       getEnv("VOTE_RATE_LIMIT_PREFIX", "ratelimit"),
		AutoMigrate:              getEnvAsBool("DB_AUTO_MIGRATE", true),
		ReconcileIntervalSeconds: getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 300),
		ReconcilerMetricsAddress: getEnv("RECONCILER_METRICS_ADDRESS", ":9090"),
	}

	origins := getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = dbInt

	if cfg.AuthRequired && cfg.JWTSecret == "dev-only-secret" {
		return Config{}, fmt.Errorf("config: AUTH_REQUIRED=true needs an explicit JWT_SECRET")
	}

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}
