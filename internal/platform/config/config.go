// Package config centralizes the environment variables consumed by the
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates every parameter the API and the finalizer need.
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

	CounterKeyPrefix string

	AutoMigrate bool

	FinalizerInterval       time.Duration
	FinalizerMetricsAddress string
}

func Load() (Config, error) {
	// Defaults favor local runs; variables override them in Docker/K8s.
	cfg := Config{
		HTTPAddress:             getEnv("HTTP_ADDRESS", ":8080"),
		PostgresHost:            getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:            getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:            getEnv("POSTGRES_USER", "tabulator"),
		PostgresPassword:        getEnv("POSTGRES_PASSWORD", "tabulator"),
		PostgresDB:              getEnv("POSTGRES_DB", "tabulator_polls"),
		PostgresSSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		CounterKeyPrefix:        getEnv("REDIS_COUNTER_PREFIX", "live"),
		AutoMigrate:             getEnvAsBool("DB_AUTO_MIGRATE", true),
		FinalizerMetricsAddress: getEnv("FINALIZER_METRICS_ADDRESS", ":9090"),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = dbInt

	intervalStr := getEnv("FINALIZER_INTERVAL", "30s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid FINALIZER_INTERVAL: %w", err)
	}
	cfg.FinalizerInterval = interval

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	// DSN format stays compatible with GORM and the migration tooling.
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
