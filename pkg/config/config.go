// Package config loads service configuration from 12-factor environment
// variables plus optional per-chain YAML profiles.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects the serving store: a postgres:// URL or a
	// SQLite file path.
	DatabaseURL string
	// RedisAddr enables the Redis dedup ledger when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GridPrecision      float64
	DedupWindow        time.Duration
	CheckpointInterval time.Duration

	JWTSecret      string
	APITokenBcrypt string

	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchiveDir      string

	OTLPEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int

	ProfilesDir string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "anchorage.db"
	}

	archiveDir := os.Getenv("ARCHIVE_DIR")
	if archiveDir == "" {
		archiveDir = "archive"
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		GridPrecision:      envFloat("GRID_PRECISION", 0.001),
		DedupWindow:        time.Duration(envInt("DEDUP_WINDOW_SECS", 3600)) * time.Second,
		CheckpointInterval: time.Duration(envInt("CHECKPOINT_INTERVAL_SECS", 300)) * time.Second,

		JWTSecret:      os.Getenv("JWT_SECRET"),
		APITokenBcrypt: os.Getenv("API_TOKEN_BCRYPT"),

		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
		ArchiveRegion:   os.Getenv("ARCHIVE_REGION"),
		ArchiveEndpoint: os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveDir:      archiveDir,

		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),

		ProfilesDir: os.Getenv("PROFILES_DIR"),
	}
}

// IsPostgres reports whether the database URL selects PostgreSQL.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}
