package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	MongoURL  string
	MongoDB   string
	RedisURL  string
	NatsURL   string
	JWTSecret string

	// Presence heartbeat interval; derived status treats anything older
	// than twice this as stale.
	HeartbeatInterval time.Duration

	// Background unread-counter sweep interval. Zero disables the sweep.
	SweepInterval time.Duration

	// Message sends allowed per user per minute.
	SendRateLimit int

	// Blob store (image attachments). All empty disables uploads.
	BlobCloudName string
	BlobAPIKey    string
	BlobAPISecret string
	BlobFolder    string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		MongoURL:          os.Getenv("MONGO_URL"),
		MongoDB:           getEnv("MONGO_DB", "securechat"),
		RedisURL:          os.Getenv("REDIS_URL"),
		NatsURL:           os.Getenv("NATS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		HeartbeatInterval: getDurationEnv("PRESENCE_HEARTBEAT_SECONDS", 120),
		SweepInterval:     getDurationEnv("UNREAD_SWEEP_SECONDS", 300),
		SendRateLimit:     getIntEnv("SEND_RATE_LIMIT", 60),
		BlobCloudName:     os.Getenv("BLOB_CLOUD_NAME"),
		BlobAPIKey:        os.Getenv("BLOB_API_KEY"),
		BlobAPISecret:     os.Getenv("BLOB_API_SECRET"),
		BlobFolder:        os.Getenv("BLOB_FOLDER"),
	}

	// In production, the stores and the signing secret are mandatory.
	if cfg.Env == "production" {
		if cfg.MongoURL == "" {
			panic("MONGO_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// BlobConfigured reports whether image uploads are enabled.
func (c *Config) BlobConfigured() bool {
	return c.BlobCloudName != "" && c.BlobAPIKey != "" && c.BlobAPISecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(getIntEnv(key, defaultSeconds)) * time.Second
}
