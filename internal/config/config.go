package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// Redis (event stream and expiration index)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event bus
	EventStream       string
	ConsumerGroup     string
	ConsumerCount     int
	ConsumerBatchSize int
	ConsumerBlock     time.Duration
	ConsumerClaimIdle time.Duration

	// Expiration index and worker
	ExpirationIndexKey    string
	ExpirationInterval    time.Duration
	ExpirationBatchSize   int
	ExpirationPublishRate int

	// Reminder scheduler
	SchedulerInterval  time.Duration
	SchedulerLease     time.Duration
	SchedulerBatchSize int

	// Outbox relay for expiration events
	OutboxInterval  time.Duration
	OutboxGrace     time.Duration
	OutboxRetention time.Duration

	// Optional webhook push of created notifications
	NotifyWebhookURL     string
	NotifyWebhookTimeout time.Duration
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL:    dbURL,
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 5)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		EventStream:       getEnv("EVENT_STREAM", "notifications.events"),
		ConsumerGroup:     getEnv("CONSUMER_GROUP", "notification-service"),
		ConsumerCount:     getInt("CONSUMER_COUNT", 1),
		ConsumerBatchSize: getInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlock:     getDuration("CONSUMER_BLOCK", 5*time.Second),
		ConsumerClaimIdle: getDuration("CONSUMER_CLAIM_IDLE", time.Minute),

		ExpirationIndexKey:    getEnv("EXPIRATION_INDEX_KEY", "item:expirations"),
		ExpirationInterval:    getDuration("EXPIRATION_INTERVAL", 5*time.Second),
		ExpirationBatchSize:   getInt("EXPIRATION_BATCH_SIZE", 500),
		ExpirationPublishRate: getInt("EXPIRATION_PUBLISH_RATE", 200),

		SchedulerInterval:  getDuration("SCHEDULER_INTERVAL", 5*time.Second),
		SchedulerLease:     getDuration("SCHEDULER_LEASE", time.Minute),
		SchedulerBatchSize: getInt("SCHEDULER_BATCH_SIZE", 100),

		OutboxInterval:  getDuration("OUTBOX_INTERVAL", 30*time.Second),
		OutboxGrace:     getDuration("OUTBOX_GRACE", time.Minute),
		OutboxRetention: getDuration("OUTBOX_RETENTION", 7*24*time.Hour),

		NotifyWebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookTimeout: getDuration("NOTIFY_WEBHOOK_TIMEOUT", 10*time.Second),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
