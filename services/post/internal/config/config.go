package config

import (
	"context"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/services/post/internal/models"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string

	RedisURL     string
	CacheTimeout time.Duration

	KafkaBrokers    []string
	TopicPrefix     string
	PublishTimeout  time.Duration
	EnsureTopics    bool
	OutboxInterval  time.Duration
	OutboxMinAge    time.Duration
	OutboxRetention time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		ListenAddr:  config.EnvDefault("POST_ADDR", ":3002"),
		DatabaseURL: config.MustNonEmpty(os.Getenv("DATABASE_URL"), "DATABASE_URL"),

		RedisURL:     config.MustNonEmpty(os.Getenv("REDIS_URL"), "REDIS_URL"),
		CacheTimeout: config.EnvDurationDefault("CACHE_TIMEOUT", 250*time.Millisecond),

		KafkaBrokers:    config.CSV(config.MustNonEmpty(os.Getenv("KAFKA_BROKERS"), "KAFKA_BROKERS")),
		TopicPrefix:     config.EnvDefault("KAFKA_TOPIC_PREFIX", ""),
		PublishTimeout:  config.EnvDurationDefault("PUBLISH_TIMEOUT", 5*time.Second),
		EnsureTopics:    config.EnvBoolDefault("KAFKA_ENSURE_TOPICS", false),
		OutboxInterval:  config.EnvDurationDefault("OUTBOX_INTERVAL", 5*time.Second),
		OutboxMinAge:    config.EnvDurationDefault("OUTBOX_MIN_AGE", 5*time.Second),
		OutboxRetention: config.EnvDurationDefault("OUTBOX_RETENTION", 24*time.Hour),

		LogLevel: config.EnvDefault("LOG_LEVEL", "info"),
	}
}

func InitDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	return db.Open(ctx, cfg.DatabaseURL, &models.Post{}, &models.OutboxEvent{})
}
