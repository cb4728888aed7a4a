package config

import (
	"context"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/services/media/internal/models"
	"github.com/Skotchmaster/social_platform/services/media/internal/storage"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers   []string
	TopicPrefix    string
	ConsumerGroup  string
	PublishTimeout time.Duration
	MaxAttempts    int
	LedgerTTL      time.Duration

	S3             storage.Config
	MaxUploadBytes int64
	DeleteWorkers  int

	LogLevel string
}

func Load() *Config {
	return &Config{
		ListenAddr:  config.EnvDefault("MEDIA_ADDR", ":3003"),
		DatabaseURL: config.MustNonEmpty(os.Getenv("DATABASE_URL"), "DATABASE_URL"),
		RedisURL:    config.MustNonEmpty(os.Getenv("REDIS_URL"), "REDIS_URL"),

		KafkaBrokers:   config.CSV(config.MustNonEmpty(os.Getenv("KAFKA_BROKERS"), "KAFKA_BROKERS")),
		TopicPrefix:    config.EnvDefault("KAFKA_TOPIC_PREFIX", ""),
		ConsumerGroup:  config.EnvDefault("KAFKA_GROUP", "media-service"),
		PublishTimeout: config.EnvDurationDefault("PUBLISH_TIMEOUT", 5*time.Second),
		MaxAttempts:    config.EnvIntDefault("EVENT_MAX_ATTEMPTS", 5),
		LedgerTTL:      config.EnvDurationDefault("EVENT_LEDGER_TTL", 24*time.Hour),

		S3: storage.Config{
			Bucket:       config.MustNonEmpty(os.Getenv("S3_BUCKET"), "S3_BUCKET"),
			Region:       config.EnvDefault("S3_REGION", "us-east-1"),
			BaseEndpoint: os.Getenv("S3_BASE_ENDPOINT"),
			AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("S3_SECRET_KEY"),
			PublicURL:    os.Getenv("S3_PUBLIC_URL"),
		},
		MaxUploadBytes: int64(config.EnvIntDefault("MAX_UPLOAD_BYTES", 5<<20)),
		DeleteWorkers:  config.EnvIntDefault("MEDIA_DELETE_WORKERS", 4),

		LogLevel: config.EnvDefault("LOG_LEVEL", "info"),
	}
}

func InitDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	return db.Open(ctx, cfg.DatabaseURL, &models.Media{})
}
