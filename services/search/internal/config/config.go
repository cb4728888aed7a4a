package config

import (
	"os"
	"time"

	"github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/services/search/internal/index"
)

type Config struct {
	ListenAddr string

	ES        index.ClientConfig
	IndexName string

	RedisURL     string
	CacheTimeout time.Duration

	KafkaBrokers   []string
	TopicPrefix    string
	ConsumerGroup  string
	PublishTimeout time.Duration
	MaxAttempts    int
	LedgerTTL      time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		ListenAddr: config.EnvDefault("SEARCH_ADDR", ":3004"),

		ES: index.ClientConfig{
			URL:      config.MustNonEmpty(os.Getenv("ES_URL"), "ES_URL"),
			Username: os.Getenv("ES_USER"),
			Password: os.Getenv("ES_PASSWORD"),
		},
		IndexName: config.EnvDefault("ES_INDEX", index.DefaultName),

		RedisURL:     config.MustNonEmpty(os.Getenv("REDIS_URL"), "REDIS_URL"),
		CacheTimeout: config.EnvDurationDefault("CACHE_TIMEOUT", 250*time.Millisecond),

		KafkaBrokers:   config.CSV(config.MustNonEmpty(os.Getenv("KAFKA_BROKERS"), "KAFKA_BROKERS")),
		TopicPrefix:    config.EnvDefault("KAFKA_TOPIC_PREFIX", ""),
		ConsumerGroup:  config.EnvDefault("KAFKA_GROUP", "search-service"),
		PublishTimeout: config.EnvDurationDefault("PUBLISH_TIMEOUT", 5*time.Second),
		MaxAttempts:    config.EnvIntDefault("EVENT_MAX_ATTEMPTS", 5),
		LedgerTTL:      config.EnvDurationDefault("EVENT_LEDGER_TTL", 24*time.Hour),

		LogLevel: config.EnvDefault("LOG_LEVEL", "info"),
	}
}
