package config

import (
	"os"
	"time"

	"github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/ratelimit"
)

type Config struct {
	ListenAddr  string
	IdentityURL string
	PostURL     string
	MediaURL    string
	SearchURL   string
	JWTSecret   []byte

	RedisURL     string
	RedisTimeout time.Duration

	RateLimit       int
	RateWindow      time.Duration
	RatePolicy      ratelimit.FailurePolicy
	CreatePostLimit int

	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	UpstreamTimeout time.Duration
	LogLevel        string
}

func Load() *Config {
	return &Config{
		ListenAddr:  config.EnvDefault("GATEWAY_ADDR", ":3000"),
		IdentityURL: config.MustNonEmpty(os.Getenv("IDENTITY_SERVICE_URL"), "IDENTITY_SERVICE_URL"),
		PostURL:     config.MustNonEmpty(os.Getenv("POST_SERVICE_URL"), "POST_SERVICE_URL"),
		MediaURL:    config.MustNonEmpty(os.Getenv("MEDIA_SERVICE_URL"), "MEDIA_SERVICE_URL"),
		SearchURL:   config.MustNonEmpty(os.Getenv("SEARCH_SERVICE_URL"), "SEARCH_SERVICE_URL"),
		JWTSecret:   config.MustNonEmptyBytes([]byte(os.Getenv("JWT_SECRET")), "JWT_SECRET"),

		RedisURL:     config.MustNonEmpty(os.Getenv("REDIS_URL"), "REDIS_URL"),
		RedisTimeout: config.EnvDurationDefault("REDIS_TIMEOUT", 200*time.Millisecond),

		RateLimit:       config.EnvIntDefault("RATE_LIMIT_MAX", 100),
		RateWindow:      config.EnvDurationDefault("RATE_LIMIT_WINDOW", 15*time.Minute),
		RatePolicy:      ratelimit.ParsePolicy(config.EnvDefault("RATE_LIMIT_FAILURE_POLICY", string(ratelimit.FailClosed))),
		CreatePostLimit: config.EnvIntDefault("CREATE_POST_RATE_LIMIT_MAX", 50),

		TrustedProxies: config.CSV(os.Getenv("TRUSTED_PROXIES")),

		UpstreamTimeout: config.EnvDurationDefault("UPSTREAM_TIMEOUT", 10*time.Second),
		LogLevel:        config.EnvDefault("LOG_LEVEL", "info"),
	}
}
