package config

import (
	"context"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/services/identity/internal/models"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string
	JWTSecret   []byte
	PurgeEvery  time.Duration
	LogLevel    string
}

func Load() *Config {
	return &Config{
		ListenAddr:  config.EnvDefault("IDENTITY_ADDR", ":3001"),
		DatabaseURL: config.MustNonEmpty(os.Getenv("DATABASE_URL"), "DATABASE_URL"),
		JWTSecret:   config.MustNonEmptyBytes([]byte(os.Getenv("JWT_SECRET")), "JWT_SECRET"),
		PurgeEvery:  config.EnvDurationDefault("REFRESH_PURGE_INTERVAL", time.Hour),
		LogLevel:    config.EnvDefault("LOG_LEVEL", "info"),
	}
}

func InitDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	return db.Open(ctx, cfg.DatabaseURL, &models.User{}, &models.RefreshToken{})
}
