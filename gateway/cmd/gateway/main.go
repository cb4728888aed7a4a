package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/gateway/internal/config"
	"github.com/Skotchmaster/social_platform/gateway/internal/httpserver"
	pkgconfig "github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/ratelimit"
	"github.com/Skotchmaster/social_platform/pkg/redisx"
	"github.com/Skotchmaster/social_platform/pkg/tokens"
)

func main() {
	pkgconfig.LoadDotEnv()
	cfg := config.Load()

	log := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(context.Background(), log)

	rdb, err := redisx.Open(ctx, cfg.RedisURL, cfg.RedisTimeout)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()
	limiter := ratelimit.New(rdb, ratelimit.Config{
		Prefix:  "rl:global",
		Limit:   cfg.RateLimit,
		Window:  cfg.RateWindow,
		Policy:  cfg.RatePolicy,
		Timeout: cfg.RedisTimeout,
	}, clock)
	createPostLimiter := ratelimit.New(rdb, ratelimit.Config{
		Prefix:  "rl:create-post",
		Limit:   cfg.CreatePostLimit,
		Window:  cfg.RateWindow,
		Policy:  cfg.RatePolicy,
		Timeout: cfg.RedisTimeout,
	}, clock)

	clientIP, err := httpserver.ClientIP(cfg.TrustedProxies)
	if err != nil {
		log.Error("trusted_proxies_invalid", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = cfg.UpstreamTimeout + 5*time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	if err := httpserver.Register(e, &httpserver.Deps{
		IdentityURL:       cfg.IdentityURL,
		PostURL:           cfg.PostURL,
		MediaURL:          cfg.MediaURL,
		SearchURL:         cfg.SearchURL,
		Verifier:          tokens.NewVerifier(cfg.JWTSecret, clock),
		Limiter:           limiter,
		CreatePostLimiter: createPostLimiter,
		IPExtractor:       clientIP,
		UpstreamTimeout:   cfg.UpstreamTimeout,
		Ready:             func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		Logger:            log,
	}); err != nil {
		log.Error("router_setup_failed", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("gateway_listening", "addr", cfg.ListenAddr, "rate_limit", cfg.RateLimit, "rate_policy", cfg.RatePolicy)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_failed", "error", err)
	}
}
