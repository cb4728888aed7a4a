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
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/social_platform/pkg/cache"
	pkgconfig "github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/redisx"
	"github.com/Skotchmaster/social_platform/services/post/internal/config"
	"github.com/Skotchmaster/social_platform/services/post/internal/httpserver"
	"github.com/Skotchmaster/social_platform/services/post/internal/outbox"
	"github.com/Skotchmaster/social_platform/services/post/internal/repo"
	"github.com/Skotchmaster/social_platform/services/post/internal/service"
)

func main() {
	pkgconfig.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, log)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := config.InitDB(initCtx, cfg)
	cancel()
	if err != nil {
		log.Error("db_init_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close(gdb)

	rdb, err := redisx.Open(ctx, cfg.RedisURL, cfg.CacheTimeout)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	if cfg.EnsureTopics {
		if err := eventbus.EnsureTopics(ctx, cfg.KafkaBrokers[0], cfg.TopicPrefix, eventbus.PostCreated, eventbus.PostDeleted); err != nil {
			log.Warn("ensure_topics_failed", "error", err)
		}
	}
	pub := eventbus.NewPublisher(cfg.KafkaBrokers, cfg.TopicPrefix, cfg.PublishTimeout)
	defer pub.Close()

	clock := clockwork.NewRealClock()
	postRepo := &repo.GormRepo{DB: gdb}
	postSvc := &service.PostService{
		Repo:   postRepo,
		Events: pub,
		Cache:  cache.New(rdb, cfg.CacheTimeout),
		Clock:  clock,
	}
	relay := outbox.NewRelay(postRepo, pub, outbox.Config{
		Interval:  cfg.OutboxInterval,
		MinAge:    cfg.OutboxMinAge,
		Retention: cfg.OutboxRetention,
	}, clock, log)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		PostHandler: &httpserver.PostHTTP{Svc: postSvc},
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Logger: log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("post_listening", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return relay.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("post_stopped", "error", err)
		os.Exit(1)
	}
}
