package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	pkgconfig "github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/redisx"
	"github.com/Skotchmaster/social_platform/services/media/internal/config"
	"github.com/Skotchmaster/social_platform/services/media/internal/events"
	"github.com/Skotchmaster/social_platform/services/media/internal/httpserver"
	"github.com/Skotchmaster/social_platform/services/media/internal/repo"
	"github.com/Skotchmaster/social_platform/services/media/internal/service"
	"github.com/Skotchmaster/social_platform/services/media/internal/storage"
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

	rdb, err := redisx.Open(ctx, cfg.RedisURL, 250*time.Millisecond)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := storage.NewS3(ctx, cfg.S3)
	if err != nil {
		log.Error("s3_init_failed", "error", err)
		os.Exit(1)
	}

	mediaSvc := &service.MediaService{
		Repo:        &repo.GormRepo{DB: gdb},
		Store:       store,
		Concurrency: cfg.DeleteWorkers,
	}

	pub := eventbus.NewPublisher(cfg.KafkaBrokers, cfg.TopicPrefix, cfg.PublishTimeout)
	defer pub.Close()

	memLedger := eventbus.NewMemoryLedger(cfg.LedgerTTL)
	defer memLedger.Stop()
	ledger := eventbus.NewFallbackLedger(eventbus.NewRedisLedger(rdb, "evt:media", cfg.LedgerTTL), memLedger)

	reg := eventbus.NewRegistry()
	if err := events.Register(reg, mediaSvc); err != nil {
		log.Error("subscribe_failed", "error", err)
		os.Exit(1)
	}
	consumer := eventbus.NewConsumer(eventbus.ConsumerConfig{
		Group:       cfg.ConsumerGroup,
		MaxAttempts: cfg.MaxAttempts,
	}, reg, pub, ledger, eventbus.KafkaReaders(cfg.KafkaBrokers), log)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		MediaHandler: &httpserver.MediaHTTP{Svc: mediaSvc, MaxBytes: cfg.MaxUploadBytes},
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			return store.Ping(ctx)
		},
		Logger: log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("media_listening", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("media_stopped", "error", err)
		os.Exit(1)
	}
}
