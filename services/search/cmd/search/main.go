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

	"github.com/Skotchmaster/social_platform/pkg/cache"
	pkgconfig "github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/eventbus"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/redisx"
	"github.com/Skotchmaster/social_platform/services/search/internal/config"
	"github.com/Skotchmaster/social_platform/services/search/internal/events"
	"github.com/Skotchmaster/social_platform/services/search/internal/httpserver"
	"github.com/Skotchmaster/social_platform/services/search/internal/index"
	"github.com/Skotchmaster/social_platform/services/search/internal/service"
)

func main() {
	pkgconfig.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, log)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	esClient, err := index.NewClient(initCtx, cfg.ES)
	if err != nil {
		cancel()
		log.Error("elasticsearch_connect_failed", "error", err)
		os.Exit(1)
	}
	postIndex := index.New(esClient, cfg.IndexName)
	err = postIndex.Ensure(initCtx)
	cancel()
	if err != nil {
		log.Error("index_init_failed", "index", cfg.IndexName, "error", err)
		os.Exit(1)
	}

	rdb, err := redisx.Open(ctx, cfg.RedisURL, cfg.CacheTimeout)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	resultCache := cache.New(rdb, cfg.CacheTimeout)

	pub := eventbus.NewPublisher(cfg.KafkaBrokers, cfg.TopicPrefix, cfg.PublishTimeout)
	defer pub.Close()

	memLedger := eventbus.NewMemoryLedger(cfg.LedgerTTL)
	defer memLedger.Stop()
	ledger := eventbus.NewFallbackLedger(eventbus.NewRedisLedger(rdb, "evt:search", cfg.LedgerTTL), memLedger)

	reg := eventbus.NewRegistry()
	if err := (&events.Handlers{Index: postIndex, Cache: resultCache}).Register(reg); err != nil {
		log.Error("subscribe_failed", "error", err)
		os.Exit(1)
	}
	consumer := eventbus.NewConsumer(eventbus.ConsumerConfig{
		Group:       cfg.ConsumerGroup,
		MaxAttempts: cfg.MaxAttempts,
	}, reg, pub, ledger, eventbus.KafkaReaders(cfg.KafkaBrokers), log)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		SearchHandler: &httpserver.SearchHTTP{Svc: &service.SearchService{Index: postIndex, Cache: resultCache}},
		Ready:         postIndex.Ping,
		Logger:        log,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("search_listening", "addr", cfg.ListenAddr)
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
		log.Error("search_stopped", "error", err)
		os.Exit(1)
	}
}
