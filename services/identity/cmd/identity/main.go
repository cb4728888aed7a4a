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

	pkgconfig "github.com/Skotchmaster/social_platform/pkg/config"
	"github.com/Skotchmaster/social_platform/pkg/db"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/tokens"
	"github.com/Skotchmaster/social_platform/services/identity/internal/config"
	"github.com/Skotchmaster/social_platform/services/identity/internal/httpserver"
	"github.com/Skotchmaster/social_platform/services/identity/internal/repo"
	"github.com/Skotchmaster/social_platform/services/identity/internal/service"
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

	clock := clockwork.NewRealClock()
	refreshStore := &repo.RefreshStore{DB: gdb}
	authSvc := &service.AuthService{
		Users:  &repo.GormRepo{DB: gdb},
		Tokens: tokens.NewService(cfg.JWTSecret, refreshStore, clock),
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: authSvc},
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
		log.Info("identity_listening", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := clock.NewTicker(cfg.PurgeEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.Chan():
				n, err := refreshStore.PurgeExpired(ctx, clock.Now())
				if err != nil {
					log.Warn("refresh_purge_failed", "error", err)
					continue
				}
				log.Info("refresh_purged", "count", n)
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("identity_stopped", "error", err)
		os.Exit(1)
	}
}
