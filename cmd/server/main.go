package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quickdraw-gg/backend/internal/config"
	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/hub"
	"github.com/quickdraw-gg/backend/internal/httpapi"
	"github.com/quickdraw-gg/backend/internal/registry"
	"github.com/quickdraw-gg/backend/internal/session"
	"github.com/quickdraw-gg/backend/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseDSN != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("open postgres store", zap.Error(err))
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, snapshots are in-memory only")
		st = store.NewMemory()
	}

	reg := registry.New(ctx, registry.Deps{
		Store: st,
		Log:   logger,
		Cfg: registry.Config{
			ConnectTimeout:   cfg.ConnectTimeout,
			MatchWaitTimeout: cfg.MatchWaitTimeout,
		},
	})

	h := hub.NewHub(ctx, hub.Deps{
		Store:     st,
		Registrar: reg,
		Lookup: func(ctx context.Context, roomID string) (game.Settings, bool) {
			settings, _, ok := reg.Lookup(ctx, roomID)
			return settings, ok
		},
		Log: logger,
		SessionCfg: session.Config{
			JoinTimeout: cfg.JoinTimeout,
		},
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, reg, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
