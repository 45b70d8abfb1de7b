package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"relive.org/internal/audit"
	"relive.org/internal/auth"
	"relive.org/internal/config"
	"relive.org/internal/httpapi"
	"relive.org/internal/obs"
	"relive.org/internal/relief"
	"relive.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("RELIVE_COMMIT"))
	logger, err := obs.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	var (
		db         *sql.DB
		reliefSvc  relief.Service
		authStore  auth.Store
		auditStore *audit.Store
	)
	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		db = store.DB()
		reliefSvc = store
		authStore = auth.NewPGStore(db)
		auditStore = audit.NewStore(db)
	} else {
		// In-memory fallback for local development without Postgres.
		logger.Warn("RELIVE_PG_DSN not set, using in-memory stores")
		reliefSvc = relief.NewInMemory()
		authStore = auth.NewMemoryStore()
	}

	authSvc, err := auth.NewService(authStore, cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL), auth.WithRefreshTTL(cfg.RefreshTTL))
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}

	api := httpapi.New(authSvc, reliefSvc, auditStore, httpapi.ReadyProbe{DB: db}, httpapi.Config{
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting relive-api", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	logger.Info("stopped")
}
