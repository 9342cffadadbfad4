package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/buyexecutor"
	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/config"
	"github.com/primejennie/trading-core/internal/guard"
	"github.com/primejennie/trading-core/internal/gwclient"
	"github.com/primejennie/trading-core/internal/lock"
	"github.com/primejennie/trading-core/internal/store"
	"github.com/primejennie/trading-core/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger("buy-executor")

	var cfg config.Executor
	if err := config.Load(&cfg); err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	b := bus.New(rdb)
	c := cache.New(rdb)
	locks := lock.New(rdb)
	primary := store.NewPostgresStore(pool)
	cached := store.NewCachedStore(primary, rdb, 5*time.Minute)
	gw := gwclient.New(cfg.GatewayURL)

	limits := guard.DefaultLimits()
	limits.MaxPortfolioSize = cfg.Risk.MaxPortfolioSize
	limits.MaxDailyBuys = cfg.Risk.MaxDailyBuys
	limits.MaxSectorStockCount = cfg.Risk.MaxSectorStockCount
	limits.MaxSectorValuePct = decimal.NewFromFloat(cfg.Risk.MaxSectorValuePct)
	limits.MaxStockValuePct = decimal.NewFromFloat(cfg.Risk.MaxStockValuePct)

	exec := buyexecutor.New(gw, c, locks, cached, rdb, limits)
	svc := buyexecutor.NewService(b, exec, cfg.ConsumerGroup, cfg.ConsumerName, cfg.ClaimIdle)

	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("buy executor run stopped", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(telemetry.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"buy-executor"}`))
	})
	r.Handle("/metrics", telemetry.Handler())

	srv := &http.Server{
		Addr:         ":8082",
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("buy executor listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down buy executor...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	fmt.Println("buy executor stopped")
}
