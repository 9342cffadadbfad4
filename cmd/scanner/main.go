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
	"github.com/redis/go-redis/v9"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/config"
	"github.com/primejennie/trading-core/internal/lock"
	"github.com/primejennie/trading-core/internal/scanner"
	"github.com/primejennie/trading-core/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger("scanner")

	var cfg config.Scanner
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

	b := bus.New(rdb)
	c := cache.New(rdb)
	locks := lock.New(rdb)

	gateCfg := scanner.DefaultGateConfig()
	gateCfg.MinRequiredBars = cfg.Gate.MinRequiredBars
	gateCfg.NoTradeWindowStart = cfg.Gate.NoTradeWindowStart
	gateCfg.NoTradeWindowEnd = cfg.Gate.NoTradeWindowEnd
	gateCfg.DangerZoneStart = cfg.Gate.DangerZoneStart
	gateCfg.DangerZoneEnd = cfg.Gate.DangerZoneEnd
	gateCfg.MaxDailyBuys = cfg.Risk.MaxDailyBuys
	gateCfg.RSIGuardMax = decimal.NewFromFloat(cfg.Gate.RSIGuardMax)
	gateCfg.RSIGuardMaxBull = decimal.NewFromFloat(cfg.Gate.RSIGuardMaxBull)
	gateCfg.VolumeRatioWarning = decimal.NewFromFloat(cfg.Gate.VolumeRatioWarning)
	gateCfg.VWAPDeviationWarning = decimal.NewFromFloat(cfg.Gate.VWAPDeviationWarning)
	gateCfg.SignalCooldown = cfg.Gate.SignalCooldown
	gateCfg.BlockBearRegimes = cfg.Gate.BlockBearRegimes

	svc := scanner.NewService(b, c, locks, cfg.ConsumerGroup, cfg.ConsumerName, gateCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("scanner run stopped", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(telemetry.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"scanner"}`))
	})
	r.Handle("/metrics", telemetry.Handler())

	srv := &http.Server{
		Addr:         ":8081",
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("scanner listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scanner...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	fmt.Println("scanner stopped")
}
