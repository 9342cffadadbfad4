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
	"github.com/primejennie/trading-core/internal/exitchain"
	"github.com/primejennie/trading-core/internal/gwclient"
	"github.com/primejennie/trading-core/internal/monitor"
	"github.com/primejennie/trading-core/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger("price-monitor")

	var cfg config.Monitor
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
	gw := gwclient.New(cfg.GatewayURL)

	excfg := exitchain.DefaultConfig()
	excfg.HardStopPct = decimal.NewFromFloat(cfg.Sell.HardStopPct)
	excfg.ProfitLockL1Min = decimal.NewFromFloat(cfg.Sell.ProfitLockL1Min)
	excfg.ProfitLockL1Mult = decimal.NewFromFloat(cfg.Sell.ProfitLockL1Mult)
	excfg.ProfitLockL1Max = decimal.NewFromFloat(cfg.Sell.ProfitLockL1Max)
	excfg.ProfitLockL1Floor = decimal.NewFromFloat(cfg.Sell.ProfitLockL1Floor)
	excfg.ProfitLockL2Min = decimal.NewFromFloat(cfg.Sell.ProfitLockL2Min)
	excfg.ProfitLockL2Mult = decimal.NewFromFloat(cfg.Sell.ProfitLockL2Mult)
	excfg.ProfitLockL2Max = decimal.NewFromFloat(cfg.Sell.ProfitLockL2Max)
	excfg.ProfitLockL2Floor = decimal.NewFromFloat(cfg.Sell.ProfitLockL2Floor)
	excfg.BreakevenEnabled = cfg.Sell.BreakevenEnabled
	excfg.BreakevenActivationPct = decimal.NewFromFloat(cfg.Sell.BreakevenActivationPct)
	excfg.BreakevenFloorPct = decimal.NewFromFloat(cfg.Sell.BreakevenFloorPct)
	excfg.ATRMultiplier = decimal.NewFromFloat(cfg.Sell.ATRMultiplier)
	excfg.StopLossPct = decimal.NewFromFloat(cfg.Sell.StopLossPct)
	excfg.TimeTightenEnabled = cfg.Sell.TimeTightenEnabled
	excfg.TimeTightenStartDaysBull = cfg.Sell.TimeTightenStartDaysBull
	excfg.TimeTightenStartDays = cfg.Sell.TimeTightenStartDays
	excfg.TimeTightenMaxReductionPct = decimal.NewFromFloat(cfg.Sell.TimeTightenMaxReductionPct)
	excfg.MaxHoldingDays = cfg.Sell.MaxHoldingDays
	excfg.TrailingEnabled = cfg.Sell.TrailingEnabled
	excfg.TrailingActivationPct = decimal.NewFromFloat(cfg.Sell.TrailingActivationPct)
	excfg.TrailingDropFromHighPct = decimal.NewFromFloat(cfg.Sell.TrailingDropFromHighPct)
	excfg.TrailingMinProfitPct = decimal.NewFromFloat(cfg.Sell.TrailingMinProfitPct)
	excfg.ScaleOutEnabled = cfg.Sell.ScaleOutEnabled
	excfg.MinTransactionAmount = decimal.NewFromFloat(cfg.Sell.MinTransactionAmount)
	excfg.MinSellQuantity = cfg.Sell.MinSellQuantity
	excfg.RSIOverboughtThreshold = decimal.NewFromFloat(cfg.Sell.RSIOverboughtThreshold)
	excfg.RSIMinProfitPct = decimal.NewFromFloat(cfg.Sell.RSIMinProfitPct)
	excfg.ProfitTargetPct = decimal.NewFromFloat(cfg.Sell.ProfitTargetPct)

	mon := monitor.New(gw, b, c, excfg)
	svc := monitor.NewService(mon, b, cfg.ConsumerGroup, cfg.ConsumerName, cfg.ClaimIdle, cfg.PollEvery, cfg.ReconcileEvery)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("price monitor run stopped", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(telemetry.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"price-monitor"}`))
	})
	r.Handle("/metrics", telemetry.Handler())

	srv := &http.Server{
		Addr:         ":8084",
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("price monitor listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down price monitor...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	fmt.Println("price monitor stopped")
}
