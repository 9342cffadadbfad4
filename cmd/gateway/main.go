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

	"github.com/primejennie/trading-core/internal/brokerage"
	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/config"
	"github.com/primejennie/trading-core/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger("gateway")

	var cfg config.Gateway
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

	client := brokerage.NewClient(brokerage.Config{
		AppKey:          cfg.Brokerage.AppKey,
		AppSecret:       cfg.Brokerage.AppSecret,
		AccountNo:       cfg.Brokerage.AccountNo,
		AccountProdCode: "01",
		BaseURL:         cfg.Brokerage.BaseURL,
		Paper:           cfg.Brokerage.Paper,
		TokenCachePath:  cfg.Brokerage.TokenCachePath,
		RateLimitPerSec: cfg.Brokerage.RateLimitPerSec,
	},
		func() { telemetry.RateLimiterWaits.Inc() },
		func(name string) { telemetry.BreakerTrips.WithLabelValues(name).Inc() },
	)

	streamer := brokerage.NewStreamer(client, b, cfg.Brokerage.WSURL)
	handlers := brokerage.NewHandlers(client, streamer, "gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := streamer.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("streamer stopped", "err", err)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(telemetry.Middleware)

	handlers.Mount(r)
	r.Handle("/metrics", telemetry.Handler())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	fmt.Println("gateway stopped")
}
