package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/telemetry"
)

// Service wires a Monitor to the tick stream for reactive re-evaluation
// between poll cycles, and drives the ticker-based poll/reconcile/status
// loop for the full position sweep.
type Service struct {
	monitor        *Monitor
	bus            *bus.Bus
	group          string
	consumer       string
	claimIdle      time.Duration
	pollEvery      time.Duration
	reconcileEvery time.Duration
}

// NewService builds a Service ready to run.
func NewService(m *Monitor, b *bus.Bus, group, consumer string, claimIdle, pollEvery, reconcileEvery time.Duration) *Service {
	return &Service{monitor: m, bus: b, group: group, consumer: consumer, claimIdle: claimIdle, pollEvery: pollEvery, reconcileEvery: reconcileEvery}
}

// Run starts the full-sweep poll loop and the reactive tick consumer
// concurrently, returning when either stops or ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- s.monitor.Run(ctx, s.pollEvery, s.reconcileEvery)
	}()
	go func() {
		errCh <- s.consumeTicks(ctx)
	}()

	return <-errCh
}

// consumeTicks re-evaluates a held position's exit condition as soon as
// a fresh tick arrives for it, rather than waiting for the next full
// poll — cheaper than re-fetching the balance on every tick since it
// checks against the last polled snapshot the cache holds.
func (s *Service) consumeTicks(ctx context.Context) error {
	if err := s.bus.EnsureGroup(ctx, bus.StreamPrices, s.group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := s.bus.ScanPending(ctx, bus.StreamPrices, s.group, s.consumer, s.claimIdle); err != nil {
			slog.Error("monitor scan pending ticks failed", "error", err)
		} else if len(reclaimed) > 0 {
			telemetry.StreamPendingReclaims.WithLabelValues(bus.StreamPrices).Add(float64(len(reclaimed)))
			s.handleTicks(ctx, reclaimed)
		}

		msgs, err := s.bus.Read(ctx, s.group, s.consumer, 5*time.Second, bus.StreamPrices)
		if errors.Is(err, bus.ErrNoMessages) {
			continue
		}
		if err != nil {
			slog.Error("monitor read ticks failed", "error", err)
			continue
		}
		s.handleTicks(ctx, msgs)
	}
}

func (s *Service) handleTicks(ctx context.Context, msgs []bus.Message) {
	for _, msg := range msgs {
		var tick model.PriceTick
		if err := msg.Decode(&tick); err != nil {
			slog.Error("monitor decode tick failed", "error", err, "id", msg.ID)
			s.bus.Ack(ctx, bus.StreamPrices, s.group, msg.ID)
			continue
		}
		if err := s.bus.Ack(ctx, bus.StreamPrices, s.group, msg.ID); err != nil {
			slog.Error("monitor ack tick failed", "error", err, "id", msg.ID)
		}
		s.monitor.OnTick(ctx, tick)
	}
}
