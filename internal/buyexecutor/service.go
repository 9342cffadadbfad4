package buyexecutor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/telemetry"
)

// Service wires an Executor to the buy-signal stream.
type Service struct {
	bus       *bus.Bus
	exec      *Executor
	group     string
	consumer  string
	claimIdle time.Duration
}

// NewService builds a Service that consumes signals:buy under group/consumer.
func NewService(b *bus.Bus, exec *Executor, group, consumer string, claimIdle time.Duration) *Service {
	return &Service{bus: b, exec: exec, group: group, consumer: consumer, claimIdle: claimIdle}
}

// Run joins the consumer group and processes BuySignals until ctx is
// cancelled. Every message is ACKed before processing per the bus's
// at-most-once contract: a crash mid-order-placement drops the signal
// rather than risking a duplicate order.
func (s *Service) Run(ctx context.Context) error {
	if err := s.bus.EnsureGroup(ctx, bus.StreamBuy, s.group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := s.bus.ScanPending(ctx, bus.StreamBuy, s.group, s.consumer, s.claimIdle); err != nil {
			slog.Error("scan pending buy signals failed", "error", err)
		} else if len(reclaimed) > 0 {
			telemetry.StreamPendingReclaims.WithLabelValues(bus.StreamBuy).Add(float64(len(reclaimed)))
			s.handle(ctx, reclaimed)
		}

		msgs, err := s.bus.Read(ctx, s.group, s.consumer, 5*time.Second, bus.StreamBuy)
		if errors.Is(err, bus.ErrNoMessages) {
			continue
		}
		if err != nil {
			slog.Error("read buy signals failed", "error", err)
			continue
		}
		s.handle(ctx, msgs)
	}
}

func (s *Service) handle(ctx context.Context, msgs []bus.Message) {
	for _, msg := range msgs {
		var signal model.BuySignal
		if err := msg.Decode(&signal); err != nil {
			slog.Error("decode buy signal failed", "error", err, "id", msg.ID)
			s.bus.Ack(ctx, bus.StreamBuy, s.group, msg.ID)
			continue
		}
		if err := s.bus.Ack(ctx, bus.StreamBuy, s.group, msg.ID); err != nil {
			slog.Error("ack buy signal failed", "error", err, "id", msg.ID)
		}

		result := s.exec.Process(ctx, signal)
		telemetry.OrdersSubmitted.WithLabelValues("buy-executor", "buy", result.Status).Inc()
		slog.Info("buy signal processed",
			"stock_code", signal.StockCode,
			"strategy", signal.Strategy,
			"status", result.Status,
			"reason", result.Reason,
			"quantity", result.Quantity,
			"order_no", result.OrderNo,
		)
	}
}
