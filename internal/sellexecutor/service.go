package sellexecutor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/telemetry"
)

// Service wires an Executor to the sell-order stream.
type Service struct {
	bus       *bus.Bus
	exec      *Executor
	group     string
	consumer  string
	claimIdle time.Duration
}

// NewService builds a Service that consumes signals:sell under group/consumer.
func NewService(b *bus.Bus, exec *Executor, group, consumer string, claimIdle time.Duration) *Service {
	return &Service{bus: b, exec: exec, group: group, consumer: consumer, claimIdle: claimIdle}
}

// Run joins the consumer group and processes SellOrders until ctx is
// cancelled, acking each message before processing per the bus's
// at-most-once contract.
func (s *Service) Run(ctx context.Context) error {
	if err := s.bus.EnsureGroup(ctx, bus.StreamSell, s.group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := s.bus.ScanPending(ctx, bus.StreamSell, s.group, s.consumer, s.claimIdle); err != nil {
			slog.Error("scan pending sell orders failed", "error", err)
		} else if len(reclaimed) > 0 {
			telemetry.StreamPendingReclaims.WithLabelValues(bus.StreamSell).Add(float64(len(reclaimed)))
			s.handle(ctx, reclaimed)
		}

		msgs, err := s.bus.Read(ctx, s.group, s.consumer, 5*time.Second, bus.StreamSell)
		if errors.Is(err, bus.ErrNoMessages) {
			continue
		}
		if err != nil {
			slog.Error("read sell orders failed", "error", err)
			continue
		}
		s.handle(ctx, msgs)
	}
}

func (s *Service) handle(ctx context.Context, msgs []bus.Message) {
	for _, msg := range msgs {
		var order model.SellOrder
		if err := msg.Decode(&order); err != nil {
			slog.Error("decode sell order failed", "error", err, "id", msg.ID)
			s.bus.Ack(ctx, bus.StreamSell, s.group, msg.ID)
			continue
		}
		if err := s.bus.Ack(ctx, bus.StreamSell, s.group, msg.ID); err != nil {
			slog.Error("ack sell order failed", "error", err, "id", msg.ID)
		}

		result := s.exec.Process(ctx, order)
		telemetry.OrdersSubmitted.WithLabelValues("sell-executor", "sell", result.Status).Inc()
		slog.Info("sell order processed",
			"stock_code", order.StockCode,
			"rule", order.Rule,
			"status", result.Status,
			"reason", result.Reason,
			"quantity", result.Quantity,
			"full_exit", result.FullExit,
			"order_no", result.OrderNo,
		)
	}
}
