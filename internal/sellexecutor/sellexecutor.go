// Package sellexecutor consumes SellOrders from the bus, clamps the
// requested quantity to the currently held quantity, submits and
// confirms a market sell through the Gateway, and on a full exit writes
// the sell and stop-loss cooldown markers and clears the monitor's
// per-code exit-tracking state. Grounded on this system's original
// sell executor: same per-code lock, same clamp-to-holding rule, same
// cooldown-on-exit-reason logic.
package sellexecutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/gwclient"
	"github.com/primejennie/trading-core/internal/lock"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/store"
)

// stoplossReasons additionally set the 3-day stop-loss cooldown on a
// full exit, on top of the 24h sell cooldown every full exit sets.
var stoplossReasons = map[string]bool{
	"STOP_LOSS":      true,
	"ATR_STOP":       true,
	"DEATH_CROSS":    true,
	"BREAKEVEN_STOP": true,
}

// HardStopRetries and HardStopBackoff apply only to orders from the exit
// chain's hard_stop rule, the one exit the venue-failure no-retry rule
// exempts.
const (
	HardStopRetries = 3
	HardStopBackoff = 2 * time.Second
)

// Result is the outcome of processing one SellOrder.
type Result struct {
	Status    string // "success", "skipped", "error", "uncertain"
	StockCode model.StockCode
	OrderNo   string
	Quantity  int64
	Price     decimal.Decimal
	FullExit  bool
	Reason    string
}

func skip(code model.StockCode, reason string) Result {
	return Result{Status: "skipped", StockCode: code, Reason: reason}
}

func fail(code model.StockCode, reason string) Result {
	return Result{Status: "error", StockCode: code, Reason: reason}
}

// Executor runs the sell pipeline for one order at a time per stock
// code; the distributed sell lock acquired here additionally guards
// against a second process racing the same code.
type Executor struct {
	gw    *gwclient.Client
	cache *cache.Cache
	locks *lock.Locks
	store store.Store
}

// New builds an Executor.
func New(gw *gwclient.Client, c *cache.Cache, locks *lock.Locks, st store.Store) *Executor {
	return &Executor{gw: gw, cache: c, locks: locks, store: st}
}

// Process runs the lock, holdings-clamp, submission, confirmation, and
// state-transition steps for one sell order.
func (e *Executor) Process(ctx context.Context, order model.SellOrder) Result {
	code := order.StockCode

	if _, err := e.locks.AcquireSell(ctx, string(code)); err != nil {
		if errors.Is(err, lock.ErrNotHeld) {
			return skip(code, "sell lock held by another process — in-flight duplicate")
		}
		return fail(code, fmt.Sprintf("lock acquire failed: %v", err))
	}
	defer func() {
		if err := e.locks.ReleaseSell(ctx, string(code)); err != nil {
			slog.Error("release sell lock failed", "stock_code", code, "error", err)
		}
	}()

	return e.executeWithLockHeld(ctx, order)
}

func (e *Executor) executeWithLockHeld(ctx context.Context, order model.SellOrder) Result {
	code := order.StockCode

	portfolio, err := e.gw.GetBalance(ctx)
	if err != nil {
		return fail(code, fmt.Sprintf("balance fetch failed: %v", err))
	}

	var position model.Position
	held := false
	for _, p := range portfolio.Positions {
		if p.StockCode == code {
			position = p
			held = true
			break
		}
	}
	if !held || position.Quantity <= 0 {
		return skip(code, "no position held")
	}

	// Holdings clamp: the SellOrder carries the percentage of the
	// position to liquidate (0-100); a stale watermark or a race with a
	// prior partial fill must never be allowed to oversell.
	quantity := decimal.NewFromInt(position.Quantity).Mul(order.QuantityPct).Div(decimal.NewFromInt(100)).Ceil().IntPart()
	if quantity <= 0 {
		quantity = 1
	}
	if quantity > position.Quantity {
		quantity = position.Quantity
	}
	fullExit := quantity >= position.Quantity

	req := model.OrderRequest{
		StockCode: code,
		Side:      model.OrderSideSell,
		Quantity:  quantity,
		Kind:      model.OrderKindMarket,
	}

	orderResult, err := e.placeAndConfirm(ctx, req, order.Rule)
	if err != nil {
		slog.Error("sell order not confirmed", "stock_code", code, "reason", order.Reason, "error", err)
		return Result{Status: "uncertain", StockCode: code, Reason: err.Error()}
	}
	fullExit = orderResult.FilledQty >= position.Quantity

	e.persistTrade(ctx, order, position, orderResult, fullExit)

	if fullExit {
		if err := e.locks.SetSellCooldown(ctx, string(code)); err != nil {
			slog.Error("set sell cooldown failed", "stock_code", code, "error", err)
		}
		if stoplossReasons[order.Reason] {
			if err := e.locks.SetStoplossCooldown(ctx, string(code)); err != nil {
				slog.Error("set stop-loss cooldown failed", "stock_code", code, "error", err)
			}
		}
		if err := e.cache.ClearPositionState(ctx, code); err != nil {
			slog.Error("clear position state failed", "stock_code", code, "error", err)
		}
	}

	return Result{
		Status:    "success",
		StockCode: code,
		OrderNo:   orderResult.VenueOrderID,
		Quantity:  orderResult.FilledQty,
		Price:     orderResult.FillPrice,
		FullExit:  fullExit,
		Reason:    order.Reason,
	}
}

// placeAndConfirm submits the order and polls for confirmation.
// Orders from the hard_stop rule make up to HardStopRetries submission
// attempts, HardStopBackoff apart; every other rule gets one attempt,
// per the rule that the monitor will simply re-emit the SellOrder next
// tick if the exit condition still holds.
func (e *Executor) placeAndConfirm(ctx context.Context, req model.OrderRequest, rule string) (model.OrderResult, error) {
	attempts := 1
	if rule == "hard_stop" {
		attempts = HardStopRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		submitted, err := e.gw.PlaceOrder(ctx, req)
		if err != nil {
			lastErr = err
			if i < attempts-1 {
				time.Sleep(HardStopBackoff)
			}
			continue
		}
		return e.confirm(ctx, submitted)
	}
	return model.OrderResult{}, fmt.Errorf("place order failed after %d attempt(s): %w", attempts, lastErr)
}

// confirm polls the Gateway's authoritative order status up to 3 times
// at 2s intervals.
func (e *Executor) confirm(ctx context.Context, submitted model.OrderResult) (model.OrderResult, error) {
	deadline := time.Now().Add(6 * time.Second)
	for attempt := 0; attempt < 3 && time.Now().Before(deadline); attempt++ {
		if submitted.Status == "FILLED" {
			return submitted, nil
		}
		time.Sleep(2 * time.Second)

		status, err := e.gw.GetOrderStatus(ctx, submitted.VenueOrderID)
		if err == nil && (status.Status == "FILLED" || status.Status == "PARTIAL") {
			return status, nil
		}
	}
	return model.OrderResult{}, fmt.Errorf("order %s not confirmed within timeout", submitted.VenueOrderID)
}

func (e *Executor) persistTrade(ctx context.Context, order model.SellOrder, position model.Position, result model.OrderResult, fullExit bool) {
	profitPct := decimal.Zero
	if !position.AverageBuyPrice.IsZero() {
		profitPct = result.FillPrice.Sub(position.AverageBuyPrice).Div(position.AverageBuyPrice).Mul(decimal.NewFromInt(100))
	}

	record := &model.TradeRecord{
		StockCode:    order.StockCode,
		Side:         model.OrderSideSell,
		Quantity:     result.FilledQty,
		Price:        result.FillPrice,
		Amount:       decimal.NewFromInt(result.FilledQty).Mul(result.FillPrice),
		Reason:       order.Reason,
		Rule:         order.Rule,
		VenueOrderID: result.VenueOrderID,
		ExecutedAt:   time.Now(),
	}
	if fullExit {
		record.Reason = fmt.Sprintf("%s profit_pct=%s holding_days=%d", order.Reason, profitPct.StringFixed(2), position.HoldingDays)
	}
	if err := e.store.InsertTrade(ctx, record); err != nil {
		slog.Error("persist sell trade failed", "stock_code", order.StockCode, "error", err)
	}
}
