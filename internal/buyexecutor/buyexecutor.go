// Package buyexecutor consumes BuySignals from the bus, runs the fixed
// pre-order check chain, sizes the position, submits and confirms the
// order through the Gateway, and appends the fill to the trade ledger.
// Grounded on this system's original buy executor: same fixed check
// order, same lock/cooldown keys, same limit-order handling for the
// momentum strategy family.
package buyexecutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/correlation"
	"github.com/primejennie/trading-core/internal/guard"
	"github.com/primejennie/trading-core/internal/gwclient"
	"github.com/primejennie/trading-core/internal/lock"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/sizing"
	"github.com/primejennie/trading-core/internal/store"
)

// EmergencyStopKey is the cache flag that halts all new buys when set,
// regardless of signal source.
const EmergencyStopKey = "emergency:trading_pause"

// HardFloorScore is the minimum hybrid score a signal must carry; below
// this the Scout's own scoring has effectively vetoed the candidate.
var HardFloorScore = decimal.NewFromInt(40)

// momentumFamily is the set of strategies eligible for limit-order
// entry instead of market — chasing these market-order would give back
// the edge the strategy is trying to capture.
var momentumFamily = map[string]bool{
	"MOMENTUM":              true,
	"MOMENTUM_CONTINUATION": true,
}

// MomentumLimitPremium and MomentumLimitTimeout match the original
// system's empirically-tuned momentum limit-order parameters.
const (
	MomentumLimitPremium = "0.003"
	MomentumLimitTimeout = 10 * time.Second
)

// DuplicateOrderWindow rejects a signal if a trade for the same code
// was already recorded within this window, guarding against a
// duplicate signal racing a slow first execution.
const DuplicateOrderWindow = 10 * time.Minute

// Result is the outcome of processing one BuySignal.
type Result struct {
	Status    string // "success", "skipped", "error"
	StockCode model.StockCode
	OrderNo   string
	Quantity  int64
	Price     decimal.Decimal
	Reason    string
}

func skip(code model.StockCode, reason string) Result {
	return Result{Status: "skipped", StockCode: code, Reason: reason}
}

func fail(code model.StockCode, reason string) Result {
	return Result{Status: "error", StockCode: code, Reason: reason}
}

// Executor runs the buy pipeline for one signal at a time per stock
// code; the caller is responsible for per-code serialization (the
// distributed buy lock acquired here additionally guards against a
// second process racing the same code).
type Executor struct {
	gw          *gwclient.Client
	cache       *cache.Cache
	locks       *lock.Locks
	store       store.Store
	correlation *correlation.Checker
	guardLimits guard.Limits
}

// New builds an Executor using limits for the portfolio guard's
// position-count, concentration, and daily-buy-cap checks. rdb backs
// the correlation checker's coefficient cache.
func New(gw *gwclient.Client, c *cache.Cache, locks *lock.Locks, st store.Store, rdb *redis.Client, limits guard.Limits) *Executor {
	e := &Executor{
		gw:          gw,
		cache:       c,
		locks:       locks,
		store:       st,
		guardLimits: limits,
	}
	e.correlation = correlation.New(rdb, e.priceHistory)
	return e
}

func (e *Executor) priceHistory(ctx context.Context, code model.StockCode, days int) ([]decimal.Decimal, error) {
	return e.gw.GetDailyPrices(ctx, code, days)
}

// isTradingSession reports whether now falls within the regular KST
// session. MANUAL-sourced signals bypass this check upstream.
func isTradingSession(now time.Time) bool {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err == nil {
		now = now.In(loc)
	}
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, now.Location())
	return !now.Before(start) && !now.After(end)
}

// Process runs the full pre-order check chain, sizing, guard, order
// submission, and confirmation for one signal.
func (e *Executor) Process(ctx context.Context, signal model.BuySignal) Result {
	code := signal.StockCode
	isManual := signal.Strategy == "MANUAL"

	// 1. Market session check (MANUAL bypasses).
	if !isManual && !isTradingSession(time.Now()) {
		return skip(code, "outside trading session")
	}

	// 2. Emergency stop flag.
	var stopFlag interface{}
	if err := e.cache.Get(ctx, EmergencyStopKey, &stopFlag); err == nil && stopFlag != false {
		return skip(code, "emergency stop active")
	}

	// 3. Distributed buy lock.
	if _, err := e.locks.AcquireBuy(ctx, string(code)); err != nil {
		if errors.Is(err, lock.ErrNotHeld) {
			return skip(code, "buy lock held by another process")
		}
		return fail(code, fmt.Sprintf("lock acquire failed: %v", err))
	}
	defer func() {
		if err := e.locks.ReleaseBuy(ctx, string(code)); err != nil {
			slog.Error("release buy lock failed", "stock_code", code, "error", err)
		}
	}()

	return e.executeWithLockHeld(ctx, signal)
}

func (e *Executor) executeWithLockHeld(ctx context.Context, signal model.BuySignal) Result {
	code := signal.StockCode

	portfolio, err := e.gw.GetBalance(ctx)
	if err != nil {
		return fail(code, fmt.Sprintf("balance fetch failed: %v", err))
	}
	// Publish so the scanner's daily-buy-cap gate sees this session's
	// buy count without hitting the Gateway itself.
	if err := e.cache.SetPortfolio(ctx, portfolio); err != nil {
		slog.Warn("publish portfolio state failed", "stock_code", code, "error", err)
	}

	// 4. Already-held check.
	for _, p := range portfolio.Positions {
		if p.StockCode == code {
			return skip(code, "already holding")
		}
	}

	// 5. Duplicate-order window.
	recent, err := e.store.ListTradesByStock(ctx, code, 1)
	if err == nil && len(recent) > 0 && time.Since(recent[0].ExecutedAt) < DuplicateOrderWindow {
		return skip(code, "duplicate order window")
	}

	// 6. Scout veto / hard floor.
	if signal.Tier == "BLOCKED" {
		return skip(code, "BLOCKED tier (veto)")
	}
	if signal.HybridScore.LessThan(HardFloorScore) {
		return skip(code, fmt.Sprintf("hard floor: score %s < %s", signal.HybridScore.StringFixed(1), HardFloorScore.StringFixed(0)))
	}

	// 7. Cooldown check.
	if inCooldown, err := e.locks.InStoplossCooldown(ctx, string(code)); err == nil && inCooldown {
		return skip(code, "stop-loss cooldown active")
	}
	if inCooldown, err := e.locks.InSellCooldown(ctx, string(code)); err == nil && inCooldown {
		return skip(code, "sell cooldown active (24h)")
	}

	// 8. Correlation check.
	if len(portfolio.Positions) > 0 && e.correlation != nil {
		if corr, err := e.correlation.CheckPortfolio(ctx, code, portfolio.Positions); err != nil {
			if errors.Is(err, correlation.ErrCorrelated) {
				return skip(code, fmt.Sprintf("correlated %.2f with a held position", corr))
			}
			slog.Warn("correlation check failed, proceeding", "stock_code", code, "error", err)
		}
	}

	// Regime informs both sizing and the guard's cash floor; a cache
	// miss falls back to NEUTRAL rather than blocking the pipeline on a
	// transient macro-context outage.
	regime := model.RegimeNeutral
	if tc, err := e.cache.GetTradingContext(ctx); err == nil {
		regime = tc.Regime
	}

	// Position sizing.
	sizingResult := sizing.Calculate(sizing.Input{
		Portfolio:  portfolio,
		Regime:     regime,
		Signal:     signal,
		SectorMult: decimal.NewFromInt(1),
	})
	if sizingResult.Skip {
		return skip(code, "sizing: "+sizingResult.Reason)
	}

	// 9. Portfolio Guard.
	buyAmount := decimal.NewFromInt(sizingResult.Quantity).Mul(signal.Price)
	guardResult := guard.Check(signal.Sector, buyAmount, portfolio, regime, e.guardLimits, nil)
	if !guardResult.Passed {
		return skip(code, fmt.Sprintf("guard %s: %s", guardResult.Gate, guardResult.Reason))
	}

	// Order type selection and submission.
	orderResult, err := e.placeOrder(ctx, signal, sizingResult.Quantity)
	if err != nil {
		return fail(code, fmt.Sprintf("order failed: %v", err))
	}

	e.persistTrade(ctx, signal, orderResult)

	return Result{
		Status:    "success",
		StockCode: code,
		OrderNo:   orderResult.VenueOrderID,
		Quantity:  orderResult.FilledQty,
		Price:     orderResult.FillPrice,
	}
}

func (e *Executor) placeOrder(ctx context.Context, signal model.BuySignal, quantity int64) (model.OrderResult, error) {
	req := model.OrderRequest{
		StockCode: signal.StockCode,
		Side:      model.OrderSideBuy,
		Quantity:  quantity,
		Kind:      model.OrderKindMarket,
	}

	if momentumFamily[signal.Strategy] {
		premium, _ := decimal.NewFromString(MomentumLimitPremium)
		limitPrice := signal.Price.Mul(decimal.NewFromInt(1).Add(premium))
		req.Kind = model.OrderKindLimit
		req.LimitPrice = alignTick(limitPrice)
	}

	submitted, err := e.gw.PlaceOrder(ctx, req)
	if err != nil {
		return model.OrderResult{}, err
	}

	return e.confirm(ctx, submitted, req)
}

// confirm polls the Gateway's order status up to 3 times at 2s
// intervals; MARKET orders fill immediately in practice but the same
// protocol applies uniformly. Limit orders that never fill within the
// momentum timeout are cancelled and treated as a no-fill.
func (e *Executor) confirm(ctx context.Context, submitted model.OrderResult, req model.OrderRequest) (model.OrderResult, error) {
	timeout := MomentumLimitTimeout
	if req.Kind == model.OrderKindMarket {
		timeout = 6 * time.Second
	}

	deadline := time.Now().Add(timeout)
	for attempt := 0; attempt < 3 && time.Now().Before(deadline); attempt++ {
		if submitted.Status == "FILLED" {
			return submitted, nil
		}
		time.Sleep(2 * time.Second)

		status, err := e.gw.GetOrderStatus(ctx, submitted.VenueOrderID)
		if err == nil && status.Status == "FILLED" {
			return status, nil
		}
	}

	if req.Kind == model.OrderKindLimit {
		if err := e.gw.CancelOrder(ctx, submitted.VenueOrderID, req.StockCode); err != nil {
			slog.Warn("cancel unfilled limit order failed", "stock_code", req.StockCode, "venue_order_id", submitted.VenueOrderID, "error", err)
		}
	}
	return model.OrderResult{}, fmt.Errorf("order %s not confirmed within %s", submitted.VenueOrderID, timeout)
}

func (e *Executor) persistTrade(ctx context.Context, signal model.BuySignal, result model.OrderResult) {
	record := &model.TradeRecord{
		StockCode:    signal.StockCode,
		Side:         model.OrderSideBuy,
		Quantity:     result.FilledQty,
		Price:        result.FillPrice,
		Amount:       decimal.NewFromInt(result.FilledQty).Mul(result.FillPrice),
		Reason:       signal.Strategy,
		Strategy:     signal.Strategy,
		VenueOrderID: result.VenueOrderID,
		ExecutedAt:   time.Now(),
	}
	if err := e.store.InsertTrade(ctx, record); err != nil {
		slog.Error("persist buy trade failed", "stock_code", signal.StockCode, "error", err)
	}
}

// alignTick rounds a limit price down to the nearest KRX tick size for
// its price band.
func alignTick(price decimal.Decimal) decimal.Decimal {
	p := price.IntPart()
	var tick int64
	switch {
	case p < 2000:
		tick = 1
	case p < 5000:
		tick = 5
	case p < 20000:
		tick = 10
	case p < 50000:
		tick = 50
	case p < 200000:
		tick = 100
	case p < 500000:
		tick = 500
	default:
		tick = 1000
	}
	aligned := (p / tick) * tick
	return decimal.NewFromInt(aligned)
}
