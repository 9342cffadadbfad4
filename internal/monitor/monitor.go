// Package monitor is the Price Monitor: it polls every live position
// from the Gateway, maintains the per-code high-watermark and
// scale-out/RSI-sold bookkeeping the exit chain depends on, evaluates
// the 12-rule exit chain, and publishes a SellOrder when a rule fires.
// Grounded on this system's original price monitor, including its
// periodic status log and its reconciliation pass that purges local
// metadata for codes the venue no longer holds.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/exitchain"
	"github.com/primejennie/trading-core/internal/gwclient"
	"github.com/primejennie/trading-core/internal/indicator"
	"github.com/primejennie/trading-core/internal/model"
)

// ATRFallbackPct is used in place of a real ATR whenever a position
// arrives with a zero ATR; the monitor never computes ATR itself (the
// Gateway's daily-price history carries only close prices, no intraday
// high/low), so ATR here is always an approximation of the original's
// true-range calculation.
var ATRFallbackPct = decimal.NewFromFloat(0.02)

const (
	rsiPeriod       = 14
	dailyHistoryLen = 30
)

// Monitor evaluates the exit chain against every live position on a
// fixed cadence.
type Monitor struct {
	gw        *gwclient.Client
	bus       *bus.Bus
	cache     *cache.Cache
	cfg       exitchain.Config
	statusKey string
}

// New builds a Monitor using cfg for the exit chain's rule thresholds.
func New(gw *gwclient.Client, b *bus.Bus, c *cache.Cache, cfg exitchain.Config) *Monitor {
	return &Monitor{gw: gw, bus: b, cache: c, cfg: cfg, statusKey: "monitoring:price_monitor"}
}

// Run polls positions every pollEvery, reconciles local state every
// reconcileEvery, and logs a status summary every 5 minutes, until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context, pollEvery, reconcileEvery time.Duration) error {
	pollTicker := time.NewTicker(pollEvery)
	defer pollTicker.Stop()
	reconcileTicker := time.NewTicker(reconcileEvery)
	defer reconcileTicker.Stop()
	statusTicker := time.NewTicker(5 * time.Minute)
	defer statusTicker.Stop()

	tracked := make(map[model.StockCode]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTicker.C:
			m.pollOnce(ctx, tracked)
		case <-reconcileTicker.C:
			m.reconcile(ctx, tracked)
		case <-statusTicker.C:
			m.logStatus(ctx, tracked)
		}
	}
}

// macroStopMultiplier tightens exit-chain stop distances under
// elevated macro risk — a crisis context or a high risk-off level
// means a smaller adverse move should be enough to trigger a stop.
func macroStopMultiplier(tc model.TradingContext) decimal.Decimal {
	switch {
	case tc.IsCrisis:
		return decimal.NewFromFloat(0.6)
	case tc.RiskOffLevel >= 2:
		return decimal.NewFromFloat(0.8)
	default:
		return decimal.NewFromFloat(1.0)
	}
}

func (m *Monitor) pollOnce(ctx context.Context, tracked map[model.StockCode]bool) {
	portfolio, err := m.gw.GetBalance(ctx)
	if err != nil {
		slog.Error("monitor balance fetch failed", "error", err)
		return
	}

	regime := model.RegimeNeutral
	macroStopMult := decimal.NewFromFloat(1.0)
	if tc, err := m.cache.GetTradingContext(ctx); err == nil {
		regime = tc.Regime
		macroStopMult = macroStopMultiplier(tc)
	}

	if err := m.cache.SetPositions(ctx, portfolio.Positions); err != nil {
		slog.Warn("publish live positions failed", "error", err)
	}

	for _, p := range portfolio.Positions {
		tracked[p.StockCode] = true
		enriched := m.enrich(ctx, p)

		sig := exitchain.Evaluate(enriched, regime, m.cfg, macroStopMult)
		if sig == nil {
			continue
		}

		m.onFire(ctx, enriched, sig)
	}
}

// enrich fills in the fields exitchain.Evaluate needs but the
// Gateway's raw position snapshot does not carry on its own: high
// watermark, scale-out level, RSI-sold flag, holding days, and RSI.
func (m *Monitor) enrich(ctx context.Context, p model.Position) model.Position {
	code := p.StockCode

	watermark, ok, err := m.cache.GetWatermark(ctx, code)
	if err != nil || !ok || watermark.LessThan(p.CurrentPrice) {
		watermark = p.CurrentPrice
	}
	if watermark.LessThan(p.AverageBuyPrice) {
		watermark = p.AverageBuyPrice
	}
	if err := m.cache.SetWatermark(ctx, code, watermark); err != nil {
		slog.Warn("set watermark failed", "stock_code", code, "error", err)
	}
	p.HighWatermark = watermark

	if !p.AverageBuyPrice.IsZero() {
		p.HighProfitPct = watermark.Sub(p.AverageBuyPrice).Div(p.AverageBuyPrice).Mul(decimal.NewFromInt(100))
	}

	level, err := m.cache.GetScaleOutLevel(ctx, code)
	if err == nil {
		p.ScaleOutLevel = level
	}

	rsiSold, err := m.cache.RSISold(ctx, code)
	if err == nil {
		p.RSISold = rsiSold
	}

	if !p.BuyDate.IsZero() {
		p.HoldingDays = int(time.Since(p.BuyDate).Hours() / 24)
	}

	if p.ATR.IsZero() {
		p.ATR = p.CurrentPrice.Mul(ATRFallbackPct)
	}

	if closes, err := m.gw.GetDailyPrices(ctx, code, dailyHistoryLen); err == nil && len(closes) > rsiPeriod {
		bars := make([]model.MinuteBar, len(closes))
		for i, c := range closes {
			bars[i] = model.MinuteBar{StockCode: code, Close: c}
		}
		if rsi, ok := indicator.RSI(bars, rsiPeriod); ok {
			p.RSI = rsi
			p.HasRSI = true
		}
	}

	return p
}

func (m *Monitor) onFire(ctx context.Context, p model.Position, sig *exitchain.Signal) {
	order := model.SellOrder{
		StockCode:   p.StockCode,
		Rule:        sig.Rule,
		QuantityPct: sig.QuantityPct,
		Reason:      sig.Reason,
		Price:       p.CurrentPrice,
		EmittedAt:   time.Now(),
	}
	if _, err := m.bus.Publish(ctx, bus.StreamSell, order); err != nil {
		slog.Error("publish sell order failed", "stock_code", p.StockCode, "error", err)
		return
	}

	if sig.Reason == "PROFIT_TARGET" && sig.QuantityPct.LessThan(decimal.NewFromInt(100)) {
		if err := m.cache.SetScaleOutLevel(ctx, p.StockCode, p.ScaleOutLevel+1); err != nil {
			slog.Warn("advance scale-out level failed", "stock_code", p.StockCode, "error", err)
		}
	}
	if sig.Reason == "RSI_OVERBOUGHT" {
		if err := m.cache.SetRSISold(ctx, p.StockCode); err != nil {
			slog.Warn("set rsi-sold failed", "stock_code", p.StockCode, "error", err)
		}
	}

	slog.Info("exit rule fired", "stock_code", p.StockCode, "rule", sig.Rule, "reason", sig.Reason,
		"quantity_pct", sig.QuantityPct.StringFixed(0), "description", sig.Description)
}

// OnTick re-evaluates the exit chain for one stock code against the
// last polled position snapshot, updated in place with the tick's
// price — a cheap reactive check between full poll cycles that avoids
// a Gateway balance call per tick.
func (m *Monitor) OnTick(ctx context.Context, tick model.PriceTick) {
	positions, err := m.cache.GetPositions(ctx)
	if err != nil {
		return
	}
	for _, p := range positions {
		if p.StockCode != tick.StockCode {
			continue
		}
		p.CurrentPrice = tick.Price
		if !p.AverageBuyPrice.IsZero() {
			p.ProfitPct = p.CurrentPrice.Sub(p.AverageBuyPrice).Div(p.AverageBuyPrice).Mul(decimal.NewFromInt(100))
		}

		regime := model.RegimeNeutral
		macroStopMult := decimal.NewFromFloat(1.0)
		if tc, err := m.cache.GetTradingContext(ctx); err == nil {
			regime = tc.Regime
			macroStopMult = macroStopMultiplier(tc)
		}

		enriched := m.enrich(ctx, p)
		if sig := exitchain.Evaluate(enriched, regime, m.cfg, macroStopMult); sig != nil {
			m.onFire(ctx, enriched, sig)
		}
		return
	}
}

// reconcile purges watermark/scale-out/RSI-sold state for any
// previously tracked code the venue no longer reports a holding for —
// covers the case where a position exited outside the sell executor's
// own cleanup path (e.g. a manual liquidation at the broker).
func (m *Monitor) reconcile(ctx context.Context, tracked map[model.StockCode]bool) {
	portfolio, err := m.gw.GetBalance(ctx)
	if err != nil {
		slog.Error("monitor reconcile balance fetch failed", "error", err)
		return
	}
	held := make(map[model.StockCode]bool, len(portfolio.Positions))
	for _, p := range portfolio.Positions {
		held[p.StockCode] = true
	}
	for code := range tracked {
		if held[code] {
			continue
		}
		if err := m.cache.ClearPositionState(ctx, code); err != nil {
			slog.Warn("reconcile clear position state failed", "stock_code", code, "error", err)
		}
		delete(tracked, code)
		slog.Info("reconciled stale position metadata", "stock_code", code)
	}
}

func (m *Monitor) logStatus(ctx context.Context, tracked map[model.StockCode]bool) {
	status := map[string]interface{}{
		"tracked_positions": len(tracked),
		"checked_at":        time.Now().UTC(),
	}
	if err := m.cache.Set(ctx, m.statusKey, status, 10*time.Minute); err != nil {
		slog.Warn("publish monitor status failed", "error", err)
		return
	}
	slog.Info("price monitor status", "tracked_positions", len(tracked))
}
