// Risk gates run in a fixed order before any buy signal is emitted.
// Every gate must pass; the first failure short-circuits the chain
// (fail-fast). Grounded on this system's original ten-gate risk-gate
// chain, including the two candlestick-pattern and macro-risk gates
// the distilled spec's nine-gate summary omitted, plus three gates the
// original only enforces at the buy executor's pre-order stage (daily
// buy cap, stop-loss cooldown, sell cooldown) that the specification
// names as scanner-level gates in their own right.
package scanner

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// GateResult is one gate's verdict.
type GateResult struct {
	Passed bool
	Gate   string
	Reason string
}

func gatePass(name string) GateResult { return GateResult{Passed: true, Gate: name} }

func gateFail(name, reason string) GateResult {
	return GateResult{Passed: false, Gate: name, Reason: reason}
}

// GateConfig holds the tunable thresholds for the gate chain.
type GateConfig struct {
	MinRequiredBars      int
	NoTradeWindowStart   time.Duration // offset from midnight KST
	NoTradeWindowEnd     time.Duration
	DangerZoneStart      time.Duration
	DangerZoneEnd        time.Duration
	MaxDailyBuys         int
	RSIGuardMax          decimal.Decimal // SIDEWAYS/BEAR/STRONG_BEAR ceiling
	RSIGuardMaxBull      decimal.Decimal // BULL/STRONG_BULL ceiling
	VolumeRatioWarning   decimal.Decimal
	VWAPDeviationWarning decimal.Decimal
	SignalCooldown       time.Duration
	BlockBearRegimes     bool
}

// DefaultGateConfig matches the original system's defaults, plus the
// specification's regime-split RSI ceiling and the daily buy cap the
// original only enforces downstream at the buy executor.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinRequiredBars:      20,
		NoTradeWindowStart:   9 * time.Hour,
		NoTradeWindowEnd:     9*time.Hour + 15*time.Minute,
		DangerZoneStart:      14 * time.Hour,
		DangerZoneEnd:        15 * time.Hour,
		MaxDailyBuys:         5,
		RSIGuardMax:          decimal.NewFromInt(75),
		RSIGuardMaxBull:      decimal.NewFromInt(85),
		VolumeRatioWarning:   decimal.NewFromFloat(2.0),
		VWAPDeviationWarning: decimal.NewFromFloat(0.02),
		SignalCooldown:       10 * time.Minute,
		BlockBearRegimes:     true,
	}
}

// GateInput bundles everything the chain needs to evaluate one
// candidate at one point in time.
type GateInput struct {
	StockCode      model.StockCode
	Bars           []model.MinuteBar
	CurrentPrice   decimal.Decimal
	RSI            decimal.Decimal
	HasRSI         bool
	VolumeRatio    decimal.Decimal
	HasVolumeRatio bool
	VWAP           decimal.Decimal
	HasVWAP        bool
	Blocked        bool // Scout veto (BLOCKED trade tier)
	Context        model.TradingContext
	LastSignalAt   time.Time
	HasLastSignal  bool
	Now            time.Time // KST wall clock

	// SkipRSIGuard exempts MOMENTUM_CONTINUATION, WATCHLIST_CONVICTION,
	// and ORB_BREAKOUT from the RSI guard alone — every other gate in
	// the chain still applies to those strategies.
	SkipRSIGuard bool

	// BuysToday is the portfolio's buy count for the current session,
	// last published by the buy executor; a cache miss leaves it at
	// zero rather than blocking the chain on stale state.
	BuysToday int

	// InStoplossCooldown and InSellCooldown mirror internal/lock's
	// per-code cooldown sets.
	InStoplossCooldown bool
	InSellCooldown     bool
}

func kstOffset(t time.Time) time.Duration {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err == nil {
		t = t.In(loc)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// RunGates evaluates every gate in order, returning the first failure
// or a passing result.
func RunGates(in GateInput, cfg GateConfig) GateResult {
	gates := []func() GateResult{
		func() GateResult { return checkMinBars(in.Bars, cfg.MinRequiredBars) },
		func() GateResult { return checkNoTradeWindow(in.Now, cfg) },
		func() GateResult { return checkDangerZone(in.Now, cfg) },
		func() GateResult { return checkDailyBuyCap(in.BuysToday, cfg.MaxDailyBuys) },
		func() GateResult { return checkRSIGuard(in.RSI, in.HasRSI && !in.SkipRSIGuard, in.Context.Regime, cfg) },
		func() GateResult { return checkMacroRisk(in.Context) },
		func() GateResult { return checkMarketRegime(in.Context.Regime, cfg.BlockBearRegimes) },
		func() GateResult {
			return checkCombinedRisk(in.VolumeRatio, in.HasVolumeRatio, in.VWAP, in.HasVWAP, in.CurrentPrice, cfg)
		},
		func() GateResult { return checkCooldown(in.LastSignalAt, in.HasLastSignal, in.Now, cfg.SignalCooldown) },
		func() GateResult { return checkStoplossCooldown(in.InStoplossCooldown) },
		func() GateResult { return checkSellCooldown(in.InSellCooldown) },
		func() GateResult { return checkTradeTier(in.Blocked) },
		func() GateResult { return checkMicroTiming(in.Bars) },
	}

	for _, g := range gates {
		if r := g(); !r.Passed {
			return r
		}
	}
	return gatePass("all_gates")
}

func checkMinBars(bars []model.MinuteBar, min int) GateResult {
	if len(bars) >= min {
		return gatePass("min_bars")
	}
	return gateFail("min_bars", fmt.Sprintf("need %d bars, got %d", min, len(bars)))
}

func checkNoTradeWindow(now time.Time, cfg GateConfig) GateResult {
	cur := kstOffset(now)
	if cur >= cfg.NoTradeWindowStart && cur < cfg.NoTradeWindowEnd {
		return gateFail("no_trade_window", "inside opening no-trade window")
	}
	return gatePass("no_trade_window")
}

func checkDangerZone(now time.Time, cfg GateConfig) GateResult {
	cur := kstOffset(now)
	if cur >= cfg.DangerZoneStart && cur < cfg.DangerZoneEnd {
		return gateFail("danger_zone", "inside late-session danger zone")
	}
	return gatePass("danger_zone")
}

// checkDailyBuyCap blocks new entries once the session's buy count has
// reached the portfolio guard's own cap — a scanner-level short-circuit
// so an over-cap candidate never reaches signal emission at all.
func checkDailyBuyCap(buysToday, maxDailyBuys int) GateResult {
	if buysToday >= maxDailyBuys {
		return gateFail("daily_buy_cap", fmt.Sprintf("already made %d buys today (cap %d)", buysToday, maxDailyBuys))
	}
	return gatePass("daily_buy_cap")
}

// checkRSIGuard rejects an overbought candidate, using a looser
// ceiling in BULL/STRONG_BULL where momentum names can run hotter
// before the guard should intervene.
func checkRSIGuard(rsi decimal.Decimal, has bool, regime model.MarketRegime, cfg GateConfig) GateResult {
	if !has {
		return gatePass("rsi_guard")
	}
	max := cfg.RSIGuardMax
	if regime == model.RegimeBull || regime == model.RegimeStrongBull {
		max = cfg.RSIGuardMaxBull
	}
	if rsi.GreaterThan(max) {
		return gateFail("rsi_guard", fmt.Sprintf("RSI %s > %s", rsi.StringFixed(1), max.StringFixed(0)))
	}
	return gatePass("rsi_guard")
}

func checkStoplossCooldown(inCooldown bool) GateResult {
	if inCooldown {
		return gateFail("stoploss_cooldown", "stock is within its post-stop-loss cooldown window")
	}
	return gatePass("stoploss_cooldown")
}

func checkSellCooldown(inCooldown bool) GateResult {
	if inCooldown {
		return gateFail("sell_cooldown", "stock is within its post-sell cooldown window")
	}
	return gatePass("sell_cooldown")
}

func checkMacroRisk(ctx model.TradingContext) GateResult {
	if ctx.RiskOffLevel >= 2 {
		return gateFail("macro_risk", fmt.Sprintf("risk-off level %d", ctx.RiskOffLevel))
	}
	if ctx.IsCrisis {
		return gateFail("macro_risk", "VIX crisis")
	}
	return gatePass("macro_risk")
}

func checkMarketRegime(regime model.MarketRegime, blockBear bool) GateResult {
	if !blockBear {
		return gatePass("market_regime")
	}
	if regime == model.RegimeBear || regime == model.RegimeStrongBear {
		return gateFail("market_regime", fmt.Sprintf("bear market: %s", regime))
	}
	return gatePass("market_regime")
}

func checkCombinedRisk(volumeRatio decimal.Decimal, hasVol bool, vwap decimal.Decimal, hasVWAP bool, price decimal.Decimal, cfg GateConfig) GateResult {
	riskCount := 0
	if hasVol && volumeRatio.GreaterThan(cfg.VolumeRatioWarning) {
		riskCount++
	}
	if hasVWAP && vwap.IsPositive() {
		limit := vwap.Mul(decimal.NewFromInt(1).Add(cfg.VWAPDeviationWarning))
		if price.GreaterThan(limit) {
			riskCount++
		}
	}
	if riskCount >= 2 {
		return gateFail("combined_risk", "volume surge and VWAP deviation both breached")
	}
	return gatePass("combined_risk")
}

func checkCooldown(lastSignal time.Time, has bool, now time.Time, cooldown time.Duration) GateResult {
	if !has {
		return gatePass("cooldown")
	}
	elapsed := now.Sub(lastSignal)
	if elapsed < cooldown {
		return gateFail("cooldown", fmt.Sprintf("%.0fs remaining", (cooldown - elapsed).Seconds()))
	}
	return gatePass("cooldown")
}

func checkTradeTier(blocked bool) GateResult {
	if blocked {
		return gateFail("trade_tier", "BLOCKED tier (scout veto)")
	}
	return gatePass("trade_tier")
}

// checkMicroTiming rejects a Shooting Star (long upper wick, small
// body) or a Bearish Engulfing (a full-bodied red candle swallowing
// the prior green candle) on the most recent bar.
func checkMicroTiming(bars []model.MinuteBar) GateResult {
	if len(bars) < 2 {
		return gatePass("micro_timing")
	}
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	body := last.Close.Sub(last.Open).Abs()
	upperShadow := last.High.Sub(decimal.Max(last.Close, last.Open))
	if body.IsPositive() && upperShadow.GreaterThan(body.Mul(decimal.NewFromInt(2))) {
		return gateFail("micro_timing", "shooting star pattern")
	}

	prevBullish := prev.Close.GreaterThan(prev.Open)
	currBearish := last.Close.LessThan(last.Open)
	if prevBullish && currBearish && last.Open.GreaterThanOrEqual(prev.Close) && last.Close.LessThanOrEqual(prev.Open) {
		return gateFail("micro_timing", "bearish engulfing pattern")
	}

	return gatePass("micro_timing")
}
