// Package exitchain implements the ordered sell-condition chain the
// Price Monitor evaluates for every held position on every tick. The
// twelve rules run in a fixed priority order and the first one that
// fires wins; ties are impossible by construction since each rule
// either fires or yields. Grounded directly on this system's original
// exit-rule engine — same order, same thresholds, same ATR-relative
// dynamic profit-lock triggers, and the same tightening of ATR-stop
// and trailing-take-profit distances when a MACD-bearish or
// death-cross technical warning is active.
package exitchain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// Config holds the tunable thresholds for the chain, matching the
// original system's sell config defaults.
type Config struct {
	HardStopPct               decimal.Decimal
	ProfitLockL1Min           decimal.Decimal
	ProfitLockL1Mult          decimal.Decimal
	ProfitLockL1Max           decimal.Decimal
	ProfitLockL1Floor         decimal.Decimal
	ProfitLockL2Min           decimal.Decimal
	ProfitLockL2Mult          decimal.Decimal
	ProfitLockL2Max           decimal.Decimal
	ProfitLockL2Floor         decimal.Decimal
	BreakevenEnabled          bool
	BreakevenActivationPct    decimal.Decimal
	BreakevenFloorPct         decimal.Decimal
	ATRMultiplier             decimal.Decimal
	StopLossPct               decimal.Decimal
	TimeTightenEnabled        bool
	TimeTightenStartDaysBull  int
	TimeTightenStartDays      int
	TimeTightenMaxReductionPct decimal.Decimal
	MaxHoldingDays            int
	TrailingEnabled           bool
	TrailingActivationPct     decimal.Decimal
	TrailingDropFromHighPct   decimal.Decimal
	TrailingMinProfitPct      decimal.Decimal
	ScaleOutEnabled           bool
	ScaleOutLevels            map[model.MarketRegime][]ScaleOutLevel
	MinTransactionAmount      decimal.Decimal
	MinSellQuantity           int64
	RSIOverboughtThreshold    decimal.Decimal
	RSIMinProfitPct           decimal.Decimal
	ProfitTargetPct           decimal.Decimal
}

// ScaleOutLevel is one rung of the scale-out ladder: sell SellPct of
// the position once profit reaches TargetPct.
type ScaleOutLevel struct {
	TargetPct decimal.Decimal
	SellPct   decimal.Decimal
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// bullLevels, sidewaysLevels, and bearLevels are the three
// regime-specific scale-out ladders: bull markets let winners run
// further before trimming, bear markets take profit earlier and in
// smaller, more frequent slices.
var (
	bullLevels = []ScaleOutLevel{
		{TargetPct: d(7), SellPct: d(25)},
		{TargetPct: d(15), SellPct: d(25)},
		{TargetPct: d(25), SellPct: d(15)},
	}
	sidewaysLevels = []ScaleOutLevel{
		{TargetPct: d(3), SellPct: d(25)},
		{TargetPct: d(7), SellPct: d(25)},
		{TargetPct: d(12), SellPct: d(25)},
		{TargetPct: d(18), SellPct: d(15)},
	}
	bearLevels = []ScaleOutLevel{
		{TargetPct: d(2), SellPct: d(25)},
		{TargetPct: d(5), SellPct: d(25)},
		{TargetPct: d(8), SellPct: d(25)},
		{TargetPct: d(12), SellPct: d(15)},
	}
)

// DefaultConfig matches the original system's defaults.
func DefaultConfig() Config {
	return Config{
		HardStopPct:                d(-10.0),
		ProfitLockL1Min:            d(1.5),
		ProfitLockL1Mult:           d(1.5),
		ProfitLockL1Max:            d(3.0),
		ProfitLockL1Floor:          d(0.2),
		ProfitLockL2Min:            d(3.0),
		ProfitLockL2Mult:           d(2.5),
		ProfitLockL2Max:            d(5.0),
		ProfitLockL2Floor:          d(1.0),
		BreakevenEnabled:           true,
		BreakevenActivationPct:     d(3.0),
		BreakevenFloorPct:          d(0.3),
		ATRMultiplier:              d(2.0),
		StopLossPct:                d(5.0),
		TimeTightenEnabled:         true,
		TimeTightenStartDaysBull:   15,
		TimeTightenStartDays:       10,
		TimeTightenMaxReductionPct: d(2.0),
		MaxHoldingDays:             30,
		TrailingEnabled:            true,
		TrailingActivationPct:      d(5.0),
		TrailingDropFromHighPct:    d(3.5),
		TrailingMinProfitPct:       d(3.0),
		ScaleOutEnabled:            true,
		ScaleOutLevels: map[model.MarketRegime][]ScaleOutLevel{
			model.RegimeStrongBull: bullLevels,
			model.RegimeBull:       bullLevels,
			model.RegimeNeutral:    sidewaysLevels,
			model.RegimeBear:       bearLevels,
			model.RegimeStrongBear: bearLevels,
		},
		MinTransactionAmount:   d(500_000),
		MinSellQuantity:        50,
		RSIOverboughtThreshold: d(75),
		RSIMinProfitPct:        d(3.0),
		ProfitTargetPct:        d(10.0),
	}
}

// Signal is the chain's verdict: sell QuantityPct of the position for
// Rule/Reason, or nil (no rule fired).
type Signal struct {
	Rule        string
	Reason      string
	QuantityPct decimal.Decimal
	Description string
}

// check is one rule; it returns nil when it does not fire.
type check func(model.Position, model.MarketRegime, Config, decimal.Decimal) *Signal

// Evaluate runs the twelve rules in priority order against position
// and returns the first that fires. macroStopMult widens or tightens
// the ATR-stop and fixed-stop distances under macro risk-off
// conditions (1.0 = no adjustment).
func Evaluate(pos model.Position, regime model.MarketRegime, cfg Config, macroStopMult decimal.Decimal) *Signal {
	checks := []check{
		checkHardStop,
		checkProfitFloor,
		checkProfitLock,
		checkBreakevenStop,
		checkATRStop,
		checkFixedStop,
		checkTrailingTakeProfit,
		checkScaleOut,
		checkRSIOverbought,
		checkProfitTarget,
		checkDeathCross,
		checkTimeExit,
	}
	for _, c := range checks {
		if sig := c(pos, regime, cfg, macroStopMult); sig != nil {
			return sig
		}
	}
	return nil
}

func full(rule, reason, desc string) *Signal {
	return &Signal{Rule: rule, Reason: reason, QuantityPct: decimal.NewFromInt(100), Description: desc}
}

// [0] Hard stop: -10% or worse triggers an immediate full exit
// regardless of any other signal, covering gap-down risk.
func checkHardStop(p model.Position, _ model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if p.ProfitPct.LessThanOrEqual(cfg.HardStopPct) {
		return full("hard_stop", "STOP_LOSS", fmt.Sprintf("hard stop: %s%% <= %s%%", p.ProfitPct.StringFixed(1), cfg.HardStopPct.StringFixed(1)))
	}
	return nil
}

// [1] Profit floor: once the profit-floor guard has been armed
// upstream (profit reached the arming threshold), a drop below the
// floor level exits fully.
func checkProfitFloor(p model.Position, _ model.MarketRegime, _ Config, _ decimal.Decimal) *Signal {
	if !p.ProfitFloorActive {
		return nil
	}
	if p.ProfitPct.LessThan(p.ProfitFloorLevel) {
		return full("profit_floor", "PROFIT_FLOOR", fmt.Sprintf("profit floor: %s%% < floor %s%%", p.ProfitPct.StringFixed(1), p.ProfitFloorLevel.StringFixed(1)))
	}
	return nil
}

// [2] Profit lock: ATR-relative dynamic triggers. L2 protects large
// gains, L1 protects early gains; both compare the position's
// high-water profit against a trigger derived from ATR% of buy price,
// clamped to a floor/ceiling band.
func checkProfitLock(p model.Position, _ model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if p.AverageBuyPrice.LessThanOrEqual(decimal.Zero) || p.ATR.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	atrPct := p.ATR.Div(p.AverageBuyPrice).Mul(decimal.NewFromInt(100))

	l2Trigger := clamp(atrPct.Mul(cfg.ProfitLockL2Mult), cfg.ProfitLockL2Min, cfg.ProfitLockL2Max)
	if p.HighProfitPct.GreaterThanOrEqual(l2Trigger) && p.ProfitPct.LessThan(cfg.ProfitLockL2Floor) {
		return full("profit_lock_l2", "TRAILING_STOP", fmt.Sprintf("profit lock L2: high=%s%% >= trigger=%s%% -> now=%s%% < floor=%s%%",
			p.HighProfitPct.StringFixed(1), l2Trigger.StringFixed(1), p.ProfitPct.StringFixed(1), cfg.ProfitLockL2Floor.StringFixed(1)))
	}

	l1Trigger := clamp(atrPct.Mul(cfg.ProfitLockL1Mult), cfg.ProfitLockL1Min, cfg.ProfitLockL1Max)
	if p.HighProfitPct.GreaterThanOrEqual(l1Trigger) && p.ProfitPct.LessThan(cfg.ProfitLockL1Floor) {
		return full("profit_lock_l1", "TRAILING_STOP", fmt.Sprintf("profit lock L1: high=%s%% >= trigger=%s%% -> now=%s%% < floor=%s%%",
			p.HighProfitPct.StringFixed(1), l1Trigger.StringFixed(1), p.ProfitPct.StringFixed(1), cfg.ProfitLockL1Floor.StringFixed(1)))
	}
	return nil
}

func clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}

// [2.5] Breakeven stop: once profit has ever reached the activation
// threshold, a drop below the (small, near-zero) floor exits fully —
// protects against giving back an early, modest gain entirely.
func checkBreakevenStop(p model.Position, _ model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if !cfg.BreakevenEnabled {
		return nil
	}
	if p.HighProfitPct.GreaterThanOrEqual(cfg.BreakevenActivationPct) && p.ProfitPct.LessThan(cfg.BreakevenFloorPct) {
		return full("breakeven_stop", "BREAKEVEN_STOP", fmt.Sprintf("breakeven stop: high=%s%% >= %s%%, now=%s%% < floor=%s%%",
			p.HighProfitPct.StringFixed(1), cfg.BreakevenActivationPct.StringFixed(1), p.ProfitPct.StringFixed(1), cfg.BreakevenFloorPct.StringFixed(1)))
	}
	return nil
}

// [3] ATR stop: price falling to buy_price - ATR*mult triggers a stop.
// A MACD-bearish warning tightens the multiplier by 0.75x; a death
// cross (checked only if MACD isn't already bearish) tightens it by
// 0.8x — both fire the stop sooner under a bearish technical warning.
func checkATRStop(p model.Position, _ model.MarketRegime, cfg Config, macroStopMult decimal.Decimal) *Signal {
	if p.ATR.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	atrMult := cfg.ATRMultiplier.Mul(macroStopMult)
	if p.MACDBearish {
		atrMult = atrMult.Mul(decimal.NewFromFloat(0.75))
	} else if p.DeathCross {
		atrMult = atrMult.Mul(decimal.NewFromFloat(0.8))
	}

	stopPrice := p.AverageBuyPrice.Sub(p.ATR.Mul(atrMult))
	if p.CurrentPrice.LessThanOrEqual(stopPrice) {
		return full("atr_stop", "STOP_LOSS", fmt.Sprintf("ATR stop: price %s <= %s (ATR=%s, mult=%s)",
			p.CurrentPrice.StringFixed(0), stopPrice.StringFixed(0), p.ATR.StringFixed(0), atrMult.StringFixed(2)))
	}
	return nil
}

// [4] Fixed stop: a flat loss percentage, tightened gradually once
// holding days exceed a regime-dependent grace period (bull regimes
// get a longer grace period to ride out a second momentum leg).
func checkFixedStop(p model.Position, regime model.MarketRegime, cfg Config, macroStopMult decimal.Decimal) *Signal {
	threshold := cfg.StopLossPct.Neg().Mul(macroStopMult)

	startDays := cfg.TimeTightenStartDays
	if regime == model.RegimeStrongBull || regime == model.RegimeBull {
		startDays = cfg.TimeTightenStartDaysBull
	}

	if cfg.TimeTightenEnabled && p.HoldingDays > startDays {
		daysOver := decimal.NewFromInt(int64(p.HoldingDays - startDays))
		maxSpan := cfg.MaxHoldingDays - startDays
		if maxSpan > 0 {
			tighten := decimal.Min(cfg.TimeTightenMaxReductionPct, cfg.TimeTightenMaxReductionPct.Mul(daysOver).Div(decimal.NewFromInt(int64(maxSpan))))
			threshold = threshold.Add(tighten)
		}
	}

	if p.ProfitPct.LessThanOrEqual(threshold) {
		return full("fixed_stop", "STOP_LOSS", fmt.Sprintf("fixed stop: %s%% <= %s%% (day %d)", p.ProfitPct.StringFixed(1), threshold.StringFixed(1), p.HoldingDays))
	}
	return nil
}

// [5] Trailing take-profit: once high-water profit clears an
// activation threshold (lowered under a MACD-bearish or death-cross
// warning so trailing kicks in sooner), a pullback from the high past
// a regime-dependent drop percentage exits fully.
func checkTrailingTakeProfit(p model.Position, regime model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if !cfg.TrailingEnabled {
		return nil
	}

	activation := cfg.TrailingActivationPct
	if p.MACDBearish {
		activation = activation.Mul(decimal.NewFromFloat(0.8))
	} else if p.DeathCross {
		activation = activation.Mul(decimal.NewFromFloat(0.7))
	}

	if p.HighProfitPct.LessThan(activation) {
		return nil
	}

	dropPct := cfg.TrailingDropFromHighPct
	switch regime {
	case model.RegimeStrongBull, model.RegimeBull:
		dropPct = decimal.NewFromInt(3)
	case model.RegimeStrongBear:
		dropPct = decimal.NewFromInt(4)
	}

	trailingStop := p.HighWatermark.Mul(decimal.NewFromInt(1).Sub(dropPct.Div(decimal.NewFromInt(100))))
	if p.CurrentPrice.LessThanOrEqual(trailingStop) && p.ProfitPct.GreaterThanOrEqual(cfg.TrailingMinProfitPct) {
		return full("trailing_tp", "TRAILING_STOP", fmt.Sprintf("trailing TP: price %s <= %s (high=%s, drop=%s%%)",
			p.CurrentPrice.StringFixed(0), trailingStop.StringFixed(0), p.HighWatermark.StringFixed(0), dropPct.StringFixed(0)))
	}
	return nil
}

// [6] Scale-out: sells a fraction of the position at each rung of a
// regime-specific profit ladder. A minimum-transaction-amount and
// minimum-sell-quantity guard either skips a rung whose sell size is
// too small to matter, upgrades it to a full exit when the remaining
// position would itself be below the minimum, or upgrades it to a
// full exit outright when the whole position is worth less than twice
// the minimum transaction amount.
func checkScaleOut(p model.Position, regime model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if !cfg.ScaleOutEnabled {
		return nil
	}
	levels := cfg.ScaleOutLevels[regime]
	if p.ScaleOutLevel >= len(levels) {
		return nil
	}

	level := levels[p.ScaleOutLevel]
	if p.ProfitPct.LessThan(level.TargetPct) {
		return nil
	}

	sellPct := level.SellPct
	estimatedSell := decimal.NewFromInt(p.Quantity).Mul(sellPct).Div(decimal.NewFromInt(100)).Floor()
	if estimatedSell.LessThan(decimal.NewFromInt(1)) {
		estimatedSell = decimal.NewFromInt(1)
	}
	sellAmount := estimatedSell.Mul(p.CurrentPrice)
	remaining := decimal.NewFromInt(p.Quantity).Sub(estimatedSell)

	if sellAmount.LessThan(cfg.MinTransactionAmount) || estimatedSell.LessThan(decimal.NewFromInt(cfg.MinSellQuantity)) {
		totalAmount := decimal.NewFromInt(p.Quantity).Mul(p.CurrentPrice)
		if totalAmount.LessThan(cfg.MinTransactionAmount.Mul(decimal.NewFromInt(2))) {
			sellPct = decimal.NewFromInt(100)
		} else {
			return nil
		}
	}

	if remaining.LessThan(decimal.NewFromInt(cfg.MinSellQuantity)) && sellPct.LessThan(decimal.NewFromInt(100)) {
		sellPct = decimal.NewFromInt(100)
	}

	return &Signal{
		Rule:        fmt.Sprintf("scale_out_l%d", p.ScaleOutLevel),
		Reason:      "PROFIT_TARGET",
		QuantityPct: sellPct,
		Description: fmt.Sprintf("scale-out L%d: profit %s%% >= %s%% -> sell %s%%", p.ScaleOutLevel, p.ProfitPct.StringFixed(1), level.TargetPct.StringFixed(0), sellPct.StringFixed(0)),
	}
}

// [7] RSI overbought: a partial (50%) exit when RSI has run hot and
// the position is already profitable, fired at most once per position
// via the caller-tracked RSISold flag.
func checkRSIOverbought(p model.Position, _ model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if p.RSISold || !p.HasRSI {
		return nil
	}
	if p.RSI.GreaterThanOrEqual(cfg.RSIOverboughtThreshold) && p.ProfitPct.GreaterThanOrEqual(cfg.RSIMinProfitPct) {
		return &Signal{
			Rule:        "rsi_overbought",
			Reason:      "RSI_OVERBOUGHT",
			QuantityPct: decimal.NewFromInt(50),
			Description: fmt.Sprintf("RSI overbought: RSI=%s >= %s, profit=%s%%", p.RSI.StringFixed(1), cfg.RSIOverboughtThreshold.StringFixed(0), p.ProfitPct.StringFixed(1)),
		}
	}
	return nil
}

// [8] Profit target: a flat take-profit fallback used only when
// trailing take-profit is disabled, since trailing otherwise
// supersedes a fixed target.
func checkProfitTarget(p model.Position, _ model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if cfg.TrailingEnabled {
		return nil
	}
	if p.ProfitPct.GreaterThanOrEqual(cfg.ProfitTargetPct) {
		return full("profit_target", "PROFIT_TARGET", fmt.Sprintf("profit target: %s%% >= %s%%", p.ProfitPct.StringFixed(1), cfg.ProfitTargetPct.StringFixed(1)))
	}
	return nil
}

// [9] Death cross: a confirmed 5MA/20MA bearish crossover on a losing
// position exits fully; a death cross on a still-profitable position
// is left to the trailing/profit-lock rules instead. Disabled in
// BULL/STRONG_BULL, where a single bearish crossover is treated as
// noise against the dominant trend rather than a reversal signal.
func checkDeathCross(p model.Position, regime model.MarketRegime, _ Config, _ decimal.Decimal) *Signal {
	if regime == model.RegimeBull || regime == model.RegimeStrongBull {
		return nil
	}
	if p.DeathCross && p.ProfitPct.LessThan(decimal.Zero) {
		return full("death_cross", "DEATH_CROSS", fmt.Sprintf("death cross: 5MA/20MA bearish crossover, profit=%s%%", p.ProfitPct.StringFixed(1)))
	}
	return nil
}

// [10] Time exit: a position held past the maximum holding period
// exits fully regardless of its P&L.
func checkTimeExit(p model.Position, regime model.MarketRegime, cfg Config, _ decimal.Decimal) *Signal {
	if p.HoldingDays > cfg.MaxHoldingDays {
		return full("time_exit", "TIME_EXIT", fmt.Sprintf("time exit: %dd > %dd (%s)", p.HoldingDays, cfg.MaxHoldingDays, regime))
	}
	return nil
}
