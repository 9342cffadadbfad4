// Package sizing computes how many shares to buy for a signal that has
// cleared the risk gates and the portfolio guard. It implements the
// original system's ATR risk-parity model: risk 1% of total assets per
// position (scaled by a sector multiplier), derive a share count from
// the ATR-implied risk per share, cap it by a hybrid-score tier
// ceiling and by a cash-reserve floor, then scale by a regime
// multiplier. A "smart skip" avoids opening a position too small
// to matter when cash is tight, and a portfolio-heat cap bounds
// aggregate open risk across all positions.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

var (
	baseRiskPct       = decimal.NewFromFloat(0.01)
	cashKeepPct       = decimal.NewFromFloat(0.10)
	riskPerShareMult  = decimal.NewFromFloat(2.0)
	portfolioHeatCap  = decimal.NewFromFloat(0.05)
	smartSkipFraction = decimal.NewFromFloat(0.5)
)

// Input bundles everything the sizer needs to compute a quantity.
type Input struct {
	Portfolio    model.PortfolioState
	Regime       model.MarketRegime
	Signal       model.BuySignal
	SectorMult   decimal.Decimal // e.g. 1.0 normally, <1 for crowded sectors
	OpenRiskSum  decimal.Decimal // Σ (position value * stop distance %) across held positions
}

// Result is the sizer's decision.
type Result struct {
	Quantity int64
	Skip     bool
	Reason   string
}

// tierCeiling returns the maximum position size as a fraction of total
// assets for a hybrid score, using the original's wider tier table:
// scores at or above 80 get an 18% ceiling, everything else 12%.
func tierCeiling(hybridScore decimal.Decimal) decimal.Decimal {
	if hybridScore.GreaterThanOrEqual(decimal.NewFromInt(80)) {
		return decimal.NewFromFloat(0.18)
	}
	return decimal.NewFromFloat(0.12)
}

// regimeMultiplier scales the target size by the macro position
// multiplier, defaulting to 1 for regimes that don't specify one.
func regimeMultiplier(regime model.MarketRegime) decimal.Decimal {
	switch regime {
	case model.RegimeStrongBull:
		return decimal.NewFromFloat(1.2)
	case model.RegimeBull:
		return decimal.NewFromFloat(1.0)
	case model.RegimeNeutral:
		return decimal.NewFromFloat(0.8)
	case model.RegimeBear:
		return decimal.NewFromFloat(0.5)
	case model.RegimeStrongBear:
		return decimal.NewFromFloat(0.0)
	default:
		return decimal.NewFromFloat(1.0)
	}
}

// Calculate returns the number of shares to buy, or Skip=true with a
// reason when no position should be opened.
func Calculate(in Input) Result {
	price := in.Signal.Price
	atr := in.Signal.ATR
	if price.IsZero() || atr.IsZero() {
		return Result{Skip: true, Reason: "missing price or ATR"}
	}

	totalAssets := in.Portfolio.TotalAssets
	if totalAssets.IsZero() {
		return Result{Skip: true, Reason: "zero total assets"}
	}

	sectorMult := in.SectorMult
	if sectorMult.IsZero() {
		sectorMult = decimal.NewFromInt(1)
	}

	effectiveRiskPct := baseRiskPct.Mul(sectorMult)
	riskAmount := totalAssets.Mul(effectiveRiskPct)
	riskPerShare := atr.Mul(riskPerShareMult)
	if riskPerShare.IsZero() {
		return Result{Skip: true, Reason: "zero ATR-implied risk per share"}
	}

	targetQty := riskAmount.Div(riskPerShare)

	ceilingPct := tierCeiling(in.Signal.HybridScore)
	maxByPct := totalAssets.Mul(ceilingPct).Div(price)
	if targetQty.GreaterThan(maxByPct) {
		targetQty = maxByPct
	}

	cashKeepFloor := totalAssets.Mul(cashKeepPct)
	spendableCash := in.Portfolio.Cash.Sub(cashKeepFloor)
	if spendableCash.IsNegative() {
		spendableCash = decimal.Zero
	}
	maxByCash := spendableCash.Div(price)
	if targetQty.GreaterThan(maxByCash) {
		targetQty = maxByCash
	}

	regimeMult := regimeMultiplier(in.Regime)
	targetQty = targetQty.Mul(regimeMult)

	if targetQty.LessThanOrEqual(decimal.Zero) {
		return Result{Skip: true, Reason: "sizing collapsed to zero shares"}
	}

	// Smart skip: if cash can't cover even half the risk-parity target,
	// the resulting position is too small to be worth the slot.
	fullTargetValue := riskAmount.Div(riskPerShare).Mul(price)
	if spendableCash.LessThan(fullTargetValue.Mul(smartSkipFraction)) {
		return Result{Skip: true, Reason: "cash allows less than half the risk-parity target size"}
	}

	// Portfolio heat: reject if this position's risk would push
	// aggregate open risk over the cap.
	thisRisk := targetQty.Mul(riskPerShare)
	heatCapAmount := totalAssets.Mul(portfolioHeatCap)
	if in.OpenRiskSum.Add(thisRisk).GreaterThan(heatCapAmount) {
		return Result{Skip: true, Reason: "would exceed portfolio risk-heat cap"}
	}

	qty := targetQty.Floor().IntPart()
	if qty <= 0 {
		return Result{Skip: true, Reason: "rounded down to zero shares"}
	}
	return Result{Quantity: qty}
}
