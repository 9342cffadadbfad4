// Package guard implements the Portfolio Guard: the ordered set of
// concentration and cash checks a candidate buy must clear before the
// buy executor sizes and submits it. Grounded on this system's
// original portfolio guard, which runs sector stock-count, sector
// value concentration, single-stock value concentration, and cash
// floor checks in that order, short-circuiting on the first failure.
// spec.md §4.4 step 9(a) and §6.4 also require a total position-count
// cap and a daily buy cap that the original portfolio guard leaves to
// other components; this package runs the position-count check first
// and the daily buy cap last, bracketing the original's four checks.
package guard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// Limits holds the static caps used when no dynamic override applies.
// The cash floor is regime-dependent (see cashFloorPct) rather than a
// single static fraction, so it is not part of this struct.
type Limits struct {
	MaxPortfolioSize    int
	MaxSectorStockCount int
	MaxSectorValuePct   decimal.Decimal // fraction of total assets, e.g. 0.30
	MaxStockValuePct    decimal.Decimal // fraction of total assets, e.g. 0.15
	MaxDailyBuys        int
}

// DefaultLimits matches the original system's defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPortfolioSize:    10,
		MaxSectorStockCount: 4,
		MaxSectorValuePct:   decimal.NewFromFloat(0.30),
		MaxStockValuePct:    decimal.NewFromFloat(0.15),
		MaxDailyBuys:        5,
	}
}

// cashFloorPct returns the minimum fraction of total assets that must
// remain in cash after a candidate buy, by macro regime: calmer
// regimes tolerate less cash cushion, risk-off regimes demand more.
func cashFloorPct(regime model.MarketRegime) decimal.Decimal {
	switch regime {
	case model.RegimeStrongBull, model.RegimeBull:
		return decimal.NewFromFloat(0.10)
	case model.RegimeBear, model.RegimeStrongBear:
		return decimal.NewFromFloat(0.25)
	default:
		return decimal.NewFromFloat(0.15)
	}
}

// Result is the outcome of running all guard checks.
type Result struct {
	Passed bool
	Gate   string
	Reason string
}

func pass() Result { return Result{Passed: true} }

func fail(gate, reason string) Result {
	return Result{Passed: false, Gate: gate, Reason: reason}
}

// SectorBudgetFn resolves the dynamic per-sector stock-count cap for a
// sector, returning ok=false when no override is published — the
// caller then falls back to Limits.MaxSectorStockCount.
type SectorBudgetFn func(sector string) (cap int, ok bool)

// Check runs the position-count, sector, cash, and daily-buy-cap
// checks in order against the given candidate order value, portfolio
// state, and macro regime, short-circuiting on the first failure.
func Check(candidateSector string, candidateValue decimal.Decimal, portfolio model.PortfolioState, regime model.MarketRegime, limits Limits, sectorBudget SectorBudgetFn) Result {
	if r := checkPositionCount(portfolio, limits); !r.Passed {
		return r
	}
	if r := checkSectorStockCount(candidateSector, portfolio, limits, sectorBudget); !r.Passed {
		return r
	}
	if r := checkSectorValue(candidateSector, candidateValue, portfolio, regime, limits); !r.Passed {
		return r
	}
	if r := checkStockValue(candidateValue, portfolio, regime, limits); !r.Passed {
		return r
	}
	if r := checkCashFloor(candidateValue, portfolio, regime); !r.Passed {
		return r
	}
	if portfolio.BuysToday >= limits.MaxDailyBuys {
		return fail("daily_buy_cap", fmt.Sprintf("already made %d buys today (cap %d)", portfolio.BuysToday, limits.MaxDailyBuys))
	}
	return pass()
}

func checkPositionCount(p model.PortfolioState, limits Limits) Result {
	count := len(p.Positions)
	if count >= limits.MaxPortfolioSize {
		return fail("portfolio_size", fmt.Sprintf("portfolio already holds %d positions (cap %d)", count, limits.MaxPortfolioSize))
	}
	return pass()
}

func checkSectorStockCount(sector string, p model.PortfolioState, limits Limits, sectorBudget SectorBudgetFn) Result {
	cap := limits.MaxSectorStockCount
	if sectorBudget != nil {
		if dyn, ok := sectorBudget(sector); ok {
			cap = dyn
		}
	}
	count := p.SectorStockCount[sector]
	if count >= cap {
		return fail("sector_stock_count", fmt.Sprintf("sector %s already holds %d stocks (cap %d)", sector, count, cap))
	}
	return pass()
}

func checkSectorValue(sector string, candidateValue decimal.Decimal, p model.PortfolioState, regime model.MarketRegime, limits Limits) Result {
	if p.TotalAssets.IsZero() {
		return pass()
	}
	cap := limits.MaxSectorValuePct
	if regime == model.RegimeStrongBull {
		cap = decimal.NewFromFloat(0.50)
	}
	projected := p.SectorValue[sector].Add(candidateValue)
	ratio := projected.Div(p.TotalAssets)
	if ratio.GreaterThan(cap) {
		return fail("sector_value_concentration", fmt.Sprintf("sector %s would reach %s%% of assets (cap %s%%)", sector, pct(ratio), pct(cap)))
	}
	return pass()
}

func checkStockValue(candidateValue decimal.Decimal, p model.PortfolioState, regime model.MarketRegime, limits Limits) Result {
	if p.TotalAssets.IsZero() {
		return pass()
	}
	cap := limits.MaxStockValuePct
	if regime == model.RegimeStrongBull {
		cap = decimal.NewFromFloat(0.25)
	}
	ratio := candidateValue.Div(p.TotalAssets)
	if ratio.GreaterThan(cap) {
		return fail("stock_value_concentration", fmt.Sprintf("position would reach %s%% of assets (cap %s%%)", pct(ratio), pct(cap)))
	}
	return pass()
}

func checkCashFloor(candidateValue decimal.Decimal, p model.PortfolioState, regime model.MarketRegime) Result {
	if p.TotalAssets.IsZero() {
		return pass()
	}
	floorPct := cashFloorPct(regime)
	remainingCash := p.Cash.Sub(candidateValue)
	floor := p.TotalAssets.Mul(floorPct)
	if remainingCash.LessThan(floor) {
		return fail("cash_floor", fmt.Sprintf("remaining cash %s%% would fall below floor %s%% (%s)", pct(remainingCash.Div(p.TotalAssets)), pct(floorPct), regime))
	}
	return pass()
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(1)
}
