package guard

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func basePortfolio() model.PortfolioState {
	return model.PortfolioState{
		Cash:             d(30_000_000),
		TotalAssets:      d(100_000_000),
		SectorValue:      map[string]decimal.Decimal{"semiconductor": d(10_000_000)},
		SectorStockCount: map[string]int{"semiconductor": 2},
		BuysToday:        1,
	}
}

func TestCheck_Passes(t *testing.T) {
	r := Check("semiconductor", d(5_000_000), basePortfolio(), model.RegimeNeutral, DefaultLimits(), nil)
	if !r.Passed {
		t.Fatalf("expected pass, got block at %s: %s", r.Gate, r.Reason)
	}
}

func TestCheck_SectorStockCountBlocked(t *testing.T) {
	p := basePortfolio()
	p.SectorStockCount["semiconductor"] = 4
	r := Check("semiconductor", d(1_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "sector_stock_count" {
		t.Fatalf("expected sector_stock_count block, got %+v", r)
	}
}

func TestCheck_SectorStockCountDynamicOverride(t *testing.T) {
	p := basePortfolio()
	p.SectorStockCount["semiconductor"] = 4
	override := func(sector string) (int, bool) { return 6, true }
	r := Check("semiconductor", d(1_000_000), p, model.RegimeNeutral, DefaultLimits(), override)
	if !r.Passed {
		t.Fatalf("dynamic override should have allowed the buy, got %+v", r)
	}
}

func TestCheck_SectorValueConcentrationBlocked(t *testing.T) {
	p := basePortfolio()
	p.SectorValue["semiconductor"] = d(25_000_000)
	// 25M + 10M candidate = 35M / 100M = 35% > 30% default cap.
	r := Check("semiconductor", d(10_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "sector_value_concentration" {
		t.Fatalf("expected sector_value_concentration block, got %+v", r)
	}
}

func TestCheck_SectorValueConcentrationRelaxedInStrongBull(t *testing.T) {
	p := basePortfolio()
	p.SectorValue["semiconductor"] = d(25_000_000)
	// Same 35% ratio, but STRONG_BULL raises the cap to 50%.
	r := Check("semiconductor", d(10_000_000), p, model.RegimeStrongBull, DefaultLimits(), nil)
	if !r.Passed {
		t.Fatalf("expected pass under STRONG_BULL relaxed cap, got %+v", r)
	}
}

func TestCheck_StockValueConcentrationBlocked(t *testing.T) {
	p := basePortfolio()
	// 16M / 100M = 16% > 15% default cap.
	r := Check("battery", d(16_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "stock_value_concentration" {
		t.Fatalf("expected stock_value_concentration block, got %+v", r)
	}
}

func TestCheck_CashFloorRegimeDependent(t *testing.T) {
	p := basePortfolio()
	p.Cash = d(12_000_000) // 12% of total assets

	// NEUTRAL requires 15% floor: 12M - 5M candidate leaves 7% < 15% -> blocked.
	r := Check("battery", d(5_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "cash_floor" {
		t.Fatalf("expected cash_floor block under NEUTRAL, got %+v", r)
	}

	// BULL only requires a 10% floor: 12M - 1M leaves 11% >= 10% -> passes.
	r2 := Check("battery", d(1_000_000), p, model.RegimeBull, DefaultLimits(), nil)
	if !r2.Passed {
		t.Fatalf("expected pass under BULL's relaxed cash floor, got %+v", r2)
	}
}

func TestCheck_DailyBuyCapBlocked(t *testing.T) {
	p := basePortfolio()
	p.BuysToday = 5
	r := Check("semiconductor", d(1_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "daily_buy_cap" {
		t.Fatalf("expected daily_buy_cap block, got %+v", r)
	}
}

func TestCheck_PortfolioSizeBlocked(t *testing.T) {
	p := basePortfolio()
	p.Positions = make([]model.Position, 10)
	r := Check("semiconductor", d(1_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if r.Passed || r.Gate != "portfolio_size" {
		t.Fatalf("expected portfolio_size block, got %+v", r)
	}
}

func TestCheck_ZeroTotalAssetsSkipsRatioChecks(t *testing.T) {
	p := basePortfolio()
	p.TotalAssets = decimal.Zero
	r := Check("semiconductor", d(1_000_000), p, model.RegimeNeutral, DefaultLimits(), nil)
	if !r.Passed {
		t.Fatalf("expected pass when total assets is zero (division-by-zero guard), got %+v", r)
	}
}
