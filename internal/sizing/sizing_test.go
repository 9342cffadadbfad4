package sizing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func baseInput() Input {
	return Input{
		Portfolio: model.PortfolioState{
			Cash:        d(50_000_000),
			TotalAssets: d(100_000_000),
		},
		Regime: model.RegimeBull,
		Signal: model.BuySignal{
			Price:       d(50_000),
			ATR:         d(1_000),
			HybridScore: d(70),
		},
		SectorMult: d(1),
	}
}

func TestCalculate_RiskParityWithinTier(t *testing.T) {
	r := Calculate(baseInput())
	if r.Skip {
		t.Fatalf("expected no skip, got %q", r.Reason)
	}
	// risk-parity target (500 shares) exceeds the 12% tier ceiling
	// (240 shares at this price), so the ceiling should bind.
	if r.Quantity != 240 {
		t.Errorf("expected quantity 240, got %d", r.Quantity)
	}
}

func TestCalculate_HighScoreUsesWiderTierCeiling(t *testing.T) {
	in := baseInput()
	in.Signal.HybridScore = d(90)
	r := Calculate(in)
	if r.Skip {
		t.Fatalf("expected no skip, got %q", r.Reason)
	}
	if r.Quantity != 360 {
		t.Errorf("expected quantity 360 under the 18%% ceiling, got %d", r.Quantity)
	}
}

func TestCalculate_StrongBearZerosOutSizing(t *testing.T) {
	in := baseInput()
	in.Regime = model.RegimeStrongBear
	r := Calculate(in)
	if !r.Skip {
		t.Fatalf("expected skip under STRONG_BEAR, got quantity %d", r.Quantity)
	}
}

func TestCalculate_MissingATRSkips(t *testing.T) {
	in := baseInput()
	in.Signal.ATR = decimal.Zero
	r := Calculate(in)
	if !r.Skip || r.Reason != "missing price or ATR" {
		t.Errorf("expected missing-ATR skip, got %+v", r)
	}
}

func TestCalculate_ZeroTotalAssetsSkips(t *testing.T) {
	in := baseInput()
	in.Portfolio.TotalAssets = decimal.Zero
	r := Calculate(in)
	if !r.Skip || r.Reason != "zero total assets" {
		t.Errorf("expected zero-total-assets skip, got %+v", r)
	}
}

func TestCalculate_SmartSkipOnTightCash(t *testing.T) {
	in := baseInput()
	in.Portfolio.Cash = d(12_000_000) // only 2M spendable above the 10% keep floor
	r := Calculate(in)
	if !r.Skip {
		t.Fatalf("expected smart skip, got quantity %d", r.Quantity)
	}
	if r.Reason != "cash allows less than half the risk-parity target size" {
		t.Errorf("unexpected skip reason: %q", r.Reason)
	}
}

func TestCalculate_PortfolioHeatCapBlocks(t *testing.T) {
	in := baseInput()
	in.OpenRiskSum = d(4_700_000) // this position's ~480k risk would push the sum past the 5M cap
	r := Calculate(in)
	if !r.Skip || r.Reason != "would exceed portfolio risk-heat cap" {
		t.Errorf("expected heat-cap skip, got %+v", r)
	}
}

func TestCalculate_ZeroSectorMultDefaultsToOne(t *testing.T) {
	withZero := baseInput()
	withZero.SectorMult = decimal.Zero
	withOne := baseInput()
	withOne.SectorMult = d(1)

	rZero := Calculate(withZero)
	rOne := Calculate(withOne)
	if rZero.Skip || rOne.Skip {
		t.Fatalf("expected both to size without skipping: %+v / %+v", rZero, rOne)
	}
	if rZero.Quantity != rOne.Quantity {
		t.Errorf("zero SectorMult should behave like 1, got %d vs %d", rZero.Quantity, rOne.Quantity)
	}
}
