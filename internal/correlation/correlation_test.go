package correlation

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestLogReturns_ComputesLogOfRatios(t *testing.T) {
	prices := []decimal.Decimal{dec(100), dec(110), dec(99)}
	returns := logReturns(prices)
	if len(returns) != 2 {
		t.Fatalf("expected 2 returns from 3 prices, got %d", len(returns))
	}
	want0 := math.Log(110.0 / 100.0)
	if math.Abs(returns[0]-want0) > 1e-9 {
		t.Errorf("returns[0] = %v, want %v", returns[0], want0)
	}
}

func TestLogReturns_SkipsNonPositivePrices(t *testing.T) {
	prices := []decimal.Decimal{dec(100), decimal.Zero, dec(50)}
	returns := logReturns(prices)
	if len(returns) != 0 {
		t.Errorf("expected both pairs skipped (one touches zero), got %v", returns)
	}
}

func TestLogReturns_TooFewPricesReturnsNil(t *testing.T) {
	if got := logReturns([]decimal.Decimal{dec(100)}); got != nil {
		t.Errorf("expected nil for a single price, got %v", got)
	}
}

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = f(i)
	}
	return out
}

func TestPearson_PerfectPositiveCorrelation(t *testing.T) {
	x := series(MinPeriods, func(i int) float64 { return float64(i) })
	y := series(MinPeriods, func(i int) float64 { return float64(i) * 2 })
	coef, ok := pearson(x, y)
	if !ok {
		t.Fatal("expected pearson to succeed with MinPeriods observations")
	}
	if math.Abs(coef-1.0) > 1e-9 {
		t.Errorf("expected coefficient 1.0, got %v", coef)
	}
}

func TestPearson_PerfectNegativeCorrelation(t *testing.T) {
	x := series(MinPeriods, func(i int) float64 { return float64(i) })
	y := series(MinPeriods, func(i int) float64 { return -float64(i) })
	coef, ok := pearson(x, y)
	if !ok {
		t.Fatal("expected pearson to succeed")
	}
	if math.Abs(coef-(-1.0)) > 1e-9 {
		t.Errorf("expected coefficient -1.0, got %v", coef)
	}
}

func TestPearson_BelowMinPeriodsFails(t *testing.T) {
	x := series(MinPeriods-1, func(i int) float64 { return float64(i) })
	y := series(MinPeriods-1, func(i int) float64 { return float64(i) })
	if _, ok := pearson(x, y); ok {
		t.Error("expected pearson to fail below MinPeriods")
	}
}

func TestPearson_ZeroVarianceFails(t *testing.T) {
	x := series(MinPeriods, func(i int) float64 { return 1.0 })
	y := series(MinPeriods, func(i int) float64 { return float64(i) })
	if _, ok := pearson(x, y); ok {
		t.Error("expected pearson to fail when one series has zero variance")
	}
}

func TestPairKey_OrderIndependent(t *testing.T) {
	a, b := model.StockCode("005930"), model.StockCode("000660")
	if pairKey(a, b) != pairKey(b, a) {
		t.Error("pairKey should be symmetric regardless of argument order")
	}
}

func TestCoefficient_SameCodeIsIdentity(t *testing.T) {
	c := &Checker{threshold: DefaultBlockThreshold, window: 60}
	coef, err := c.Coefficient(context.Background(), "005930", "005930")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coef != 1 {
		t.Errorf("expected coefficient 1 for identical codes, got %v", coef)
	}
}
