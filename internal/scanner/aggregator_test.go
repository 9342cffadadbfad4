package scanner

import (
	"testing"
	"time"

	"github.com/primejennie/trading-core/internal/model"
)

func tick(code model.StockCode, price float64, ts time.Time) model.PriceTick {
	return model.PriceTick{
		StockCode: code,
		Price:     d(price),
		High:      d(price),
		Low:       d(price),
		Volume:    100,
		Timestamp: ts,
	}
}

func TestAggregator_Add_AccumulatesWithinSameMinute(t *testing.T) {
	a := NewAggregator(10)
	base := time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC)

	closed := a.Add(tick("005930", 1000, base))
	if closed != nil {
		t.Fatal("expected no closed bar for the first tick")
	}
	closed = a.Add(tick("005930", 1010, base.Add(20*time.Second)))
	if closed != nil {
		t.Fatal("expected no closed bar for a tick in the same minute")
	}

	bars := a.Bars("005930", true)
	if len(bars) != 1 {
		t.Fatalf("expected 1 in-progress bar, got %d", len(bars))
	}
	if !bars[0].Close.Equal(d(1010)) {
		t.Errorf("expected close 1010, got %s", bars[0].Close)
	}
	if !bars[0].High.Equal(d(1010)) {
		t.Errorf("expected high to track the higher tick, got %s", bars[0].High)
	}
	if bars[0].Volume != 200 {
		t.Errorf("expected accumulated volume 200, got %d", bars[0].Volume)
	}
}

func TestAggregator_Add_ClosesBarOnMinuteRollover(t *testing.T) {
	a := NewAggregator(10)
	base := time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC)

	a.Add(tick("005930", 1000, base))
	closed := a.Add(tick("005930", 1020, base.Add(1*time.Minute)))
	if closed == nil {
		t.Fatal("expected the first bar to close on minute rollover")
	}
	if !closed.Close.Equal(d(1000)) {
		t.Errorf("expected the closed bar's close to be 1000, got %s", closed.Close)
	}

	bars := a.Bars("005930", false)
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar pushed into the ring, got %d", len(bars))
	}
}

func TestAggregator_Bars_KeepsCodesIndependent(t *testing.T) {
	a := NewAggregator(10)
	base := time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC)

	a.Add(tick("005930", 1000, base))
	a.Add(tick("000660", 2000, base))

	samsung := a.Bars("005930", true)
	sk := a.Bars("000660", true)
	if len(samsung) != 1 || len(sk) != 1 {
		t.Fatalf("expected one in-progress bar per code, got %d and %d", len(samsung), len(sk))
	}
	if samsung[0].Close.Equal(sk[0].Close) {
		t.Error("expected independent bars per stock code")
	}
}
