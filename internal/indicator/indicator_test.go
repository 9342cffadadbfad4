package indicator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func closesBars(closes ...float64) []model.MinuteBar {
	out := make([]model.MinuteBar, len(closes))
	for i, c := range closes {
		out[i] = model.MinuteBar{Close: d(c)}
	}
	return out
}

func TestRing_EvictsOldestPastCapacity(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(model.MinuteBar{Close: d(float64(i))})
	}
	if r.Len() != 3 {
		t.Fatalf("expected length capped at 3, got %d", r.Len())
	}
	bars := r.Bars()
	want := []float64{3, 4, 5}
	for i, b := range bars {
		if !b.Close.Equal(d(want[i])) {
			t.Errorf("bar %d = %s, want %v", i, b.Close, want[i])
		}
	}
}

func TestSMA_InsufficientBars(t *testing.T) {
	if _, ok := SMA(closesBars(1, 2), 3); ok {
		t.Error("expected SMA to report insufficient bars")
	}
}

func TestSMA_ComputesAverageOfLastPeriod(t *testing.T) {
	avg, ok := SMA(closesBars(1, 2, 3, 4, 5), 3)
	if !ok {
		t.Fatal("expected SMA to succeed")
	}
	if !avg.Equal(d(4)) { // (3+4+5)/3
		t.Errorf("expected SMA 4, got %s", avg)
	}
}

func TestTrueRange_UsesWidestOfThreeMeasures(t *testing.T) {
	// A large gap-down: low is far below yesterday's close, which should
	// dominate the high-low range.
	bar := model.MinuteBar{High: d(105), Low: d(95)}
	tr := TrueRange(bar, d(120))
	if !tr.Equal(d(25)) { // |low - prevClose| = |95-120| = 25
		t.Errorf("expected true range 25, got %s", tr)
	}
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	bars := closesBars(100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114)
	rsi, ok := RSI(bars, 14)
	if !ok {
		t.Fatal("expected RSI to succeed with 15 bars for a period-14 window")
	}
	if !rsi.Equal(d(100)) {
		t.Errorf("expected RSI 100 on a monotonically rising series, got %s", rsi)
	}
}

func TestRSI_InsufficientBars(t *testing.T) {
	if _, ok := RSI(closesBars(1, 2, 3), 14); ok {
		t.Error("expected RSI to report insufficient bars")
	}
}

func TestVWAP_WeightsByVolume(t *testing.T) {
	bars := []model.MinuteBar{
		{High: d(10), Low: d(10), Close: d(10), Volume: 100},
		{High: d(20), Low: d(20), Close: d(20), Volume: 300},
	}
	vwap, ok := VWAP(bars)
	if !ok {
		t.Fatal("expected VWAP to succeed")
	}
	// (10*100 + 20*300) / 400 = 17.5
	if !vwap.Equal(d(17.5)) {
		t.Errorf("expected VWAP 17.5, got %s", vwap)
	}
}

func TestVWAP_EmptyBarsFails(t *testing.T) {
	if _, ok := VWAP(nil); ok {
		t.Error("expected VWAP to fail on no bars")
	}
}

func TestVWAPDeviationPct(t *testing.T) {
	dev := VWAPDeviationPct(d(110), d(100))
	if !dev.Equal(d(10)) {
		t.Errorf("expected 10%% deviation, got %s", dev)
	}
}

func TestVolumeRatio_ComparesLatestToLookbackAverage(t *testing.T) {
	bars := []model.MinuteBar{
		{Volume: 100}, {Volume: 100}, {Volume: 100}, {Volume: 400},
	}
	ratio, ok := VolumeRatio(bars, 3)
	if !ok {
		t.Fatal("expected VolumeRatio to succeed")
	}
	if !ratio.Equal(d(4)) { // latest 400 / avg(100,100,100)=100
		t.Errorf("expected ratio 4, got %s", ratio)
	}
}

func TestClampATR_ClampsToBandAroundPrice(t *testing.T) {
	price := d(10000)
	if got := ClampATR(d(50), price); !got.Equal(d(100)) { // below 1% floor
		t.Errorf("expected clamp to 1%% floor (100), got %s", got)
	}
	if got := ClampATR(d(1000), price); !got.Equal(d(500)) { // above 5% ceiling
		t.Errorf("expected clamp to 5%% ceiling (500), got %s", got)
	}
	if got := ClampATR(d(300), price); !got.Equal(d(300)) { // within band
		t.Errorf("expected unclamped 300, got %s", got)
	}
}
