package scanner

import (
	"testing"
	"time"

	"github.com/primejennie/trading-core/internal/model"
)

func flatBars(n int, close float64) []model.MinuteBar {
	bars := make([]model.MinuteBar, n)
	base := time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = model.MinuteBar{
			Open:      d(close),
			High:      d(close + 1),
			Low:       d(close - 1),
			Close:     d(close),
			StartTime: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return bars
}

func TestDetectMomentum_FiresWithinChaseWindow(t *testing.T) {
	bars := flatBars(4, 1000)
	bars = append(bars, model.MinuteBar{Open: d(1000), High: d(1030), Low: d(1000), Close: d(1030)})
	r := detectMomentum(bars, DefaultStrategyConfig())
	if !r.Detected || r.Strategy != "MOMENTUM" {
		t.Fatalf("expected MOMENTUM to fire, got %+v", r)
	}
}

func TestDetectMomentum_SkipsChasedMove(t *testing.T) {
	bars := flatBars(4, 1000)
	bars = append(bars, model.MinuteBar{Open: d(1000), High: d(1100), Low: d(1000), Close: d(1100)})
	r := detectMomentum(bars, DefaultStrategyConfig())
	if r.Detected {
		t.Error("expected no match once the gain exceeds the chase-prevention cap")
	}
}

func TestDetectMomentum_SkipsBelowThreshold(t *testing.T) {
	bars := flatBars(4, 1000)
	bars = append(bars, model.MinuteBar{Open: d(1000), High: d(1002), Low: d(1000), Close: d(1002)})
	r := detectMomentum(bars, DefaultStrategyConfig())
	if r.Detected {
		t.Error("expected no match for a sub-threshold move")
	}
}

func TestDetectVolumeBreakout_FiresOnNewHighWithVolume(t *testing.T) {
	bars := flatBars(20, 1000)
	bars[len(bars)-1].Close = d(1010)
	r := detectVolumeBreakout(bars, d(3.5), true, DefaultStrategyConfig())
	if !r.Detected || r.Strategy != "VOLUME_BREAKOUT" {
		t.Fatalf("expected VOLUME_BREAKOUT to fire, got %+v", r)
	}
}

func TestDetectVolumeBreakout_SkipsWithoutVolumeConfirmation(t *testing.T) {
	bars := flatBars(20, 1000)
	bars[len(bars)-1].Close = d(1010)
	r := detectVolumeBreakout(bars, d(1.0), true, DefaultStrategyConfig())
	if r.Detected {
		t.Error("expected no match without a volume surge")
	}
}

func TestDetectORBBreakout_FiresAboveOpeningRange(t *testing.T) {
	cfg := DefaultStrategyConfig()
	base := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	bars := []model.MinuteBar{
		{StartTime: base, High: d(1005), Close: d(1000)},
		{StartTime: base.Add(10 * time.Minute), High: d(1010), Close: d(1005)},
		{StartTime: base.Add(35 * time.Minute), High: d(1020), Close: d(1015)},
	}
	r := detectORBBreakout(bars, d(2.0), true, cfg)
	if !r.Detected || r.Strategy != "ORB_BREAKOUT" {
		t.Fatalf("expected ORB_BREAKOUT to fire, got %+v", r)
	}
}

func TestDetectORBBreakout_SkipsInsideRange(t *testing.T) {
	cfg := DefaultStrategyConfig()
	base := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	bars := []model.MinuteBar{
		{StartTime: base, High: d(1010), Close: d(1000)},
		{StartTime: base.Add(10 * time.Minute), High: d(1015), Close: d(1005)},
		{StartTime: base.Add(35 * time.Minute), High: d(1008), Close: d(1005)},
	}
	r := detectORBBreakout(bars, d(2.0), true, cfg)
	if r.Detected {
		t.Error("expected no match when price never clears the opening range high")
	}
}

func TestDetectDipBuy_FiresInBearPullbackRange(t *testing.T) {
	bars := flatBars(5, 1000)
	bars[0].High = d(1000)
	bars[len(bars)-1].Close = d(970)
	entry := model.WatchlistEntry{AddedAt: time.Now().Add(-48 * time.Hour)}
	r := detectDipBuy(bars, entry, model.RegimeNeutral, time.Now())
	if !r.Detected || r.Strategy != "DIP_BUY" {
		t.Fatalf("expected DIP_BUY to fire, got %+v", r)
	}
}

func TestDetectDipBuy_SkipsOutsideEntryAgeWindow(t *testing.T) {
	bars := flatBars(5, 1000)
	bars[len(bars)-1].Close = d(970)
	entry := model.WatchlistEntry{AddedAt: time.Now().Add(-10 * 24 * time.Hour)}
	r := detectDipBuy(bars, entry, model.RegimeNeutral, time.Now())
	if r.Detected {
		t.Error("expected no match once the watchlist entry is too old")
	}
}

func TestDetectConvictionEntry_SkipsBlockedTier(t *testing.T) {
	in := StrategyInput{
		Entry:  model.WatchlistEntry{Tier: "BLOCKED", HybridScore: d(90), LLMScore: d(90)},
		Regime: model.RegimeBull,
		Now:    time.Date(2026, 8, 6, 0, 45, 0, 0, time.UTC),
	}
	cfg := DefaultStrategyConfig()
	r := detectConvictionEntry(in, cfg)
	if r.Detected {
		t.Error("expected no match for a BLOCKED-tier entry")
	}
}

func TestDetectConvictionEntry_SkipsBearRegime(t *testing.T) {
	in := StrategyInput{
		Entry:  model.WatchlistEntry{HybridScore: d(90), LLMScore: d(90)},
		Regime: model.RegimeBear,
	}
	cfg := DefaultStrategyConfig()
	r := detectConvictionEntry(in, cfg)
	if r.Detected {
		t.Error("expected no match in a bear regime")
	}
}
