package scanner

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func minBars(n int) []model.MinuteBar {
	bars := make([]model.MinuteBar, n)
	for i := range bars {
		bars[i] = model.MinuteBar{Open: d(1000), High: d(1010), Low: d(990), Close: d(1000)}
	}
	return bars
}

func seoulAt(t *testing.T, hour, min int) time.Time {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("Asia/Seoul zoneinfo unavailable")
	}
	return time.Date(2026, 8, 6, hour, min, 0, 0, loc)
}

func baseInput(t *testing.T) GateInput {
	return GateInput{
		StockCode:    "005930",
		Bars:         minBars(25),
		CurrentPrice: d(50000),
		Context:      model.TradingContext{Regime: model.RegimeBull},
		Now:          seoulAt(t, 10, 0),
	}
}

func TestRunGates_AllPassOnCleanInput(t *testing.T) {
	r := RunGates(baseInput(t), DefaultGateConfig())
	if !r.Passed {
		t.Fatalf("expected pass, got fail at %s: %s", r.Gate, r.Reason)
	}
}

func TestRunGates_MinBarsBlocksThinHistory(t *testing.T) {
	in := baseInput(t)
	in.Bars = minBars(5)
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "min_bars" {
		t.Errorf("expected min_bars failure, got %+v", r)
	}
}

func TestCheckNoTradeWindow_BlocksOpeningMinutes(t *testing.T) {
	r := checkNoTradeWindow(seoulAt(t, 9, 5), DefaultGateConfig())
	if r.Passed {
		t.Error("expected block during opening no-trade window")
	}
}

func TestCheckNoTradeWindow_AllowsAfterWindow(t *testing.T) {
	r := checkNoTradeWindow(seoulAt(t, 9, 20), DefaultGateConfig())
	if !r.Passed {
		t.Error("expected pass after the no-trade window closes")
	}
}

func TestCheckDangerZone_BlocksLateSession(t *testing.T) {
	r := checkDangerZone(seoulAt(t, 14, 30), DefaultGateConfig())
	if r.Passed {
		t.Error("expected block during the late-session danger zone")
	}
}

func TestCheckRSIGuard_BlocksOverbought(t *testing.T) {
	r := checkRSIGuard(d(80), true, model.RegimeNeutral, DefaultGateConfig())
	if r.Passed {
		t.Error("expected block for RSI above the guard max")
	}
}

func TestCheckRSIGuard_PassesWhenAbsent(t *testing.T) {
	r := checkRSIGuard(decimal.Zero, false, model.RegimeNeutral, DefaultGateConfig())
	if !r.Passed {
		t.Error("expected pass when no RSI is available")
	}
}

func TestCheckRSIGuard_SidewaysBoundaryAt75(t *testing.T) {
	cfg := DefaultGateConfig()
	if r := checkRSIGuard(d(75), true, model.RegimeNeutral, cfg); !r.Passed {
		t.Error("expected RSI exactly 75 to pass in SIDEWAYS")
	}
	if r := checkRSIGuard(d(75.01), true, model.RegimeNeutral, cfg); r.Passed {
		t.Error("expected RSI just above 75 to block in SIDEWAYS")
	}
}

func TestCheckRSIGuard_BullUsesWiderCeiling(t *testing.T) {
	cfg := DefaultGateConfig()
	if r := checkRSIGuard(d(80), true, model.RegimeBull, cfg); !r.Passed {
		t.Error("expected RSI 80 to pass in BULL under the 85 ceiling")
	}
	if r := checkRSIGuard(d(85), true, model.RegimeStrongBull, cfg); !r.Passed {
		t.Error("expected RSI exactly 85 to pass in STRONG_BULL")
	}
	if r := checkRSIGuard(d(85.01), true, model.RegimeBull, cfg); r.Passed {
		t.Error("expected RSI just above 85 to block in BULL")
	}
}

func TestRunGates_SkipRSIGuardBypassesOnlyThatGate(t *testing.T) {
	in := baseInput(t)
	in.RSI = d(90)
	in.HasRSI = true
	in.SkipRSIGuard = true
	r := RunGates(in, DefaultGateConfig())
	if !r.Passed {
		t.Fatalf("expected an overbought RSI to be ignored when SkipRSIGuard is set, got fail at %s: %s", r.Gate, r.Reason)
	}
}

func TestRunGates_SkipRSIGuardStillEnforcesOtherGates(t *testing.T) {
	in := baseInput(t)
	in.RSI = d(90)
	in.HasRSI = true
	in.SkipRSIGuard = true
	in.Bars = minBars(5) // below MinRequiredBars
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "min_bars" {
		t.Errorf("expected SkipRSIGuard to leave the other gates enforced, got %+v", r)
	}
}

func TestRunGates_WithoutSkipRSIGuardOverboughtRSIBlocks(t *testing.T) {
	in := baseInput(t)
	in.RSI = d(90)
	in.HasRSI = true
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "rsi_guard" {
		t.Errorf("expected rsi_guard to block an overbought RSI without the skip flag, got %+v", r)
	}
}

func TestCheckDailyBuyCap_BlocksAtCap(t *testing.T) {
	r := checkDailyBuyCap(5, 5)
	if r.Passed {
		t.Error("expected block once the daily buy cap is reached")
	}
}

func TestCheckDailyBuyCap_PassesBelowCap(t *testing.T) {
	r := checkDailyBuyCap(4, 5)
	if !r.Passed {
		t.Error("expected pass below the daily buy cap")
	}
}

func TestRunGates_DailyBuyCapBlocksBeforeRSIGuard(t *testing.T) {
	in := baseInput(t)
	in.BuysToday = 5
	in.RSI = d(90)
	in.HasRSI = true
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "daily_buy_cap" {
		t.Errorf("expected daily_buy_cap block, got %+v", r)
	}
}

func TestCheckStoplossCooldown_Blocks(t *testing.T) {
	if r := checkStoplossCooldown(true); r.Passed {
		t.Error("expected block while in stop-loss cooldown")
	}
	if r := checkStoplossCooldown(false); !r.Passed {
		t.Error("expected pass outside stop-loss cooldown")
	}
}

func TestCheckSellCooldown_Blocks(t *testing.T) {
	if r := checkSellCooldown(true); r.Passed {
		t.Error("expected block while in sell cooldown")
	}
	if r := checkSellCooldown(false); !r.Passed {
		t.Error("expected pass outside sell cooldown")
	}
}

func TestRunGates_StoplossCooldownBlocks(t *testing.T) {
	in := baseInput(t)
	in.InStoplossCooldown = true
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "stoploss_cooldown" {
		t.Errorf("expected stoploss_cooldown block, got %+v", r)
	}
}

func TestRunGates_SellCooldownBlocks(t *testing.T) {
	in := baseInput(t)
	in.InSellCooldown = true
	r := RunGates(in, DefaultGateConfig())
	if r.Passed || r.Gate != "sell_cooldown" {
		t.Errorf("expected sell_cooldown block, got %+v", r)
	}
}

func TestCheckMacroRisk_BlocksHighRiskOff(t *testing.T) {
	r := checkMacroRisk(model.TradingContext{RiskOffLevel: 2})
	if r.Passed {
		t.Error("expected block at risk-off level 2")
	}
}

func TestCheckMacroRisk_BlocksCrisis(t *testing.T) {
	r := checkMacroRisk(model.TradingContext{IsCrisis: true})
	if r.Passed {
		t.Error("expected block during a VIX crisis")
	}
}

func TestCheckMarketRegime_BlocksBear(t *testing.T) {
	r := checkMarketRegime(model.RegimeBear, true)
	if r.Passed {
		t.Error("expected block in a bear regime")
	}
}

func TestCheckMarketRegime_IgnoredWhenDisabled(t *testing.T) {
	r := checkMarketRegime(model.RegimeBear, false)
	if !r.Passed {
		t.Error("expected pass when bear-regime blocking is disabled")
	}
}

func TestCheckCombinedRisk_BlocksWhenBothBreached(t *testing.T) {
	cfg := DefaultGateConfig()
	r := checkCombinedRisk(d(3.0), true, d(48000), true, d(50000), cfg)
	if r.Passed {
		t.Error("expected block when both volume surge and VWAP deviation breach")
	}
}

func TestCheckCombinedRisk_PassesWithOnlyOneBreach(t *testing.T) {
	cfg := DefaultGateConfig()
	r := checkCombinedRisk(d(3.0), true, decimal.Zero, false, d(50000), cfg)
	if !r.Passed {
		t.Error("expected pass with only a single risk factor breached")
	}
}

func TestCheckCooldown_BlocksWithinWindow(t *testing.T) {
	now := seoulAt(t, 10, 0)
	r := checkCooldown(now.Add(-1*time.Minute), true, now, 10*time.Minute)
	if r.Passed {
		t.Error("expected block within the cooldown window")
	}
}

func TestCheckCooldown_PassesAfterWindow(t *testing.T) {
	now := seoulAt(t, 10, 0)
	r := checkCooldown(now.Add(-11*time.Minute), true, now, 10*time.Minute)
	if !r.Passed {
		t.Error("expected pass once the cooldown has elapsed")
	}
}

func TestCheckTradeTier_BlocksVetoedSignal(t *testing.T) {
	r := checkTradeTier(true)
	if r.Passed {
		t.Error("expected block for a BLOCKED-tier signal")
	}
}

func TestCheckMicroTiming_BlocksShootingStar(t *testing.T) {
	bars := []model.MinuteBar{
		{Open: d(1000), High: d(1005), Low: d(995), Close: d(1002)},
		{Open: d(1000), High: d(1030), Low: d(998), Close: d(1002)},
	}
	r := checkMicroTiming(bars)
	if r.Passed {
		t.Error("expected block for a shooting star pattern")
	}
}

func TestCheckMicroTiming_BlocksBearishEngulfing(t *testing.T) {
	bars := []model.MinuteBar{
		{Open: d(1000), High: d(1010), Low: d(995), Close: d(1008)},
		{Open: d(1010), High: d(1012), Low: d(990), Close: d(995)},
	}
	r := checkMicroTiming(bars)
	if r.Passed {
		t.Error("expected block for a bearish engulfing pattern")
	}
}

func TestCheckMicroTiming_PassesOnNormalCandle(t *testing.T) {
	bars := []model.MinuteBar{
		{Open: d(1000), High: d(1010), Low: d(995), Close: d(1005)},
		{Open: d(1005), High: d(1015), Low: d(1000), Close: d(1010)},
	}
	r := checkMicroTiming(bars)
	if !r.Passed {
		t.Errorf("expected pass on a normal bullish candle, got %s", r.Reason)
	}
}
