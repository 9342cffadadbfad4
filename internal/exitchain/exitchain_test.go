package exitchain

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func TestEvaluate_HardStopWinsOverEverything(t *testing.T) {
	p := model.Position{
		ProfitPct:       d(-15),
		HighProfitPct:   d(20), // would also satisfy profit-lock/breakeven if reached
		AverageBuyPrice: d(10000),
		ATR:             d(200),
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "hard_stop" {
		t.Fatalf("expected hard_stop to win, got %+v", sig)
	}
	if !sig.QuantityPct.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected full exit, got QuantityPct=%s", sig.QuantityPct)
	}
}

func TestEvaluate_BreakevenStop(t *testing.T) {
	p := model.Position{
		ProfitPct:     d(0.1),
		HighProfitPct: d(5), // cleared the 3% activation threshold before pulling back
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "breakeven_stop" {
		t.Fatalf("expected breakeven_stop, got %+v", sig)
	}
}

func TestEvaluate_ATRStop(t *testing.T) {
	p := model.Position{
		ProfitPct:       d(-5),
		AverageBuyPrice: d(10000),
		ATR:             d(200),
		CurrentPrice:    d(9500), // buy - ATR*mult(2) = 9600, price below it
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "atr_stop" {
		t.Fatalf("expected atr_stop, got %+v", sig)
	}
}

func TestEvaluate_ATRStopTightensUnderMACDBearish(t *testing.T) {
	base := model.Position{
		ProfitPct:       d(-3.5),
		AverageBuyPrice: d(10000),
		ATR:             d(200),
		CurrentPrice:    d(9650),
	}
	cfg := DefaultConfig()

	plain := base
	if sig := Evaluate(plain, model.RegimeNeutral, cfg, d(1)); sig != nil {
		t.Fatalf("expected no signal without a bearish warning (stop=9600, price=9650), got %+v", sig)
	}

	bearish := base
	bearish.MACDBearish = true
	sig := Evaluate(bearish, model.RegimeNeutral, cfg, d(1))
	if sig == nil || sig.Rule != "atr_stop" {
		t.Fatalf("expected MACD-bearish tightening (stop=9700) to trigger atr_stop, got %+v", sig)
	}
}

func TestEvaluate_FixedStopTimeTightenedInBull(t *testing.T) {
	p := model.Position{
		ProfitPct:   d(-4.5),
		HoldingDays: 20, // 5 days past the bull grace period of 15
	}
	sig := Evaluate(p, model.RegimeBull, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "fixed_stop" {
		t.Fatalf("expected fixed_stop with time-tightened threshold, got %+v", sig)
	}
}

func TestEvaluate_FixedStopNotYetTightened(t *testing.T) {
	p := model.Position{
		ProfitPct:   d(-4.5),
		HoldingDays: 5, // still within the 10-day neutral grace period, threshold stays -5%
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig != nil {
		t.Fatalf("expected no signal before the stop tightens past -5%%, got %+v", sig)
	}
}

func TestEvaluate_TrailingTakeProfit(t *testing.T) {
	p := model.Position{
		ProfitPct:     d(4),
		HighProfitPct: d(10),
		HighWatermark: d(11000),
		CurrentPrice:  d(10400), // below 11000*(1-3.5%) = 10615
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "trailing_tp" {
		t.Fatalf("expected trailing_tp, got %+v", sig)
	}
}

func TestEvaluate_ScaleOutFirstRung(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	p := model.Position{
		ProfitPct:     d(9),
		ScaleOutLevel: 0,
		Quantity:      200,
		CurrentPrice:  d(100000),
	}
	sig := Evaluate(p, model.RegimeNeutral, cfg, d(1))
	if sig == nil || sig.Rule != "scale_out_l0" {
		t.Fatalf("expected scale_out_l0, got %+v", sig)
	}
	if !sig.QuantityPct.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected 25%% sell at the first sideways-ladder rung, got %s", sig.QuantityPct)
	}
}

func TestEvaluate_ScaleOutLaddersDifferByRegime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	p := model.Position{
		ProfitPct:     d(5),
		ScaleOutLevel: 0,
		Quantity:      200,
		CurrentPrice:  d(100000),
	}

	// Bull's first rung targets 7% profit — 5% shouldn't fire it yet.
	if sig := Evaluate(p, model.RegimeBull, cfg, d(1)); sig != nil && sig.Rule == "scale_out_l0" {
		t.Errorf("expected the bull ladder's first rung (7%%) not to fire at 5%% profit, got %+v", sig)
	}

	// Bear's first rung targets 2% profit — 5% should already clear it.
	sig := Evaluate(p, model.RegimeBear, cfg, d(1))
	if sig == nil || sig.Rule != "scale_out_l0" {
		t.Fatalf("expected the bear ladder's first rung (2%%) to fire at 5%% profit, got %+v", sig)
	}
}

func TestEvaluate_ScaleOutUpgradesToFullExitWhenTooSmall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	p := model.Position{
		ProfitPct:    d(9),
		ScaleOutLevel: 0,
		Quantity:     10,
		CurrentPrice: d(1000), // total position value 10,000 < 2x MinTransactionAmount
	}
	sig := Evaluate(p, model.RegimeNeutral, cfg, d(1))
	if sig == nil || sig.Rule != "scale_out_l0" {
		t.Fatalf("expected scale_out_l0, got %+v", sig)
	}
	if !sig.QuantityPct.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected upgrade to a full exit, got %s", sig.QuantityPct)
	}
}

func TestEvaluate_RSIOverbought(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	cfg.ScaleOutEnabled = false
	p := model.Position{
		ProfitPct: d(5),
		RSI:       d(80),
		HasRSI:    true,
	}
	sig := Evaluate(p, model.RegimeNeutral, cfg, d(1))
	if sig == nil || sig.Rule != "rsi_overbought" {
		t.Fatalf("expected rsi_overbought, got %+v", sig)
	}
	if !sig.QuantityPct.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected a 50%% partial exit, got %s", sig.QuantityPct)
	}
}

func TestEvaluate_RSIOverboughtSkippedOnceAlreadySold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	cfg.ScaleOutEnabled = false
	p := model.Position{
		ProfitPct: d(5),
		RSI:       d(80),
		HasRSI:    true,
		RSISold:   true,
	}
	sig := Evaluate(p, model.RegimeNeutral, cfg, d(1))
	if sig != nil {
		t.Fatalf("expected no signal once RSISold is set, got %+v", sig)
	}
}

func TestEvaluate_DeathCrossOnLosingPosition(t *testing.T) {
	p := model.Position{
		ProfitPct:  d(-3),
		DeathCross: true,
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "death_cross" {
		t.Fatalf("expected death_cross, got %+v", sig)
	}
}

func TestEvaluate_DeathCrossIgnoredWhileProfitable(t *testing.T) {
	p := model.Position{
		ProfitPct:  d(2),
		DeathCross: true,
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig != nil {
		t.Fatalf("expected death cross to yield to profit-side rules while profitable, got %+v", sig)
	}
}

func TestEvaluate_DeathCrossDisabledInBullRegime(t *testing.T) {
	p := model.Position{
		ProfitPct:  d(-3),
		DeathCross: true,
	}
	for _, regime := range []model.MarketRegime{model.RegimeBull, model.RegimeStrongBull} {
		sig := Evaluate(p, regime, DefaultConfig(), d(1))
		if sig != nil && sig.Rule == "death_cross" {
			t.Errorf("expected death cross to be disabled in %s, got %+v", regime, sig)
		}
	}
}

func TestEvaluate_TimeExit(t *testing.T) {
	p := model.Position{
		ProfitPct:   d(0),
		HoldingDays: 35,
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig == nil || sig.Rule != "time_exit" {
		t.Fatalf("expected time_exit, got %+v", sig)
	}
}

func TestEvaluate_NoRuleFiresOnASteadyPosition(t *testing.T) {
	p := model.Position{
		ProfitPct:   d(2),
		HoldingDays: 1,
	}
	sig := Evaluate(p, model.RegimeNeutral, DefaultConfig(), d(1))
	if sig != nil {
		t.Fatalf("expected no signal for an unremarkable position, got %+v", sig)
	}
}
