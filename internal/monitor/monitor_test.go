package monitor

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func TestMacroStopMultiplier_CrisisTightestBand(t *testing.T) {
	got := macroStopMultiplier(model.TradingContext{IsCrisis: true, RiskOffLevel: 3})
	if !got.Equal(decimal.NewFromFloat(0.6)) {
		t.Errorf("expected crisis multiplier 0.6, got %s", got)
	}
}

func TestMacroStopMultiplier_HighRiskOffWithoutCrisis(t *testing.T) {
	got := macroStopMultiplier(model.TradingContext{RiskOffLevel: 2})
	if !got.Equal(decimal.NewFromFloat(0.8)) {
		t.Errorf("expected risk-off multiplier 0.8, got %s", got)
	}
}

func TestMacroStopMultiplier_NormalConditions(t *testing.T) {
	got := macroStopMultiplier(model.TradingContext{RiskOffLevel: 1})
	if !got.Equal(decimal.NewFromFloat(1.0)) {
		t.Errorf("expected default multiplier 1.0, got %s", got)
	}
}

func TestMacroStopMultiplier_CrisisTakesPriorityOverRiskOff(t *testing.T) {
	got := macroStopMultiplier(model.TradingContext{IsCrisis: true, RiskOffLevel: 0})
	if !got.Equal(decimal.NewFromFloat(0.6)) {
		t.Errorf("expected crisis to take priority regardless of risk-off level, got %s", got)
	}
}
