// Strategy detection: each function inspects the candidate's bar
// history and macro context and reports whether its pattern fired.
// Grounded directly on this system's original eight-strategy detector,
// with the same priority order: conviction entry first (exempt from
// the RSI guard alone, not the rest of the gate chain), then bull-only
// strategies, then general strategies, then the counter-trend RSI
// rebound, then volume breakout. Opening
// Range Breakout is the one strategy the spec names that the original
// detector never implemented; it is added here in the same idiom,
// grounded on the standard first-30-minutes-range breakout definition.
package scanner

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/indicator"
	"github.com/primejennie/trading-core/internal/model"
)

// StrategyResult is one detector's verdict.
type StrategyResult struct {
	Detected bool
	Strategy string
	Reason   string
}

func noMatch() StrategyResult { return StrategyResult{} }

func matched(strategy, reason string) StrategyResult {
	return StrategyResult{Detected: true, Strategy: strategy, Reason: reason}
}

// StrategyConfig holds the tunable thresholds for the detector set.
type StrategyConfig struct {
	MomentumMinPct         decimal.Decimal
	MomentumMaxGainPct     decimal.Decimal
	GoldenCrossMinVolRatio decimal.Decimal
	MomentumContMaxGainPct decimal.Decimal
	VolumeBreakoutMinRatio decimal.Decimal
	ConvictionEnabled      bool
	ConvictionMinHybrid    decimal.Decimal
	ConvictionMinLLM       decimal.Decimal
	ConvictionMaxGainPct   decimal.Decimal
	ConvictionWindowStart  time.Duration
	ConvictionWindowEnd    time.Duration
	ORBRangeMinutes        int
	ORBMinVolumeRatio      decimal.Decimal
}

// DefaultStrategyConfig matches the original system's defaults.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MomentumMinPct:         decimal.NewFromFloat(1.5),
		MomentumMaxGainPct:     decimal.NewFromFloat(7.0),
		GoldenCrossMinVolRatio: decimal.NewFromFloat(1.5),
		MomentumContMaxGainPct: decimal.NewFromFloat(5.0),
		VolumeBreakoutMinRatio: decimal.NewFromFloat(3.0),
		ConvictionEnabled:      true,
		ConvictionMinHybrid:    decimal.NewFromInt(70),
		ConvictionMinLLM:       decimal.NewFromInt(72),
		ConvictionMaxGainPct:   decimal.NewFromFloat(3.0),
		ConvictionWindowStart:  9*time.Hour + 15*time.Minute,
		ConvictionWindowEnd:    10*time.Hour + 30*time.Minute,
		ORBRangeMinutes:        30,
		ORBMinVolumeRatio:      decimal.NewFromFloat(1.5),
	}
}

// StrategyInput bundles everything the detectors need.
type StrategyInput struct {
	Bars        []model.MinuteBar
	Regime      model.MarketRegime
	Entry       model.WatchlistEntry
	CurrentPrice decimal.Decimal
	RSI         decimal.Decimal
	HasRSI      bool
	VolumeRatio decimal.Decimal
	HasVolumeRatio bool
	VWAP        decimal.Decimal
	HasVWAP     bool
	Now         time.Time
}

// Detect runs the detectors in priority order and returns the first
// match: conviction entry (RSI-guard exempt, still subject to every
// other gate), then bull-only strategies, then general strategies,
// then counter-trend, then volume/range breakouts.
func Detect(in StrategyInput, cfg StrategyConfig) StrategyResult {
	if r := detectConvictionEntry(in, cfg); r.Detected {
		return r
	}

	if in.Regime == model.RegimeBull || in.Regime == model.RegimeStrongBull {
		if r := detectGoldenCross(in.Bars, in.VolumeRatio, in.HasVolumeRatio, cfg); r.Detected {
			return r
		}
		if r := detectMomentumContinuation(in.Bars, in.Regime, in.Entry.LLMScore, cfg); r.Detected {
			return r
		}
	}

	if r := detectMomentum(in.Bars, cfg); r.Detected {
		return r
	}
	if r := detectDipBuy(in.Bars, in.Entry, in.Regime, in.Now); r.Detected {
		return r
	}
	if r := detectRSIRebound(in.Bars, in.Regime); r.Detected {
		return r
	}
	if r := detectVolumeBreakout(in.Bars, in.VolumeRatio, in.HasVolumeRatio, cfg); r.Detected {
		return r
	}
	if r := detectORBBreakout(in.Bars, in.VolumeRatio, in.HasVolumeRatio, cfg); r.Detected {
		return r
	}
	return noMatch()
}

func detectGoldenCross(bars []model.MinuteBar, volumeRatio decimal.Decimal, hasVol bool, cfg StrategyConfig) StrategyResult {
	const shortPeriod, longPeriod = 5, 20
	if len(bars) < longPeriod+1 {
		return noMatch()
	}

	maShort, ok1 := indicator.SMA(bars, shortPeriod)
	maLong, ok2 := indicator.SMA(bars, longPeriod)
	prevBars := bars[:len(bars)-1]
	prevShort, ok3 := indicator.SMA(prevBars, shortPeriod)
	prevLong, ok4 := indicator.SMA(prevBars, longPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return noMatch()
	}

	crossed := prevShort.LessThanOrEqual(prevLong) && maShort.GreaterThan(maLong)
	if !crossed {
		return noMatch()
	}
	if !hasVol || volumeRatio.LessThan(cfg.GoldenCrossMinVolRatio) {
		return noMatch()
	}
	return matched("GOLDEN_CROSS", "MA5 crossed above MA20 on elevated volume")
}

func detectRSIRebound(bars []model.MinuteBar, regime model.MarketRegime) StrategyResult {
	if regime == model.RegimeBull || regime == model.RegimeStrongBull {
		return noMatch()
	}
	if len(bars) < 16 {
		return noMatch()
	}

	threshold := decimal.NewFromInt(35)
	switch regime {
	case model.RegimeNeutral:
		threshold = decimal.NewFromInt(40)
	case model.RegimeBear:
		threshold = decimal.NewFromInt(30)
	case model.RegimeStrongBear:
		threshold = decimal.NewFromInt(25)
	}

	currRSI, ok1 := indicator.RSI(bars, 14)
	prevRSI, ok2 := indicator.RSI(bars[:len(bars)-1], 14)
	if !ok1 || !ok2 {
		return noMatch()
	}

	if prevRSI.LessThan(threshold) && currRSI.GreaterThanOrEqual(threshold) {
		return matched("RSI_REBOUND", "RSI rebounded out of oversold territory")
	}
	return noMatch()
}

func detectMomentum(bars []model.MinuteBar, cfg StrategyConfig) StrategyResult {
	if len(bars) < 5 {
		return noMatch()
	}
	recent := bars[len(bars)-5:]
	if recent[0].Open.IsZero() {
		return noMatch()
	}
	momentumPct := recent[len(recent)-1].Close.Div(recent[0].Open).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))

	if momentumPct.LessThan(cfg.MomentumMinPct) {
		return noMatch()
	}
	if momentumPct.GreaterThan(cfg.MomentumMaxGainPct) {
		return noMatch() // chase prevention
	}
	return matched("MOMENTUM", "short-term price momentum within chase-prevention cap")
}

func detectMomentumContinuation(bars []model.MinuteBar, regime model.MarketRegime, llmScore decimal.Decimal, cfg StrategyConfig) StrategyResult {
	if regime != model.RegimeBull && regime != model.RegimeStrongBull {
		return noMatch()
	}
	if len(bars) < 21 {
		return noMatch()
	}

	ma5, ok1 := indicator.SMA(bars, 5)
	ma20, ok2 := indicator.SMA(bars, 20)
	if !ok1 || !ok2 || ma5.LessThanOrEqual(ma20) {
		return noMatch()
	}

	prevClose := bars[len(bars)-5].Close
	if prevClose.IsZero() {
		return noMatch()
	}
	priceChange := bars[len(bars)-1].Close.Div(prevClose).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	if priceChange.LessThan(decimal.NewFromInt(2)) || priceChange.GreaterThan(cfg.MomentumContMaxGainPct) {
		return noMatch()
	}
	if llmScore.LessThan(decimal.NewFromInt(65)) {
		return noMatch()
	}
	return matched("MOMENTUM_CONTINUATION", "MA5 above MA20 with confirmed LLM score in a bull regime")
}

func detectDipBuy(bars []model.MinuteBar, entry model.WatchlistEntry, regime model.MarketRegime, now time.Time) StrategyResult {
	if len(bars) < 5 {
		return noMatch()
	}
	if entry.AddedAt.IsZero() {
		return noMatch()
	}
	daysSince := int(now.Sub(entry.AddedAt).Hours() / 24)
	if daysSince < 1 || daysSince > 5 {
		return noMatch()
	}

	recent := bars[len(bars)-5:]
	high := recent[0].High
	for _, b := range recent[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
	}
	if high.IsZero() {
		return noMatch()
	}
	current := recent[len(recent)-1].Close
	dipPct := current.Div(high).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))

	minDip, maxDip := decimal.NewFromFloat(-2.0), decimal.NewFromFloat(-5.0)
	if regime == model.RegimeBull || regime == model.RegimeStrongBull {
		minDip, maxDip = decimal.NewFromFloat(-0.5), decimal.NewFromFloat(-3.0)
	}

	if dipPct.LessThanOrEqual(minDip) && dipPct.GreaterThanOrEqual(maxDip) {
		return matched("DIP_BUY", "pullback into buy range after recent watchlist entry")
	}
	return noMatch()
}

func detectConvictionEntry(in StrategyInput, cfg StrategyConfig) StrategyResult {
	if !cfg.ConvictionEnabled {
		return noMatch()
	}
	if in.Entry.Tier == "BLOCKED" {
		return noMatch()
	}
	if in.Regime == model.RegimeBear || in.Regime == model.RegimeStrongBear {
		return noMatch()
	}
	if in.Regime == model.RegimeNeutral && in.Entry.HybridScore.LessThan(decimal.NewFromInt(75)) {
		return noMatch()
	}

	if !in.Entry.AddedAt.IsZero() {
		days := int(in.Now.Sub(in.Entry.AddedAt).Hours() / 24)
		if days > 2 {
			return noMatch()
		}
	}

	hasHighHybrid := in.Entry.HybridScore.GreaterThanOrEqual(cfg.ConvictionMinHybrid)
	hasHighLLM := in.Entry.LLMScore.GreaterThanOrEqual(cfg.ConvictionMinLLM)
	if !hasHighHybrid && !hasHighLLM {
		return noMatch()
	}

	offset := kstOffset(in.Now)
	if offset < cfg.ConvictionWindowStart || offset > cfg.ConvictionWindowEnd {
		return noMatch()
	}

	if len(in.Bars) >= 2 {
		openPrice := in.Bars[0].Open
		if openPrice.IsPositive() {
			gainPct := in.CurrentPrice.Div(openPrice).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
			if gainPct.GreaterThanOrEqual(cfg.ConvictionMaxGainPct) {
				return noMatch()
			}
		}
	}

	if in.HasVWAP && in.VWAP.IsPositive() {
		dev := in.CurrentPrice.Div(in.VWAP).Sub(decimal.NewFromInt(1)).Abs().Mul(decimal.NewFromInt(100))
		if dev.GreaterThan(decimal.NewFromFloat(1.5)) {
			return noMatch()
		}
	}

	if in.HasRSI && in.RSI.GreaterThanOrEqual(decimal.NewFromInt(65)) {
		return noMatch()
	}

	return matched("WATCHLIST_CONVICTION", "high-conviction scout entry within its opening window")
}

func detectVolumeBreakout(bars []model.MinuteBar, volumeRatio decimal.Decimal, hasVol bool, cfg StrategyConfig) StrategyResult {
	if len(bars) < 20 {
		return noMatch()
	}
	if !hasVol || volumeRatio.LessThan(cfg.VolumeBreakoutMinRatio) {
		return noMatch()
	}

	window := bars[len(bars)-20 : len(bars)-1]
	recentHigh := window[0].High
	for _, b := range window[1:] {
		if b.High.GreaterThan(recentHigh) {
			recentHigh = b.High
		}
	}
	current := bars[len(bars)-1].Close
	if current.LessThanOrEqual(recentHigh) {
		return noMatch()
	}
	return matched("VOLUME_BREAKOUT", "volume surge accompanied by a new local high")
}

// detectORBBreakout fires when price clears the high of the opening
// range (the first ORBRangeMinutes of the session) on above-average
// volume. Not present in the original detector; added to cover the
// spec's ORB_BREAKOUT strategy using the standard opening-range
// breakout definition.
func detectORBBreakout(bars []model.MinuteBar, volumeRatio decimal.Decimal, hasVol bool, cfg StrategyConfig) StrategyResult {
	if len(bars) < 2 {
		return noMatch()
	}
	if !hasVol || volumeRatio.LessThan(cfg.ORBMinVolumeRatio) {
		return noMatch()
	}

	sessionStart := bars[0].StartTime
	var rangeHigh decimal.Decimal
	rangeSet := false
	var breakoutBar *model.MinuteBar

	for i := range bars {
		elapsed := bars[i].StartTime.Sub(sessionStart)
		if elapsed < time.Duration(cfg.ORBRangeMinutes)*time.Minute {
			if !rangeSet || bars[i].High.GreaterThan(rangeHigh) {
				rangeHigh = bars[i].High
				rangeSet = true
			}
			continue
		}
		breakoutBar = &bars[i]
		break
	}
	if !rangeSet || breakoutBar == nil {
		return noMatch()
	}
	if breakoutBar.Close.GreaterThan(rangeHigh) {
		return matched("ORB_BREAKOUT", "price broke above the opening range high on elevated volume")
	}
	return noMatch()
}
