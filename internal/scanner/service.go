// Service is the Buy Scanner process body: it consumes price ticks
// from the bus, aggregates them into minute bars per stock code,
// evaluates every hot-watchlist candidate against the risk-gate chain
// and the strategy detectors, and emits a BuySignal for the first
// strategy that fires and clears the gates. MOMENTUM_CONTINUATION,
// WATCHLIST_CONVICTION, and ORB_BREAKOUT are exempt from the RSI guard
// alone — a partial gate bypass — while every strategy still clears
// the rest of the chain, matching the original system's priority order.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/cache"
	"github.com/primejennie/trading-core/internal/indicator"
	"github.com/primejennie/trading-core/internal/lock"
	"github.com/primejennie/trading-core/internal/model"
)

const barWindowSize = 240 // four hours of minute bars

// Service wires the aggregator, gate chain, and strategy detectors to
// the bus, cache, and lock fabric.
type Service struct {
	bus           *bus.Bus
	cache         *cache.Cache
	locks         *lock.Locks
	aggregator    *Aggregator
	gateCfg       GateConfig
	strategyCfg   StrategyConfig
	consumerGroup string
	consumerName  string
	lastSignal    map[model.StockCode]time.Time
}

// NewService builds a Service ready to run, using gateCfg for the risk
// gate chain's thresholds.
func NewService(b *bus.Bus, c *cache.Cache, locks *lock.Locks, group, consumer string, gateCfg GateConfig) *Service {
	return &Service{
		bus:           b,
		cache:         c,
		locks:         locks,
		aggregator:    NewAggregator(barWindowSize),
		gateCfg:       gateCfg,
		strategyCfg:   DefaultStrategyConfig(),
		consumerGroup: group,
		consumerName:  consumer,
		lastSignal:    make(map[model.StockCode]time.Time),
	}
}

// Run consumes kis:prices until ctx is cancelled, aggregating bars and
// evaluating the watchlist on every closed bar.
func (s *Service) Run(ctx context.Context) error {
	if err := s.bus.EnsureGroup(ctx, bus.StreamPrices, s.consumerGroup); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := s.bus.ScanPending(ctx, bus.StreamPrices, s.consumerGroup, s.consumerName, 300*time.Second); err != nil {
			slog.Error("scan pending failed", "error", err)
		} else if len(reclaimed) > 0 {
			s.handleTicks(ctx, reclaimed)
		}

		msgs, err := s.bus.Read(ctx, s.consumerGroup, s.consumerName, 5*time.Second, bus.StreamPrices)
		if errors.Is(err, bus.ErrNoMessages) {
			continue
		}
		if err != nil {
			slog.Error("read prices failed", "error", err)
			continue
		}
		s.handleTicks(ctx, msgs)
	}
}

func (s *Service) handleTicks(ctx context.Context, msgs []bus.Message) {
	for _, msg := range msgs {
		var tick model.PriceTick
		if err := msg.Decode(&tick); err != nil {
			slog.Error("decode price tick failed", "error", err)
			s.bus.Ack(ctx, bus.StreamPrices, s.consumerGroup, msg.ID)
			continue
		}
		// Ack before processing: a crash here drops the tick rather than
		// risking a duplicate signal downstream.
		if err := s.bus.Ack(ctx, bus.StreamPrices, s.consumerGroup, msg.ID); err != nil {
			slog.Error("ack price tick failed", "error", err)
		}

		closed := s.aggregator.Add(tick)
		if closed == nil {
			continue
		}
		s.evaluate(ctx, tick.StockCode)
	}
}

func (s *Service) evaluate(ctx context.Context, code model.StockCode) {
	watchlist, err := s.cache.GetWatchlist(ctx)
	if err != nil {
		return
	}
	var entry model.WatchlistEntry
	found := false
	for _, e := range watchlist.Entries {
		if e.StockCode == code {
			entry = e
			found = true
			break
		}
	}
	if !found {
		return
	}

	tradingCtx, err := s.cache.GetTradingContext(ctx)
	if err != nil {
		// No macro context published: fall back to the NEUTRAL regime,
		// as the buy executor and the monitor do.
		tradingCtx = model.TradingContext{Regime: model.RegimeNeutral}
	}

	bars := s.aggregator.Bars(code, true)
	if len(bars) == 0 {
		return
	}
	currentPrice := bars[len(bars)-1].Close

	rsi, hasRSI := indicator.RSI(bars, 14)
	volRatio, hasVolRatio := indicator.VolumeRatio(bars, 20)
	vwap, hasVWAP := indicator.VWAP(bars)
	atr, hasATR := indicator.ATR(bars, 14)
	if hasATR {
		atr = indicator.ClampATR(atr, currentPrice)
	}

	lastSignal, hasLastSignal := s.lastSignal[code]

	strategyIn := StrategyInput{
		Bars:           bars,
		Regime:         tradingCtx.Regime,
		Entry:          entry,
		CurrentPrice:   currentPrice,
		RSI:            rsi,
		HasRSI:         hasRSI,
		VolumeRatio:    volRatio,
		HasVolumeRatio: hasVolRatio,
		VWAP:           vwap,
		HasVWAP:        hasVWAP,
		Now:            time.Now(),
	}
	result := Detect(strategyIn, s.strategyCfg)
	if !result.Detected {
		return
	}

	// The RSI guard alone is bypassed for MOMENTUM_CONTINUATION,
	// WATCHLIST_CONVICTION, and ORB_BREAKOUT; every strategy — including
	// these three — must still clear the other gates.
	skipRSIGuard := result.Strategy == "MOMENTUM_CONTINUATION" || result.Strategy == "WATCHLIST_CONVICTION" || result.Strategy == "ORB_BREAKOUT"

	buysToday := 0
	if portfolio, err := s.cache.GetPortfolio(ctx); err == nil {
		buysToday = portfolio.BuysToday
	}
	var inStoplossCooldown, inSellCooldown bool
	if s.locks != nil {
		inStoplossCooldown, _ = s.locks.InStoplossCooldown(ctx, string(code))
		inSellCooldown, _ = s.locks.InSellCooldown(ctx, string(code))
	}

	gateIn := GateInput{
		StockCode:          code,
		Bars:               bars,
		CurrentPrice:       currentPrice,
		RSI:                rsi,
		HasRSI:             hasRSI,
		VolumeRatio:        volRatio,
		HasVolumeRatio:     hasVolRatio,
		VWAP:               vwap,
		HasVWAP:            hasVWAP,
		Blocked:            entry.Tier == "BLOCKED",
		Context:            tradingCtx,
		LastSignalAt:       lastSignal,
		HasLastSignal:      hasLastSignal,
		Now:                strategyIn.Now,
		SkipRSIGuard:       skipRSIGuard,
		BuysToday:          buysToday,
		InStoplossCooldown: inStoplossCooldown,
		InSellCooldown:     inSellCooldown,
	}
	gateResult := RunGates(gateIn, s.gateCfg)
	if !gateResult.Passed {
		return
	}

	signal := model.BuySignal{
		StockCode:   code,
		Strategy:    result.Strategy,
		Price:       currentPrice,
		HybridScore: entry.HybridScore,
		Tier:        entry.Tier,
		Sector:      entry.Sector,
		ATR:         atr,
		RSI:         rsi,
		Reason:      result.Reason,
		EmittedAt:   strategyIn.Now,
	}
	if _, err := s.bus.Publish(ctx, bus.StreamBuy, signal); err != nil {
		slog.Error("publish buy signal failed", "stock_code", code, "error", err)
		return
	}
	s.lastSignal[code] = strategyIn.Now
	slog.Info("buy signal emitted", "stock_code", code, "strategy", result.Strategy, "price", currentPrice.String())
}
