package scanner

import (
	"time"

	"github.com/primejennie/trading-core/internal/indicator"
	"github.com/primejennie/trading-core/internal/model"
)

// Aggregator folds a stream of PriceTicks into one-minute OHLCV bars
// per stock code, keeping a bounded rolling window in an
// indicator.Ring for each code it has seen.
type Aggregator struct {
	windowSize int
	rings      map[model.StockCode]*indicator.Ring
	current    map[model.StockCode]*model.MinuteBar
}

// NewAggregator creates an Aggregator that retains windowSize minute
// bars per stock code.
func NewAggregator(windowSize int) *Aggregator {
	return &Aggregator{
		windowSize: windowSize,
		rings:      make(map[model.StockCode]*indicator.Ring),
		current:    make(map[model.StockCode]*model.MinuteBar),
	}
}

// Add folds one tick into the in-progress bar for its stock code,
// rolling the previous bar into the ring when the tick lands in a new
// minute. Returns the bar that was just closed, if any.
func (a *Aggregator) Add(tick model.PriceTick) *model.MinuteBar {
	minute := tick.Timestamp.Truncate(time.Minute)
	cur, ok := a.current[tick.StockCode]

	if !ok || !cur.StartTime.Equal(minute) {
		var closed *model.MinuteBar
		if ok {
			closed = cur
			a.ring(tick.StockCode).Push(*cur)
		}
		a.current[tick.StockCode] = &model.MinuteBar{
			StockCode: tick.StockCode,
			Open:      tick.Price,
			High:      tick.High,
			Low:       tick.Low,
			Close:     tick.Price,
			Volume:    tick.Volume,
			StartTime: minute,
		}
		return closed
	}

	if tick.Price.GreaterThan(cur.High) {
		cur.High = tick.Price
	}
	if tick.Price.LessThan(cur.Low) {
		cur.Low = tick.Price
	}
	cur.Close = tick.Price
	cur.Volume += tick.Volume
	return nil
}

func (a *Aggregator) ring(code model.StockCode) *indicator.Ring {
	r, ok := a.rings[code]
	if !ok {
		r = indicator.NewRing(a.windowSize)
		a.rings[code] = r
	}
	return r
}

// Bars returns the closed bars buffered for code, oldest first,
// including the in-progress bar if includeCurrent is set.
func (a *Aggregator) Bars(code model.StockCode, includeCurrent bool) []model.MinuteBar {
	r, ok := a.rings[code]
	var out []model.MinuteBar
	if ok {
		out = r.Bars()
	}
	if includeCurrent {
		if cur, ok := a.current[code]; ok {
			out = append(out, *cur)
		}
	}
	return out
}
