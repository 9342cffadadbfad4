// Package indicator computes the technical indicators the scanner's
// strategies, risk gates, and the exit chain all depend on: simple
// moving averages, Wilder's RSI, ATR (true range averaged with
// Wilder's smoothing), VWAP deviation, and volume ratio. The formulas
// are grounded on the original ATR/RSI implementation this system's
// position sizing was distilled from.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// Ring is a fixed-capacity ring buffer of MinuteBars for one stock
// code, used by the scanner to keep a rolling window per candidate
// without unbounded memory growth.
type Ring struct {
	bars []model.MinuteBar
	cap  int
	head int
	size int
}

// NewRing creates a ring buffer holding at most capacity bars.
func NewRing(capacity int) *Ring {
	return &Ring{bars: make([]model.MinuteBar, capacity), cap: capacity}
}

// Push appends a new bar, evicting the oldest once full.
func (r *Ring) Push(b model.MinuteBar) {
	r.bars[r.head] = b
	r.head = (r.head + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

// Bars returns the buffered bars in chronological order.
func (r *Ring) Bars() []model.MinuteBar {
	out := make([]model.MinuteBar, r.size)
	start := (r.head - r.size + r.cap) % r.cap
	for i := 0; i < r.size; i++ {
		out[i] = r.bars[(start+i)%r.cap]
	}
	return out
}

// Len reports how many bars are currently buffered.
func (r *Ring) Len() int { return r.size }

// SMA returns the simple moving average of the last period closes.
// The second return is false if fewer than period bars are available.
func SMA(bars []model.MinuteBar, period int) (decimal.Decimal, bool) {
	if len(bars) < period {
		return decimal.Zero, false
	}
	window := bars[len(bars)-period:]
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// TrueRange computes one bar's true range against the previous close.
func TrueRange(cur model.MinuteBar, prevClose decimal.Decimal) decimal.Decimal {
	hl := cur.High.Sub(cur.Low)
	hc := cur.High.Sub(prevClose).Abs()
	lc := cur.Low.Sub(prevClose).Abs()

	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// ATR computes the Average True Range over period bars using Wilder's
// smoothing: seed with a simple average of the first period true
// ranges, then exponentially smooth the remainder.
func ATR(bars []model.MinuteBar, period int) (decimal.Decimal, bool) {
	if len(bars) < period+1 {
		return decimal.Zero, false
	}

	trs := make([]decimal.Decimal, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, TrueRange(bars[i], bars[i-1].Close))
	}

	sum := decimal.Zero
	for _, tr := range trs[:period] {
		sum = sum.Add(tr)
	}
	atr := sum.Div(decimal.NewFromInt(int64(period)))

	periodD := decimal.NewFromInt(int64(period))
	for _, tr := range trs[period:] {
		atr = atr.Mul(periodD.Sub(decimal.NewFromInt(1))).Add(tr).Div(periodD)
	}
	return atr, true
}

// ClampATR restricts atr to between 1% and 5% of price, mirroring the
// position sizer's guard against ATR readings distorted by illiquid or
// gapping bars.
func ClampATR(atr, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return atr
	}
	minATR := price.Mul(decimal.NewFromFloat(0.01))
	maxATR := price.Mul(decimal.NewFromFloat(0.05))
	if atr.LessThan(minATR) {
		return minATR
	}
	if atr.GreaterThan(maxATR) {
		return maxATR
	}
	return atr
}

// RSI computes Wilder's Relative Strength Index over period closes.
func RSI(bars []model.MinuteBar, period int) (decimal.Decimal, bool) {
	if len(bars) < period+1 {
		return decimal.Zero, false
	}

	gains := decimal.Zero
	losses := decimal.Zero
	for i := 1; i <= period; i++ {
		delta := bars[i].Close.Sub(bars[i-1].Close)
		if delta.IsPositive() {
			gains = gains.Add(delta)
		} else {
			losses = losses.Add(delta.Abs())
		}
	}
	periodD := decimal.NewFromInt(int64(period))
	avgGain := gains.Div(periodD)
	avgLoss := losses.Div(periodD)

	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close.Sub(bars[i-1].Close)
		gain := decimal.Zero
		loss := decimal.Zero
		if delta.IsPositive() {
			gain = delta
		} else {
			loss = delta.Abs()
		}
		avgGain = avgGain.Mul(periodD.Sub(decimal.NewFromInt(1))).Add(gain).Div(periodD)
		avgLoss = avgLoss.Mul(periodD.Sub(decimal.NewFromInt(1))).Add(loss).Div(periodD)
	}

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), true
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return rsi, true
}

// VWAP computes the volume-weighted average price over the given bars.
func VWAP(bars []model.MinuteBar) (decimal.Decimal, bool) {
	if len(bars) == 0 {
		return decimal.Zero, false
	}
	num := decimal.Zero
	den := decimal.Zero
	for _, b := range bars {
		vol := decimal.NewFromInt(b.Volume)
		typical := b.High.Add(b.Low).Add(b.Close).Div(decimal.NewFromInt(3))
		num = num.Add(typical.Mul(vol))
		den = den.Add(vol)
	}
	if den.IsZero() {
		return decimal.Zero, false
	}
	return num.Div(den), true
}

// VWAPDeviationPct returns (price - vwap) / vwap as a percentage.
func VWAPDeviationPct(price, vwap decimal.Decimal) decimal.Decimal {
	if vwap.IsZero() {
		return decimal.Zero
	}
	return price.Sub(vwap).Div(vwap).Mul(decimal.NewFromInt(100))
}

// VolumeRatio compares the latest bar's volume to the average volume
// of the preceding lookback bars.
func VolumeRatio(bars []model.MinuteBar, lookback int) (decimal.Decimal, bool) {
	if len(bars) < lookback+1 {
		return decimal.Zero, false
	}
	window := bars[len(bars)-lookback-1 : len(bars)-1]
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(decimal.NewFromInt(b.Volume))
	}
	avg := sum.Div(decimal.NewFromInt(int64(lookback)))
	if avg.IsZero() {
		return decimal.Zero, false
	}
	latest := decimal.NewFromInt(bars[len(bars)-1].Volume)
	return latest.Div(avg), true
}
