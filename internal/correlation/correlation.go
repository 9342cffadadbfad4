// Package correlation blocks new buys that would concentrate risk in
// stocks that move together. It computes the Pearson correlation
// coefficient over daily log returns for a candidate against every
// held position and rejects the buy if the strongest correlation meets
// or exceeds the block threshold. Grounded on this system's original
// correlation check (numpy log-returns + corrcoef over a 60-day
// window); the coefficient math itself is a direct port, the caching
// and error-sentinel shape follow the teacher's position-limiter
// package.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// ErrCorrelated is returned when a candidate is too correlated with an
// existing position to buy.
var ErrCorrelated = errors.New("correlation: candidate too correlated with an existing position")

// DefaultBlockThreshold matches the original system's 0.85 cutoff.
const DefaultBlockThreshold = 0.85

// MinPeriods is the minimum number of paired daily closes required
// before a correlation is considered meaningful.
const MinPeriods = 20

const cacheTTL = 12 * time.Hour

// PriceHistoryFn returns the last n daily closes for code, oldest
// first. Implementations typically read from the cache or the
// brokerage's daily-price endpoint.
type PriceHistoryFn func(ctx context.Context, code model.StockCode, days int) ([]decimal.Decimal, error)

// Checker evaluates portfolio correlation against a configurable block
// threshold, caching computed coefficients in Redis.
type Checker struct {
	rdb       *redis.Client
	history   PriceHistoryFn
	threshold float64
	window    int
}

// New creates a Checker with the default 0.85 threshold and a 60-day
// lookback window.
func New(rdb *redis.Client, history PriceHistoryFn) *Checker {
	return &Checker{rdb: rdb, history: history, threshold: DefaultBlockThreshold, window: 60}
}

func pairKey(a, b model.StockCode) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("correlation:%s:%s", a, b)
}

// Coefficient returns the Pearson correlation of a and b's daily log
// returns over the checker's window, using a cached value if present.
func (c *Checker) Coefficient(ctx context.Context, a, b model.StockCode) (float64, error) {
	if a == b {
		return 1, nil
	}

	key := pairKey(a, b)
	if v, err := c.rdb.Get(ctx, key).Float64(); err == nil {
		return v, nil
	}

	pricesA, err := c.history(ctx, a, c.window)
	if err != nil {
		return 0, fmt.Errorf("correlation: history %s: %w", a, err)
	}
	pricesB, err := c.history(ctx, b, c.window)
	if err != nil {
		return 0, fmt.Errorf("correlation: history %s: %w", b, err)
	}

	coef, ok := pearson(logReturns(pricesA), logReturns(pricesB))
	if !ok {
		return 0, nil
	}

	c.rdb.Set(ctx, key, coef, cacheTTL)
	return coef, nil
}

// CheckPortfolio finds the strongest correlation between candidate and
// any held position and returns ErrCorrelated if it meets the block
// threshold.
func (c *Checker) CheckPortfolio(ctx context.Context, candidate model.StockCode, held []model.Position) (float64, error) {
	maxCorr := 0.0
	for _, p := range held {
		if p.StockCode == candidate {
			continue
		}
		coef, err := c.Coefficient(ctx, candidate, p.StockCode)
		if err != nil {
			return 0, err
		}
		abs := math.Abs(coef)
		if abs > maxCorr {
			maxCorr = abs
		}
	}
	if maxCorr >= c.threshold {
		return maxCorr, ErrCorrelated
	}
	return maxCorr, nil
}

func logReturns(prices []decimal.Decimal) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].InexactFloat64()
		cur := prices[i].InexactFloat64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// pearson computes the Pearson correlation coefficient of two equal
// (or truncated-to-equal) length series, requiring at least MinPeriods
// paired observations.
func pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < MinPeriods {
		return 0, false
	}
	x, y = x[len(x)-n:], y[len(y)-n:]

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, denX, denY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}
	if denX == 0 || denY == 0 {
		return 0, false
	}
	return num / math.Sqrt(denX*denY), true
}
