// Package cache wraps the Redis JSON cache every component reads and
// writes: the macro trading context, the hot watchlist, live position
// snapshots, and the portfolio state. Every key carries a TTL; there
// is no invalidation protocol beyond expiry, matching the "typed
// cache" contract.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// Well-known keys, matching the external interface contract.
const (
	KeyTradingContext = "macro:trading_context"
	KeyWatchlist      = "watchlist:active"
	KeyPositions      = "positions:live"
	KeyPortfolio      = "portfolio:state"
	KeySectorBudget   = "sector_budget:active"
)

// Default TTLs per key, matching the componenents' publish cadence.
const (
	TTLTradingContext = 5 * time.Minute
	TTLWatchlist      = 10 * time.Minute
	TTLPositions      = 30 * time.Second
	TTLPortfolio      = 30 * time.Second
	TTLCorrelation    = 12 * time.Hour

	// TTLPositionState bounds the per-code exit-tracking keys (high
	// watermark, scale-out level, RSI-sold flag) the monitor maintains
	// between buy and full exit; 30 days comfortably exceeds any
	// realistic holding period.
	TTLPositionState = 30 * 24 * time.Hour
)

// Cache is the typed read/write wrapper around a Redis client.
type Cache struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Set JSON-encodes v and stores it under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Get decodes the JSON stored under key into v. Returns redis.Nil
// (unwrapped through errors.Is) if the key is absent or expired.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}

// GetTradingContext reads the macro snapshot. Callers must treat a
// redis.Nil miss as "no context available" and fall back to the
// NEUTRAL regime.
func (c *Cache) GetTradingContext(ctx context.Context) (model.TradingContext, error) {
	var tc model.TradingContext
	err := c.Get(ctx, KeyTradingContext, &tc)
	return tc, err
}

// SetTradingContext publishes the macro snapshot.
func (c *Cache) SetTradingContext(ctx context.Context, tc model.TradingContext) error {
	return c.Set(ctx, KeyTradingContext, tc, TTLTradingContext)
}

// GetWatchlist reads the current hot watchlist.
func (c *Cache) GetWatchlist(ctx context.Context) (model.HotWatchlist, error) {
	var hw model.HotWatchlist
	err := c.Get(ctx, KeyWatchlist, &hw)
	return hw, err
}

// SetWatchlist publishes a new hot watchlist snapshot.
func (c *Cache) SetWatchlist(ctx context.Context, hw model.HotWatchlist) error {
	return c.Set(ctx, KeyWatchlist, hw, TTLWatchlist)
}

// GetPortfolio reads the aggregate account snapshot.
func (c *Cache) GetPortfolio(ctx context.Context) (model.PortfolioState, error) {
	var ps model.PortfolioState
	err := c.Get(ctx, KeyPortfolio, &ps)
	return ps, err
}

// SetPortfolio publishes the aggregate account snapshot.
func (c *Cache) SetPortfolio(ctx context.Context, ps model.PortfolioState) error {
	return c.Set(ctx, KeyPortfolio, ps, TTLPortfolio)
}

// GetPositions reads the live position list.
func (c *Cache) GetPositions(ctx context.Context) ([]model.Position, error) {
	var ps []model.Position
	err := c.Get(ctx, KeyPositions, &ps)
	return ps, err
}

// SetPositions publishes the live position list.
func (c *Cache) SetPositions(ctx context.Context, ps []model.Position) error {
	return c.Set(ctx, KeyPositions, ps, TTLPositions)
}

// SectorBudget reads the dynamic per-sector stock-count cap for
// sector, falling back to (0, false) when no override is published —
// callers then use the static cap from config.
func (c *Cache) SectorBudget(ctx context.Context, sector string) (int, bool, error) {
	v, err := c.rdb.HGet(ctx, KeySectorBudget, sector).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: hget sector budget %s: %w", sector, err)
	}
	return v, true, nil
}

func watermarkKey(code model.StockCode) string { return fmt.Sprintf("position:watermark:%s", code) }
func scaleOutKey(code model.StockCode) string   { return fmt.Sprintf("position:scale_out:%s", code) }
func rsiSoldKey(code model.StockCode) string    { return fmt.Sprintf("position:rsi_sold:%s", code) }

// GetWatermark reads the high-water mark price the monitor has tracked
// for an open position, returning (zero, false) if none is recorded.
func (c *Cache) GetWatermark(ctx context.Context, code model.StockCode) (decimal.Decimal, bool, error) {
	s, err := c.rdb.Get(ctx, watermarkKey(code)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("cache: get watermark %s: %w", code, err)
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil, err
}

// SetWatermark records the high-water mark price for an open position.
func (c *Cache) SetWatermark(ctx context.Context, code model.StockCode, price decimal.Decimal) error {
	if err := c.rdb.Set(ctx, watermarkKey(code), price.String(), TTLPositionState).Err(); err != nil {
		return fmt.Errorf("cache: set watermark %s: %w", code, err)
	}
	return nil
}

// GetScaleOutLevel reads how many scale-out tranches have already
// fired for an open position.
func (c *Cache) GetScaleOutLevel(ctx context.Context, code model.StockCode) (int, error) {
	n, err := c.rdb.Get(ctx, scaleOutKey(code)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: get scale-out level %s: %w", code, err)
	}
	return n, nil
}

// SetScaleOutLevel advances the scale-out tranche counter.
func (c *Cache) SetScaleOutLevel(ctx context.Context, code model.StockCode, level int) error {
	if err := c.rdb.Set(ctx, scaleOutKey(code), level, TTLPositionState).Err(); err != nil {
		return fmt.Errorf("cache: set scale-out level %s: %w", code, err)
	}
	return nil
}

// RSISold reports whether the RSI-overbought exit has already fired
// once for this holding, preventing it from re-firing every tick while
// RSI stays elevated.
func (c *Cache) RSISold(ctx context.Context, code model.StockCode) (bool, error) {
	n, err := c.rdb.Exists(ctx, rsiSoldKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: check rsi-sold %s: %w", code, err)
	}
	return n > 0, nil
}

// SetRSISold marks the RSI-overbought exit as fired for this holding.
func (c *Cache) SetRSISold(ctx context.Context, code model.StockCode) error {
	if err := c.rdb.Set(ctx, rsiSoldKey(code), "1", TTLPositionState).Err(); err != nil {
		return fmt.Errorf("cache: set rsi-sold %s: %w", code, err)
	}
	return nil
}

// ClearPositionState deletes the watermark, scale-out, and RSI-sold
// keys for a stock code — called by the sell executor on a full exit
// so the next buy of the same code starts from a clean slate.
func (c *Cache) ClearPositionState(ctx context.Context, code model.StockCode) error {
	if err := c.rdb.Del(ctx, watermarkKey(code), scaleOutKey(code), rsiSoldKey(code)).Err(); err != nil {
		return fmt.Errorf("cache: clear position state %s: %w", code, err)
	}
	return nil
}
