package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/primejennie/trading-core/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache over per-stock recent-trade lookups. Writes go to
// the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.TradeRecord) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, recentTradesKey(t.StockCode))
	return nil
}

func (s *CachedStore) ListTradesByStock(ctx context.Context, code model.StockCode, limit int) ([]model.TradeRecord, error) {
	key := recentTradesKey(code)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var trades []model.TradeRecord
		if json.Unmarshal(data, &trades) == nil {
			if limit > 0 && len(trades) > limit {
				trades = trades[:limit]
			}
			return trades, nil
		}
	}

	trades, err := s.primary.ListTradesByStock(ctx, code, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return trades, nil
}

// ListTradesSince and CountBuysSince span every stock code; caching
// them under one key would defeat the point of a targeted cache, so
// they pass straight through to the primary store.
func (s *CachedStore) ListTradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error) {
	return s.primary.ListTradesSince(ctx, since)
}

func (s *CachedStore) CountBuysSince(ctx context.Context, since time.Time) (int, error) {
	return s.primary.CountBuysSince(ctx, since)
}

func recentTradesKey(code model.StockCode) string { return fmt.Sprintf("trades:recent:%s", code) }
