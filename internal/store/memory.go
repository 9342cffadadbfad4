package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/primejennie/trading-core/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for
// testing and development. Not suitable for production (no
// persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	trades []model.TradeRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTradesByStock(_ context.Context, code model.StockCode, limit int) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.TradeRecord
	for _, t := range s.trades {
		if t.StockCode == code {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExecutedAt.After(matched[j].ExecutedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) ListTradesSince(_ context.Context, since time.Time) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.TradeRecord
	for _, t := range s.trades {
		if !t.ExecutedAt.Before(since) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExecutedAt.Before(matched[j].ExecutedAt) })
	return matched, nil
}

func (s *MemoryStore) CountBuysSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.trades {
		if t.Side == model.OrderSideBuy && !t.ExecutedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
