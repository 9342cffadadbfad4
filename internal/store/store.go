// Package store persists the append-only trade ledger. PostgreSQL is
// the source of truth; Redis provides a read-through cache over the
// per-stock recent-trade lookups the buy executor's duplicate-order
// check uses. Ledger rows are never updated or deleted once written.
package store

import (
	"context"
	"time"

	"github.com/primejennie/trading-core/internal/model"
)

// Store is the persistence interface for the trade ledger.
type Store interface {
	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.TradeRecord) error

	// ListTradesByStock returns the most recent trades for a stock code,
	// newest first, capped at limit.
	ListTradesByStock(ctx context.Context, code model.StockCode, limit int) ([]model.TradeRecord, error)

	// ListTradesSince returns every trade executed at or after since,
	// oldest first.
	ListTradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error)

	// CountBuysSince counts BUY-side trades executed at or after since.
	// The daily buy cap does not read it; the guard uses
	// PortfolioState.BuysToday.
	CountBuysSince(ctx context.Context, since time.Time) (int, error)
}
