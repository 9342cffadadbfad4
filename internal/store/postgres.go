package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. Monetary values are stored as NUMERIC and round-tripped
// through TEXT to preserve exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_ledger (id, stock_code, side, quantity, price, amount, reason, strategy, rule, venue_order_id, executed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10, $11)`,
		t.ID, t.StockCode, t.Side, t.Quantity,
		t.Price.String(), t.Amount.String(),
		t.Reason, t.Strategy, t.Rule, t.VenueOrderID, t.ExecutedAt,
	)
	return err
}

func (s *PostgresStore) ListTradesByStock(ctx context.Context, code model.StockCode, limit int) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stock_code, side, quantity, price::TEXT, amount::TEXT, reason, strategy, rule, venue_order_id, executed_at
		 FROM trade_ledger WHERE stock_code = $1 ORDER BY executed_at DESC LIMIT $2`, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) ListTradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stock_code, side, quantity, price::TEXT, amount::TEXT, reason, strategy, rule, venue_order_id, executed_at
		 FROM trade_ledger WHERE executed_at >= $1 ORDER BY executed_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) CountBuysSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trade_ledger WHERE side = $1 AND executed_at >= $2`,
		model.OrderSideBuy, since,
	).Scan(&count)
	return count, err
}

// pgxRows abstracts pgx.Rows for scanning helpers.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var priceS, amountS string
		if err := rows.Scan(&t.ID, &t.StockCode, &t.Side, &t.Quantity,
			&priceS, &amountS, &t.Reason, &t.Strategy, &t.Rule, &t.VenueOrderID, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Price, _ = decimal.NewFromString(priceS)
		t.Amount, _ = decimal.NewFromString(amountS)
		out = append(out, t)
	}
	return out, rows.Err()
}
