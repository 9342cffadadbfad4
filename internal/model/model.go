// Package model defines the shared domain types passed between the
// gateway, scanner, buy executor, sell executor, and price monitor
// processes over the Redis Streams bus and the typed cache. All
// monetary and percentage values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockCode is a 6-digit KRX ticker, e.g. "005930".
type StockCode string

// MarketRegime is the macro classification published by the Macro
// Council and read by every risk-sensitive component.
type MarketRegime string

const (
	RegimeStrongBull MarketRegime = "STRONG_BULL"
	RegimeBull       MarketRegime = "BULL"
	RegimeNeutral    MarketRegime = "NEUTRAL"
	RegimeBear       MarketRegime = "BEAR"
	RegimeStrongBear MarketRegime = "STRONG_BEAR"
)

// TradingContext is the macro snapshot cached under a well-known key
// and consulted by the scanner, buy executor, and price monitor before
// every decision.
type TradingContext struct {
	Regime             MarketRegime    `json:"regime"`
	RiskOffLevel       int             `json:"risk_off_level"` // 0=none .. 3=crisis
	VixLevel           decimal.Decimal `json:"vix_level"`
	PositionMultiplier decimal.Decimal `json:"position_multiplier"`
	IsCrisis           bool            `json:"is_crisis"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// WatchlistEntry is one candidate stock published by the Scout for the
// Buy Scanner to evaluate.
type WatchlistEntry struct {
	StockCode    StockCode       `json:"stock_code"`
	Sector       string          `json:"sector"`
	HybridScore  decimal.Decimal `json:"hybrid_score"`
	LLMScore     decimal.Decimal `json:"llm_score"`
	Tier         string          `json:"tier"` // "S", "A", "B", or "BLOCKED" (Scout veto)
	Conviction   bool            `json:"conviction"`
	AddedAt      time.Time       `json:"added_at"` // when the Scout scored this candidate
	ScoreStaleAt time.Time       `json:"score_stale_at"`
}

// HotWatchlist is the full candidate set for one trading session.
type HotWatchlist struct {
	Entries     []WatchlistEntry `json:"entries"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Position is one open holding tracked by the Price Monitor and
// consulted by the Buy Executor's portfolio guard and correlation
// check.
type Position struct {
	StockCode         StockCode       `json:"stock_code"`
	Sector            string          `json:"sector"`
	Quantity          int64           `json:"quantity"`
	AverageBuyPrice   decimal.Decimal `json:"average_buy_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	ProfitPct         decimal.Decimal `json:"profit_pct"`
	HighWatermark     decimal.Decimal `json:"high_watermark"`
	HighProfitPct     decimal.Decimal `json:"high_profit_pct"`
	BuyDate           time.Time       `json:"buy_date"`
	HoldingDays       int             `json:"holding_days"`
	ScaleOutLevel     int             `json:"scale_out_level"`
	ProfitFloorActive bool            `json:"profit_floor_active"`
	ProfitFloorLevel  decimal.Decimal `json:"profit_floor_level"`
	RSISold           bool            `json:"rsi_sold"`
	MACDBearish       bool            `json:"macd_bearish"`
	DeathCross        bool            `json:"death_cross"`
	ATR               decimal.Decimal `json:"atr"`
	RSI               decimal.Decimal `json:"rsi"`
	HasRSI            bool            `json:"has_rsi"`
}

// PortfolioState is the aggregate account snapshot read by the Buy
// Executor's Portfolio Guard and position sizer.
type PortfolioState struct {
	Cash             decimal.Decimal            `json:"cash"`
	TotalAssets      decimal.Decimal            `json:"total_assets"`
	Positions        []Position                 `json:"positions"`
	SectorValue      map[string]decimal.Decimal `json:"sector_value"`
	SectorStockCount map[string]int             `json:"sector_stock_count"`
	BuysToday        int                        `json:"buys_today"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// PriceTick is one raw quote published by the Gateway on kis:prices.
type PriceTick struct {
	StockCode StockCode       `json:"stock_code"`
	Price     decimal.Decimal `json:"price"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// MinuteBar is one aggregated OHLCV bar built by the scanner's bar
// aggregator from a run of PriceTicks.
type MinuteBar struct {
	StockCode StockCode       `json:"stock_code"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	StartTime time.Time       `json:"start_time"`
}

// BuySignal is emitted by the scanner onto signals:buy for the Buy
// Executor to consume.
type BuySignal struct {
	StockCode   StockCode       `json:"stock_code"`
	Strategy    string          `json:"strategy"`
	Price       decimal.Decimal `json:"price"`
	HybridScore decimal.Decimal `json:"hybrid_score"`
	Tier        string          `json:"tier"`
	Sector      string          `json:"sector"`
	ATR         decimal.Decimal `json:"atr"`
	RSI         decimal.Decimal `json:"rsi"`
	Reason      string          `json:"reason"`
	EmittedAt   time.Time       `json:"emitted_at"`
}

// SellOrder is emitted by the Price Monitor onto signals:sell for the
// Sell Executor to consume.
type SellOrder struct {
	StockCode   StockCode       `json:"stock_code"`
	Rule        string          `json:"rule"`
	QuantityPct decimal.Decimal `json:"quantity_pct"` // percentage (0-100) of the held position to sell
	Reason      string          `json:"reason"`
	Price       decimal.Decimal `json:"price"`
	EmittedAt   time.Time       `json:"emitted_at"`
}

// OrderSide distinguishes buy from sell orders sent to the brokerage.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderKind selects market vs. limit execution, matching KIS's ORD_DVSN.
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// OrderRequest is submitted by an executor to the Gateway's REST client.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	StockCode     StockCode       `json:"stock_code"`
	Side          OrderSide       `json:"side"`
	Kind          OrderKind       `json:"kind"`
	Quantity      int64           `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price,omitempty"`
}

// OrderResult is the outcome of a submitted order: as returned on
// submission, or as reported by a later order-status poll.
type OrderResult struct {
	ClientOrderID string          `json:"client_order_id"`
	VenueOrderID  string          `json:"venue_order_id"`
	StockCode     StockCode       `json:"stock_code"`
	Side          OrderSide       `json:"side"`
	FilledQty     int64           `json:"filled_qty"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	Status        string          `json:"status"` // "SUBMITTED", "FILLED", "PARTIAL", "REJECTED", "CANCELLED"
	RejectReason  string          `json:"reject_reason,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	ConfirmedAt   time.Time       `json:"confirmed_at"`
}

// TradeRecord is the immutable append-only ledger row written by an
// executor once an order settles. Never updated or deleted.
type TradeRecord struct {
	ID           string          `json:"id" db:"id"`
	StockCode    StockCode       `json:"stock_code" db:"stock_code"`
	Side         OrderSide       `json:"side" db:"side"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Amount       decimal.Decimal `json:"amount" db:"amount"` // quantity * price
	Reason       string          `json:"reason" db:"reason"`
	Strategy     string          `json:"strategy,omitempty" db:"strategy"`
	Rule         string          `json:"rule,omitempty" db:"rule"`
	VenueOrderID string          `json:"venue_order_id" db:"venue_order_id"`
	ExecutedAt   time.Time       `json:"executed_at" db:"executed_at"`
}
