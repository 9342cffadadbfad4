// Package gwclient is the executors' and monitor's HTTP client to the
// Brokerage Gateway. Every peer service reaches the venue only through
// the Gateway's local HTTP surface, never through a KIS SDK directly —
// this package is that boundary from the consuming side, mirroring the
// same request/response shapes internal/brokerage's handlers publish.
package gwclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

// Client is a thin JSON-over-HTTP client bound to one Gateway instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 15 * time.Second}}
}

// gatewayError is the Gateway's standard error envelope.
type gatewayError struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gwclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gwclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gwclient: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gwclient: read response %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var ge gatewayError
		if json.Unmarshal(raw, &ge) == nil && ge.Detail != "" {
			return fmt.Errorf("gwclient: %s: %s (status %d)", path, ge.Detail, resp.StatusCode)
		}
		return fmt.Errorf("gwclient: %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gwclient: decode response %s: %w", path, err)
		}
	}
	return nil
}

// Snapshot is the current-price quote, matching brokerage.Snapshot's
// JSON shape.
type Snapshot struct {
	StockCode model.StockCode `json:"StockCode"`
	Price     decimal.Decimal `json:"Price"`
	Open      decimal.Decimal `json:"Open"`
	High      decimal.Decimal `json:"High"`
	Low       decimal.Decimal `json:"Low"`
	Volume    int64           `json:"Volume"`
}

// GetSnapshot fetches the current quote for a stock code.
func (c *Client) GetSnapshot(ctx context.Context, code model.StockCode) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, http.MethodPost, "/api/market/snapshot",
		map[string]string{"stock_code": string(code)}, &snap)
	return snap, err
}

// GetDailyPrices fetches up to days daily closes for code, oldest
// first — used by the buy executor's correlation checker.
func (c *Client) GetDailyPrices(ctx context.Context, code model.StockCode, days int) ([]decimal.Decimal, error) {
	var prices []decimal.Decimal
	err := c.do(ctx, http.MethodPost, "/api/market/daily-prices",
		map[string]interface{}{"stock_code": string(code), "days": days}, &prices)
	return prices, err
}

// PlaceOrder submits an order and returns the venue's initial
// (unconfirmed) result.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	path := "/api/trading/buy"
	if req.Side == model.OrderSideSell {
		path = "/api/trading/sell"
	}
	var result model.OrderResult
	err := c.do(ctx, http.MethodPost, path, req, &result)
	return result, err
}

// GetMinutePrices fetches today's minute-bar chart for a stock code.
func (c *Client) GetMinutePrices(ctx context.Context, code model.StockCode, count int) ([]model.MinuteBar, error) {
	var bars []model.MinuteBar
	err := c.do(ctx, http.MethodPost, "/api/market/minute-prices",
		map[string]interface{}{"stock_code": string(code), "count": count}, &bars)
	return bars, err
}

// CancelOrder cancels a still-open order.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string, code model.StockCode) error {
	return c.do(ctx, http.MethodPost, "/api/trading/cancel",
		map[string]string{"venue_order_id": venueOrderID, "stock_code": string(code)}, nil)
}

// GetOrderStatus looks up a submitted order's current fill state.
func (c *Client) GetOrderStatus(ctx context.Context, venueOrderID string) (model.OrderResult, error) {
	var result model.OrderResult
	err := c.do(ctx, http.MethodPost, "/api/trading/order-status",
		map[string]string{"venue_order_id": venueOrderID}, &result)
	return result, err
}

// GetBalance fetches the current cash and holdings snapshot.
func (c *Client) GetBalance(ctx context.Context) (model.PortfolioState, error) {
	var ps model.PortfolioState
	err := c.do(ctx, http.MethodPost, "/api/account/balance", nil, &ps)
	return ps, err
}

// GetBuyingPower fetches the precise cash-available-to-order figure.
func (c *Client) GetBuyingPower(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		BuyingPower int64 `json:"buying_power"`
	}
	err := c.do(ctx, http.MethodPost, "/api/account/cash", nil, &resp)
	return decimal.NewFromInt(resp.BuyingPower), err
}
