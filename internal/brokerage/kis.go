// Package brokerage implements the Gateway's outbound connection to
// the KIS (Korea Investment & Securities) OpenAPI: a REST client for
// quotes, orders, and account queries, and a WebSocket streamer that
// republishes real-time execution ticks onto the price bus. Grounded
// directly on this system's original KIS REST wrapper and WebSocket
// streamer.
package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/breaker"
	"github.com/primejennie/trading-core/internal/model"
	"github.com/primejennie/trading-core/internal/ratelimit"
)

// APIError wraps a non-zero rt_cd business error returned by KIS.
type APIError struct {
	Message string
	RtCode  string
	MsgCode string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis: %s (rt_cd=%s msg_cd=%s)", e.Message, e.RtCode, e.MsgCode)
}

// Config holds the credentials and endpoints the client needs.
type Config struct {
	AppKey          string
	AppSecret       string
	AccountNo       string
	AccountProdCode string
	BaseURL         string
	Paper           bool
	TokenCachePath  string
	RateLimitPerSec int
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Client is the KIS REST client. Token acquisition, rate limiting, and
// circuit breaking are all handled internally so callers only see
// domain-shaped requests and responses.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Bucket
	breaker *breaker.Breaker

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient builds a Client and loads any cached token from disk.
func NewClient(cfg Config, onRateLimitWait func(), onBreakerTrip func(name string)) *Client {
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: ratelimit.New(cfg.RateLimitPerSec, onRateLimitWait),
		breaker: breaker.New("kis-rest", onBreakerTrip),
	}
	c.loadCachedToken()
	return c
}

func (c *Client) loadCachedToken() {
	data, err := os.ReadFile(c.cfg.TokenCachePath)
	if err != nil {
		return
	}
	var t cachedToken
	if json.Unmarshal(data, &t) != nil {
		return
	}
	if time.Now().Before(t.ExpiresAt.Add(-60 * time.Second)) {
		c.accessToken = t.AccessToken
		c.expiresAt = t.ExpiresAt
	}
}

func (c *Client) saveCachedToken() {
	data, err := json.Marshal(cachedToken{AccessToken: c.accessToken, ExpiresAt: c.expiresAt})
	if err != nil {
		return
	}
	_ = os.WriteFile(c.cfg.TokenCachePath, data, 0o600)
}

// authenticate returns a valid access token, refreshing it if the
// cached one has expired or is within 60 seconds of expiring.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt.Add(-60*time.Second)) {
		return c.accessToken, nil
	}

	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.rawPost(ctx, "/oauth2/tokenP", body, &resp); err != nil {
		return "", fmt.Errorf("kis: authenticate: %w", err)
	}

	c.accessToken = resp.AccessToken
	if resp.ExpiresIn == 0 {
		resp.ExpiresIn = 86400
	}
	c.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.saveCachedToken()
	return c.accessToken, nil
}

func (c *Client) headers(ctx context.Context, trID string) (http.Header, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("authorization", "Bearer "+token)
	h.Set("appkey", c.cfg.AppKey)
	h.Set("appsecret", c.cfg.AppSecret)
	h.Set("tr_id", trID)
	h.Set("custtype", "P")
	return h, nil
}

// request performs one rate-limited, circuit-broken REST call and
// checks KIS's rt_cd business-error envelope.
func (c *Client) request(ctx context.Context, method, path, trID string, query map[string]string, body interface{}, out interface{}) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	headers, err := c.headers(ctx, trID)
	if err != nil {
		c.breaker.Failure()
		return err
	}

	url := c.cfg.BaseURL + path
	if len(query) > 0 {
		q := "?"
		first := true
		for k, v := range query {
			if !first {
				q += "&"
			}
			q += k + "=" + v
			first = false
		}
		url += q
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.breaker.Failure()
			return fmt.Errorf("kis: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.breaker.Failure()
		return fmt.Errorf("kis: build request: %w", err)
	}
	req.Header = headers

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Failure()
		return fmt.Errorf("kis: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.Failure()
		return fmt.Errorf("kis: read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		c.breaker.Failure()
		return fmt.Errorf("kis: %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}

	var envelope struct {
		RtCd  string `json:"rt_cd"`
		Msg1  string `json:"msg1"`
		MsgCd string `json:"msg_cd"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.RtCd != "" && envelope.RtCd != "0" {
		c.breaker.Failure()
		return &APIError{Message: envelope.Msg1, RtCode: envelope.RtCd, MsgCode: envelope.MsgCd}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.breaker.Failure()
			return fmt.Errorf("kis: decode response %s: %w", path, err)
		}
	}
	c.breaker.Success()
	return nil
}

func (c *Client) rawPost(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("kis: %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

// Snapshot is the current-price quote returned by inquire-price.
type Snapshot struct {
	StockCode model.StockCode
	Price     decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Volume    int64
}

// GetSnapshot fetches the current quote for a stock code (FHKST01010100).
func (c *Client) GetSnapshot(ctx context.Context, code model.StockCode) (Snapshot, error) {
	var resp struct {
		Output struct {
			Price  string `json:"stck_prpr"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Volume string `json:"acml_vol"`
		} `json:"output"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-price", "FHKST01010100",
		map[string]string{"FID_COND_MRKT_DIV_CODE": "J", "FID_INPUT_ISCD": string(code)}, nil, &resp)
	if err != nil {
		return Snapshot{}, err
	}
	vol, _ := strconv.ParseInt(resp.Output.Volume, 10, 64)
	return Snapshot{
		StockCode: code,
		Price:     parseDecimal(resp.Output.Price),
		Open:      parseDecimal(resp.Output.Open),
		High:      parseDecimal(resp.Output.High),
		Low:       parseDecimal(resp.Output.Low),
		Volume:    vol,
	}, nil
}

// GetDailyPrices fetches up to days daily closes for a stock code
// (FHKST01010400), used by the correlation checker's history function.
func (c *Client) GetDailyPrices(ctx context.Context, code model.StockCode, days int) ([]decimal.Decimal, error) {
	var resp struct {
		Output []struct {
			Close string `json:"stck_clpr"`
		} `json:"output"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-daily-price", "FHKST01010400",
		map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         string(code),
			"FID_INPUT_DATE_1":       "",
			"FID_INPUT_DATE_2":       time.Now().Format("20060102"),
			"FID_PERIOD_DIV_CODE":    "D",
			"FID_ORG_ADJ_PRC":        "0",
		}, nil, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Output) > days {
		resp.Output = resp.Output[:days]
	}
	// KIS returns most-recent-first; the correlation checker wants
	// oldest-first for log-return computation.
	out := make([]decimal.Decimal, len(resp.Output))
	for i, row := range resp.Output {
		out[len(resp.Output)-1-i] = parseDecimal(row.Close)
	}
	return out, nil
}

func (c *Client) orderTrID(side model.OrderSide) string {
	switch {
	case side == model.OrderSideBuy && c.cfg.Paper:
		return "VTTC0802U"
	case side == model.OrderSideBuy:
		return "TTTC0802U"
	case c.cfg.Paper:
		return "VTTC0801U"
	default:
		return "TTTC0801U"
	}
}

// PlaceOrder submits a market or limit order (order-cash).
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	ordDvsn := "01" // market
	ordPrice := "0"
	if req.Kind == model.OrderKindLimit {
		ordDvsn = "00"
		ordPrice = req.LimitPrice.String()
	}

	var resp struct {
		Output struct {
			OrderNo string `json:"ODNO"`
			OrdTime string `json:"ORD_TMD"`
		} `json:"output"`
	}
	err := c.request(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash", c.orderTrID(req.Side), nil,
		map[string]string{
			"CANO":         c.cfg.AccountNo,
			"ACNT_PRDT_CD": c.cfg.AccountProdCode,
			"PDNO":         string(req.StockCode),
			"ORD_DVSN":     ordDvsn,
			"ORD_QTY":      strconv.FormatInt(req.Quantity, 10),
			"ORD_UNPR":     ordPrice,
		}, &resp)
	if err != nil {
		return model.OrderResult{}, err
	}

	return model.OrderResult{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  resp.Output.OrderNo,
		StockCode:     req.StockCode,
		Side:          req.Side,
		Status:        "SUBMITTED",
		SubmittedAt:   time.Now(),
	}, nil
}

// GetBalance fetches account cash and holdings (inquire-balance).
func (c *Client) GetBalance(ctx context.Context) (model.PortfolioState, error) {
	trID := "TTTC8434R"
	if c.cfg.Paper {
		trID = "VTTC8434R"
	}

	var resp struct {
		Output1 []struct {
			StockCode  string `json:"pdno"`
			Quantity   string `json:"hldg_qty"`
			AvgBuy     string `json:"pchs_avg_pric"`
			CurPrice   string `json:"prpr"`
			CurValue   string `json:"evlu_amt"`
			ProfitPct  string `json:"evlu_pfls_rt"`
		} `json:"output1"`
		Output2 []struct {
			StockEval string `json:"scts_evlu_amt"`
		} `json:"output2"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-balance", trID,
		map[string]string{
			"CANO":                  c.cfg.AccountNo,
			"ACNT_PRDT_CD":          c.cfg.AccountProdCode,
			"AFHR_FLPR_YN":          "N",
			"OFL_YN":                "",
			"INQR_DVSN":             "02",
			"UNPR_DVSN":             "01",
			"FUND_STTL_ICLD_YN":     "N",
			"FNCG_AMT_AUTO_RDPT_YN": "N",
			"PRCS_DVSN":             "01",
			"CTX_AREA_FK100":        "",
			"CTX_AREA_NK100":        "",
		}, nil, &resp)
	if err != nil {
		return model.PortfolioState{}, err
	}

	var positions []model.Position
	for _, item := range resp.Output1 {
		qty, _ := strconv.ParseInt(item.Quantity, 10, 64)
		if qty <= 0 {
			continue
		}
		positions = append(positions, model.Position{
			StockCode:       model.StockCode(item.StockCode),
			Quantity:        qty,
			AverageBuyPrice: parseDecimal(item.AvgBuy),
			CurrentPrice:    parseDecimal(item.CurPrice),
			ProfitPct:       parseDecimal(item.ProfitPct),
		})
	}

	cash, err := c.GetBuyingPower(ctx)
	if err != nil {
		cash = 0
	}
	stockEval := decimal.Zero
	if len(resp.Output2) > 0 {
		stockEval = parseDecimal(resp.Output2[0].StockEval)
	}
	cashD := decimal.NewFromInt(cash)

	return model.PortfolioState{
		Cash:        cashD,
		TotalAssets: cashD.Add(stockEval),
		Positions:   positions,
		UpdatedAt:   time.Now(),
	}, nil
}

// GetBuyingPower fetches the precise cash-available-to-order figure
// (inquire-psbl-order), used in preference to the balance summary's
// settlement-lagged cash field.
func (c *Client) GetBuyingPower(ctx context.Context) (int64, error) {
	trID := "TTTC8908R"
	if c.cfg.Paper {
		trID = "VTTC8908R"
	}
	var resp struct {
		Output struct {
			NoReceivableBuyAmt string `json:"nrcvb_buy_amt"`
			OrderableCash      string `json:"ord_psbl_cash"`
		} `json:"output"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-psbl-order", trID,
		map[string]string{
			"CANO":                c.cfg.AccountNo,
			"ACNT_PRDT_CD":        c.cfg.AccountProdCode,
			"PDNO":                "005930",
			"ORD_UNPR":            "0",
			"ORD_DVSN":            "01",
			"CMA_EVLU_AMT_ICLD_YN": "Y",
			"OVRS_ICLD_YN":        "N",
		}, nil, &resp)
	if err != nil {
		return 0, err
	}
	if v := resp.Output.NoReceivableBuyAmt; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, nil
		}
	}
	if v := resp.Output.OrderableCash; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, nil
}

// GetMinutePrices fetches today's minute-bar chart for a stock code
// (FHKST03010200), available for backfilling a bar aggregator's ring
// buffer after a reconnect gap.
func (c *Client) GetMinutePrices(ctx context.Context, code model.StockCode, count int) ([]model.MinuteBar, error) {
	var resp struct {
		Output2 []struct {
			Time   string `json:"stck_cntg_hour"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Close  string `json:"stck_prpr"`
			Volume string `json:"cntg_vol"`
		} `json:"output2"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice", "FHKST03010200",
		map[string]string{
			"FID_ETC_CLS_CODE":       "",
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         string(code),
			"FID_INPUT_HOUR_1":       time.Now().Format("150405"),
			"FID_PW_DATA_INCU_YN":    "Y",
		}, nil, &resp)
	if err != nil {
		return nil, err
	}
	if count > 0 && len(resp.Output2) > count {
		resp.Output2 = resp.Output2[:count]
	}
	// KIS returns most-recent-first; the aggregator wants oldest-first.
	bars := make([]model.MinuteBar, len(resp.Output2))
	for i, row := range resp.Output2 {
		vol, _ := strconv.ParseInt(row.Volume, 10, 64)
		bars[len(resp.Output2)-1-i] = model.MinuteBar{
			StockCode: code,
			Open:      parseDecimal(row.Open),
			High:      parseDecimal(row.High),
			Low:       parseDecimal(row.Low),
			Close:     parseDecimal(row.Close),
			Volume:    vol,
		}
	}
	return bars, nil
}

// CancelOrder cancels a still-open order (order-rvsecncl), used when a
// LIMIT order (the momentum family's entry style) times out unfilled.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string, code model.StockCode) error {
	trID := "TTTC0803U"
	if c.cfg.Paper {
		trID = "VTTC0803U"
	}
	return c.request(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-rvsecncl", trID, nil,
		map[string]string{
			"CANO":               c.cfg.AccountNo,
			"ACNT_PRDT_CD":       c.cfg.AccountProdCode,
			"KRX_FWDG_ORD_ORGNO": "",
			"ORGN_ODNO":          venueOrderID,
			"ORD_DVSN":           "00",
			"RVSE_CNCL_DVSN_CD":  "02", // cancel
			"ORD_QTY":            "0",
			"ORD_UNPR":           "0",
			"QTY_ALL_ORD_YN":     "Y",
		}, nil)
}

// GetOrderStatus looks up a submitted order's current fill state
// (inquire-daily-ccld), the authoritative alternative to inferring a
// fill from a before/after balance-snapshot diff.
func (c *Client) GetOrderStatus(ctx context.Context, venueOrderID string) (model.OrderResult, error) {
	trID := "TTTC8001R"
	if c.cfg.Paper {
		trID = "VTTC8001R"
	}
	var resp struct {
		Output1 []struct {
			OrderNo    string `json:"odno"`
			StockCode  string `json:"pdno"`
			OrdQty     string `json:"ord_qty"`
			TotCcldQty string `json:"tot_ccld_qty"`
			CcldAvgPrc string `json:"avg_prvs"`
		} `json:"output1"`
	}
	err := c.request(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-daily-ccld", trID,
		map[string]string{
			"CANO":            c.cfg.AccountNo,
			"ACNT_PRDT_CD":    c.cfg.AccountProdCode,
			"INQR_STRT_DT":    time.Now().Format("20060102"),
			"INQR_END_DT":     time.Now().Format("20060102"),
			"ODNO":            venueOrderID,
			"CCLD_DVSN":       "00",
			"SLL_BUY_DVSN_CD": "00",
			"PDNO":            "",
			"INQR_DVSN":       "00",
			"INQR_DVSN_1":     "",
			"INQR_DVSN_3":     "00",
			"CTX_AREA_FK100":  "",
			"CTX_AREA_NK100":  "",
		}, nil, &resp)
	if err != nil {
		return model.OrderResult{}, err
	}
	for _, row := range resp.Output1 {
		if row.OrderNo != venueOrderID {
			continue
		}
		ordQty, _ := strconv.ParseInt(row.OrdQty, 10, 64)
		filledQty, _ := strconv.ParseInt(row.TotCcldQty, 10, 64)
		status := "SUBMITTED"
		switch {
		case ordQty > 0 && filledQty >= ordQty:
			status = "FILLED"
		case filledQty > 0:
			status = "PARTIAL"
		}
		return model.OrderResult{
			VenueOrderID: row.OrderNo,
			StockCode:    model.StockCode(row.StockCode),
			FilledQty:    filledQty,
			FillPrice:    parseDecimal(row.CcldAvgPrc),
			Status:       status,
			ConfirmedAt:  time.Now(),
		}, nil
	}
	return model.OrderResult{VenueOrderID: venueOrderID, Status: "SUBMITTED"}, nil
}

// GetApprovalKey fetches the WebSocket approval key used to open the
// real-time execution feed.
func (c *Client) GetApprovalKey(ctx context.Context) (string, error) {
	var resp struct {
		ApprovalKey string `json:"approval_key"`
	}
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"secretkey":  c.cfg.AppSecret,
	}
	if err := c.rawPost(ctx, "/oauth2/Approval", body, &resp); err != nil {
		return "", fmt.Errorf("kis: get approval key: %w", err)
	}
	return resp.ApprovalKey, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
