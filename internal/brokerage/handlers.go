package brokerage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/primejennie/trading-core/internal/model"
)

// Handlers implements the Gateway's local HTTP surface: every peer
// service reaches the venue only through these routes, never through
// the KIS REST client directly.
type Handlers struct {
	client   *Client
	streamer *Streamer
	service  string
}

// NewHandlers builds the HTTP handler set.
func NewHandlers(client *Client, streamer *Streamer, service string) *Handlers {
	return &Handlers{client: client, streamer: streamer, service: service}
}

// Mount registers every route on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/api/market/snapshot", h.snapshot)
	r.Post("/api/market/daily-prices", h.dailyPrices)
	r.Post("/api/market/minute-prices", h.minutePrices)
	r.Get("/api/market/is-market-open", h.isMarketOpen)
	r.Get("/api/market/is-trading-day", h.isTradingDay)
	r.Post("/api/trading/buy", h.placeOrder(model.OrderSideBuy))
	r.Post("/api/trading/sell", h.placeOrder(model.OrderSideSell))
	r.Post("/api/trading/cancel", h.cancelOrder)
	r.Post("/api/trading/order-status", h.orderStatus)
	r.Post("/api/account/balance", h.balance)
	r.Post("/api/account/cash", h.cash)
	r.Post("/api/subscribe", h.subscribe)
	r.Post("/api/unsubscribe", h.unsubscribe)
	r.Get("/health", h.health)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":     http.StatusText(status),
		"detail":    detail,
		"service":   h.service,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handlers) statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	default:
		if _, ok := err.(*APIError); ok {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
}

func (h *Handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StockCode string `json:"stock_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.client.GetSnapshot(r.Context(), model.StockCode(req.StockCode))
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) dailyPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StockCode string `json:"stock_code"`
		Days      int    `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Days <= 0 {
		req.Days = 150
	}
	prices, err := h.client.GetDailyPrices(r.Context(), model.StockCode(req.StockCode), req.Days)
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, prices)
}

func (h *Handlers) minutePrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StockCode string `json:"stock_code"`
		Count     int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bars, err := h.client.GetMinutePrices(r.Context(), model.StockCode(req.StockCode), req.Count)
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, bars)
}

func (h *Handlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VenueOrderID string `json:"venue_order_id"`
		StockCode    string `json:"stock_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.client.CancelOrder(r.Context(), req.VenueOrderID, model.StockCode(req.StockCode)); err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handlers) orderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VenueOrderID string `json:"venue_order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.client.GetOrderStatus(r.Context(), req.VenueOrderID)
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) isMarketOpen(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err == nil {
		now = now.In(loc)
	}
	openHour, closeHour := 9, 15
	open := now.Weekday() != time.Saturday && now.Weekday() != time.Sunday &&
		now.Hour() >= openHour && now.Hour() < closeHour
	session := "closed"
	if open {
		session = "regular"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"open": open, "session": session})
}

func (h *Handlers) isTradingDay(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		t = time.Now()
	}
	trading := t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"trading": trading})
}

func (h *Handlers) placeOrder(side model.OrderSide) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Side = side
		if req.ClientOrderID == "" {
			req.ClientOrderID = uuid.NewString()
		}
		result, err := h.client.PlaceOrder(r.Context(), req)
		if err != nil {
			h.writeError(w, h.statusFor(err), err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handlers) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.client.GetBalance(r.Context())
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

func (h *Handlers) cash(w http.ResponseWriter, r *http.Request) {
	power, err := h.client.GetBuyingPower(r.Context())
	if err != nil {
		h.writeError(w, h.statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"buying_power": power})
}

func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codes []string `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	codes := make([]model.StockCode, len(req.Codes))
	for i, c := range req.Codes {
		codes[i] = model.StockCode(c)
	}
	h.streamer.Subscribe(codes...)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handlers) unsubscribe(w http.ResponseWriter, r *http.Request) {
	// The original streamer never supported dropping a subscription
	// mid-session (KIS requires a full reconnect either way). This
	// endpoint accepts the request and changes nothing: the streamer
	// has no way to drop a code, so every code ever subscribed stays in
	// its set and is subscribed again on each reconnect.
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.service})
}
