package gwclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/model"
)

func decNum(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func TestGetSnapshot_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/market/snapshot" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["stock_code"] != "005930" {
			t.Errorf("unexpected request body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Snapshot{StockCode: "005930", Price: decNum(70000)})
	}))
	defer srv.Close()

	c := New(srv.URL)
	snap, err := c.GetSnapshot(context.Background(), "005930")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.StockCode != "005930" || !snap.Price.Equal(decNum(70000)) {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestDo_PropagatesGatewayErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(gatewayError{Error: "bad_request", Detail: "insufficient buying power"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.PlaceOrder(context.Background(), model.OrderRequest{StockCode: "005930", Side: model.OrderSideBuy, Quantity: 10})
	if err == nil {
		t.Fatal("expected an error from a 400 response")
	}
	if got := err.Error(); !strings.Contains(got, "insufficient buying power") {
		t.Errorf("expected the gateway's error detail in the message, got %q", got)
	}
}

func TestPlaceOrder_RoutesByOrderSide(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(model.OrderResult{VenueOrderID: "abc"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.PlaceOrder(context.Background(), model.OrderRequest{Side: model.OrderSideSell}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/trading/sell" {
		t.Errorf("expected sell path, got %s", gotPath)
	}

	if _, err := c.PlaceOrder(context.Background(), model.OrderRequest{Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/trading/buy" {
		t.Errorf("expected buy path, got %s", gotPath)
	}
}

func TestGetBuyingPower_DecodesIntoDecimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"buying_power": 5_000_000})
	}))
	defer srv.Close()

	c := New(srv.URL)
	bp, err := c.GetBuyingPower(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bp.Equal(decNum(5_000_000)) {
		t.Errorf("expected 5,000,000, got %s", bp)
	}
}
