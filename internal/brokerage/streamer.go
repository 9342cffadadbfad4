package brokerage

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/primejennie/trading-core/internal/bus"
	"github.com/primejennie/trading-core/internal/model"
)

const (
	trIDStockExecution = "H0STCNT0"
	reconnectDelay      = 60 * time.Second
	subscribeThrottle   = 50 * time.Millisecond
)

// Streamer maintains the KIS real-time execution WebSocket feed and
// republishes every tick onto the price bus. Reconnects with a fresh
// approval key on disconnect rather than recursing, matching the
// original streamer's non-recursive reconnect loop.
type Streamer struct {
	client *Client
	bus    *bus.Bus
	wsURL  string

	mu   sync.Mutex
	subs map[model.StockCode]struct{}
}

// NewStreamer builds a Streamer bound to a REST client (for approval
// keys) and a bus (for publishing ticks).
func NewStreamer(client *Client, b *bus.Bus, wsURL string) *Streamer {
	return &Streamer{
		client: client,
		bus:    b,
		wsURL:  wsURL,
		subs:   make(map[model.StockCode]struct{}),
	}
}

// Subscribe adds stock codes to the active subscription set. Callers
// typically call this once before Run, or again if a new watchlist
// candidate appears mid-session — new codes take effect on the next
// reconnect cycle.
func (s *Streamer) Subscribe(codes ...model.StockCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range codes {
		s.subs[c] = struct{}{}
	}
}

func (s *Streamer) subscribedCodes() []model.StockCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StockCode, 0, len(s.subs))
	for c := range s.subs {
		out = append(out, c)
	}
	return out
}

// Run connects, subscribes, and republishes ticks until ctx is
// cancelled, reconnecting with a fresh approval key after every drop.
func (s *Streamer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if len(s.subscribedCodes()) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}

		approvalKey, err := s.client.GetApprovalKey(ctx)
		if err != nil {
			slog.Error("get approval key failed", "error", err)
			if !sleepOrDone(ctx, reconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		if err := s.runOnce(ctx, approvalKey); err != nil {
			slog.Warn("kis websocket disconnected", "error", err)
		}

		if !sleepOrDone(ctx, reconnectDelay) {
			return ctx.Err()
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Streamer) runOnce(ctx context.Context, approvalKey string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("kis websocket connected")

	go s.sendSubscriptions(conn, approvalKey)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(ctx, conn, string(message))
	}
}

func (s *Streamer) sendSubscriptions(conn *websocket.Conn, approvalKey string) {
	for _, code := range s.subscribedCodes() {
		msg := map[string]interface{}{
			"header": map[string]string{
				"approval_key": approvalKey,
				"custtype":     "P",
				"tr_type":      "1",
				"content-type": "utf-8",
			},
			"body": map[string]interface{}{
				"input": map[string]string{
					"tr_id":  trIDStockExecution,
					"tr_key": string(code),
				},
			},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
		time.Sleep(subscribeThrottle)
	}
}

// handleMessage distinguishes JSON control messages (PINGPONG echo,
// subscription acks) from pipe-delimited tick payloads and republishes
// parsed ticks onto kis:prices.
func (s *Streamer) handleMessage(ctx context.Context, conn *websocket.Conn, message string) {
	if message == "" {
		return
	}

	if strings.HasPrefix(message, "{") {
		if strings.Contains(message, `"tr_id":"PINGPONG"`) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(message))
		}
		return
	}

	if message[0] != '0' && message[0] != '1' {
		return
	}

	parts := strings.Split(message, "|")
	if len(parts) < 4 {
		return
	}
	fields := strings.Split(parts[3], "^")
	if len(fields) < 6 {
		return
	}

	code := fields[0]
	price := parseDecimal(fields[2])
	high := parseDecimal(fields[5])
	var volume int64
	if len(fields) > 10 {
		volume, _ = strconv.ParseInt(fields[10], 10, 64)
	}

	tick := model.PriceTick{
		StockCode: model.StockCode(code),
		Price:     price,
		High:      high,
		Low:       decimal.Zero,
		Volume:    volume,
		Timestamp: time.Now(),
	}
	if _, err := s.bus.Publish(ctx, bus.StreamPrices, tick); err != nil {
		slog.Error("publish price tick failed", "stock_code", code, "error", err)
	}
}
