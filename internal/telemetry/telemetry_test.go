package telemetry

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestMiddleware_CapturesNonDefaultStatusCode(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/trading/buy", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201 to pass through, got %d", rec.Code)
	}
}

func TestMiddleware_DefaultsStatusTo200WhenUnset(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected implicit 200 status, got %d", rec.Code)
	}
}

func TestNewLogger_SetsServiceAttribute(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	stdout := os.Stdout
	os.Stdout = w
	logger := NewLogger("test-service")
	os.Stdout = stdout
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	logger.Info("probe")
	w.Close()
	out, _ := io.ReadAll(r)
	if !strings.Contains(string(out), `"service":"test-service"`) {
		t.Errorf("expected a service attribute on the log line, got %s", out)
	}
}
