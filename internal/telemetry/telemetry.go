// Package telemetry sets up structured logging and Prometheus metrics
// shared by every process. Every log line is a JSON object carrying
// a "service" attribute; no "event" key is added. Metrics are
// registered once per process via promauto and served on /metrics.
package telemetry

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewLogger builds the process-wide slog.Logger and sets it as the
// package default so library code can use slog.Info/slog.Error
// directly. Every record carries a "service" attribute.
func NewLogger(service string) *slog.Logger {
	base := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := base.With("service", service)
	slog.SetDefault(logger)
	return logger
}

var (
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_signals_emitted_total",
		Help: "Buy or sell signals emitted onto the bus",
	}, []string{"service", "kind"})

	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_orders_submitted_total",
		Help: "Orders submitted to the brokerage",
	}, []string{"service", "side", "status"})

	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_order_confirm_latency_seconds",
		Help:    "Time from order submission to confirmation",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	ExitRuleFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_exit_rule_fires_total",
		Help: "Exit chain rule that produced a sell decision",
	}, []string{"rule"})

	RiskGateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_risk_gate_rejections_total",
		Help: "Buy candidates rejected by a scanner risk gate",
	}, []string{"gate"})

	RateLimiterWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_rate_limiter_waits_total",
		Help: "Times an outbound brokerage call blocked on the token bucket",
	})

	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to OPEN, by endpoint",
	}, []string{"endpoint"})

	StreamPendingReclaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_stream_pending_reclaims_total",
		Help: "Messages reclaimed from the pending entries list after crash recovery",
	}, []string{"stream"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency by method and path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
