// Package metrics provides Prometheus instrumentation for the portfolio engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PricesRecorded counts ledger inserts, partitioned by asset class.
	PricesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_prices_recorded_total",
		Help: "Total number of price observations appended to the ledger",
	}, []string{"asset_class"})

	// CacheRefreshes counts price-cache propagations, partitioned by outcome:
	// "applied" when the cache pair was overwritten, "stale" when the
	// observation was older than the cached timestamp.
	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_price_cache_refreshes_total",
		Help: "Price cache propagation attempts by outcome",
	}, []string{"outcome"})

	// PriceConflicts counts rejected duplicate (asset, timestamp) inserts.
	PriceConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_price_conflicts_total",
		Help: "Price observations rejected as duplicates",
	})

	// HoldingsCreated counts new positions, partitioned by category.
	HoldingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_holdings_created_total",
		Help: "Total holdings created",
	}, []string{"category"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
