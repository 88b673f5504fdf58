// Package observability exposes Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for HTTP traffic and the receiving ledger.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	receiptsPosted   prometheus.Counter
	receiptsReversed prometheus.Counter
	lotsCreated      prometheus.Counter
	sequencesIssued  prometheus.Counter
	overReceipts     prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	receiptsPosted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_receipts_posted_total",
		Help: "Goods receipts posted.",
	})
	receiptsReversed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_receipts_reversed_total",
		Help: "Goods receipts reversed.",
	})
	lotsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_lots_created_total",
		Help: "Inventory lots created by posting.",
	})
	sequencesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_fifo_sequences_issued_total",
		Help: "FIFO sequence numbers issued.",
	})
	overReceipts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_over_receipts_total",
		Help: "Receipts flagged for exceeding PO ordered quantity.",
	})
	registry.MustRegister(requests, duration, receiptsPosted, receiptsReversed, lotsCreated, sequencesIssued, overReceipts)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		receiptsPosted:   receiptsPosted,
		receiptsReversed: receiptsReversed,
		lotsCreated:      lotsCreated,
		sequencesIssued:  sequencesIssued,
		overReceipts:     overReceipts,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ReceiptPosted increments the posted-receipt counter.
func (m *Metrics) ReceiptPosted(lots int) {
	if m == nil {
		return
	}
	m.receiptsPosted.Inc()
	m.lotsCreated.Add(float64(lots))
	m.sequencesIssued.Add(float64(lots))
}

// ReceiptReversed increments the reversed-receipt counter.
func (m *Metrics) ReceiptReversed() {
	if m == nil {
		return
	}
	m.receiptsReversed.Inc()
}

// OverReceiptFlagged increments the over-receipt counter.
func (m *Metrics) OverReceiptFlagged() {
	if m == nil {
		return
	}
	m.overReceipts.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
