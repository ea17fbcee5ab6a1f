// Package metrics exposes Prometheus counters describing how the client keeps
// its view of plans in sync with the backend.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by FetchResult.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeClosed  = "closed"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// REST
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Live channel
	LiveEvents     *prometheus.CounterVec
	LiveMalformed  prometheus.Counter
	LiveReconnects prometheus.Counter
	LiveConnected  prometheus.Gauge

	// Dashboard scopes
	Fetches *prometheus.CounterVec
	Actions *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprocess_api_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"operation", "code"},
		),
		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reprocess_api_request_duration_seconds",
				Help:    "Backend API request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		LiveEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprocess_live_events_total",
				Help: "Live notifications received, by scope and whether they triggered a fetch",
			},
			[]string{"scope", "action"},
		),
		LiveMalformed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reprocess_live_malformed_total",
				Help: "Live notifications dropped because they were not valid JSON",
			},
		),
		LiveReconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reprocess_live_reconnects_total",
				Help: "Successful live channel reconnects",
			},
		),
		LiveConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reprocess_live_connections",
				Help: "Currently open live connections",
			},
		),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprocess_fetch_results_total",
				Help: "Fetch results by scope and outcome (applied, stale, closed, error)",
			},
			[]string{"scope", "outcome"},
		),
		Actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprocess_actions_total",
				Help: "Dispatched mutations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

// The helpers below accept a nil receiver so callers can run without metrics.

// RecordAPIRequest records a completed REST call. code is 0 for transport faults.
func (m *Metrics) RecordAPIRequest(operation string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.APIRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordLiveEvent records a notification seen by a scope.
func (m *Metrics) RecordLiveEvent(scope string, refetched bool) {
	if m == nil {
		return
	}
	action := "ignored"
	if refetched {
		action = "refetch"
	}
	m.LiveEvents.WithLabelValues(scope, action).Inc()
}

// RecordMalformed records a dropped notification.
func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.LiveMalformed.Inc()
}

// RecordReconnect records a successful reconnect.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.LiveReconnects.Inc()
}

// ConnectionOpened increments the open-connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.LiveConnected.Inc()
}

// ConnectionClosed decrements the open-connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.LiveConnected.Dec()
}

// FetchResult records what a scope did with a fetch result.
func (m *Metrics) FetchResult(scope, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(scope, outcome).Inc()
}

// RecordAction records a dispatched mutation.
func (m *Metrics) RecordAction(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Actions.WithLabelValues(action, outcome).Inc()
}

// Serve exposes gatherer on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
