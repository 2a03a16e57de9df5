// Package metrics exposes Prometheus metrics of the factory and the server that serves them.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request rejection and callback outcome labels.
const (
	ResultDispatched          = "dispatched"
	ResultInsufficientDeposit = "insufficient_deposit"
	ResultDuplicate           = "duplicate"
	ResultInvalid             = "invalid"
	ResultDispatchError       = "dispatch_error"

	OutcomeCommitted = "committed"
	OutcomeRefunded  = "refunded"
	OutcomeDropped   = "dropped"
)

// Metrics collects factory metrics. A nil *Metrics is a valid no-op collector.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	refunds          *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
	registrySize     prometheus.Gauge
	inflightRequests prometheus.Gauge
}

// NewMetrics creates a collector with its own registry. The namespace is sanitized for Prometheus.
func NewMetrics(namespace string) *Metrics {
	namespace = strings.ReplaceAll(namespace, "-", "_")
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "creation_requests_total",
				Help:      "Creation requests by result",
			},
			[]string{"result"},
		),
		callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "creation_callbacks_total",
				Help:      "Resolved creation callbacks by outcome",
			},
			[]string{"outcome"},
		),
		refunds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refunds_total",
				Help:      "Compensating refunds by status",
			},
			[]string{"status"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "creation_resolve_duration_seconds",
				Help:      "Time between dispatch and callback resolution",
				Buckets:   prometheus.DefBuckets,
			},
		),
		registrySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_children",
				Help:      "Number of committed children",
			},
		),
		inflightRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_requests",
				Help:      "Dispatched requests awaiting their callback",
			},
		),
	}

	registry.MustRegister(
		m.requests,
		m.callbacks,
		m.refunds,
		m.resolveDuration,
		m.registrySize,
		m.inflightRequests,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) RecordRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCallback(outcome string, sinceDispatch time.Duration) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
	if outcome != OutcomeDropped {
		m.resolveDuration.Observe(sinceDispatch.Seconds())
	}
}

func (m *Metrics) RecordRefund(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.refunds.WithLabelValues(status).Inc()
}

func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}

func (m *Metrics) SetInflight(n int) {
	if m == nil {
		return
	}
	m.inflightRequests.Set(float64(n))
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsServer serves /metrics on a dedicated listener.
type MetricsServer struct {
	srv *http.Server
}

func New(m *Metrics, listenAddr string) (*MetricsServer, error) {
	mux := chi.NewRouter()
	mux.Handle("/metrics", m.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
