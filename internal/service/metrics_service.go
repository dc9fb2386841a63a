package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	roleLookups     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	paymentsTotal   prometheus.Counter
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	roleLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "role_lookups_total",
		Help: "Role resolutions by outcome (cache_hit, db_hit, fallback)",
	}, []string{"outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "status_transitions_total",
		Help: "Entity status transitions by entity and target status",
	}, []string{"entity", "to"})

	paymentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Total confirmed payments",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, roleLookups, transitions, paymentsTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		roleLookups:     roleLookups,
		transitions:     transitions,
		paymentsTotal:   paymentsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordRoleLookup counts a role resolution by outcome.
func (m *MetricsService) RecordRoleLookup(outcome string) {
	if m == nil {
		return
	}
	m.roleLookups.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a committed status transition.
func (m *MetricsService) RecordTransition(entity, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, to).Inc()
}

// RecordPaymentConfirmed counts a first-time payment confirmation.
func (m *MetricsService) RecordPaymentConfirmed() {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc()
}
