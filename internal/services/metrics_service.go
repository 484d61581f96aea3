package services

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for the registration backend.
// All methods are safe on a nil receiver so callers may run without metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	paymentEvents   *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	orphanProfiles  prometheus.Gauge
}

// NewMetricsService registers the collectors on a fresh registry.
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

	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_flow_events_total",
		Help: "Payment flow state transitions by flow and event type",
	}, []string{"flow", "event"})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Registration write outcomes by kind",
	}, []string{"kind", "outcome"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification delivery outcomes by template type",
	}, []string{"type", "outcome"})

	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "mode"})

	orphanProfiles := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orphan_profiles",
		Help: "Profiles with no event or fest registration found by the last reconciliation run",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, paymentEvents, registrations, notifications, gatewayLatency, orphanProfiles, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		paymentEvents:   paymentEvents,
		registrations:   registrations,
		notifications:   notifications,
		gatewayLatency:  gatewayLatency,
		orphanProfiles:  orphanProfiles,
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

// Registry returns the underlying registry
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordPaymentEvent counts one audit transition
func (m *MetricsService) RecordPaymentEvent(flow, event string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(flow, event).Inc()
}

// RecordRegistration counts a registration write outcome (kind is "event" or "fest")
func (m *MetricsService) RecordRegistration(kind, outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind, outcome).Inc()
}

// RecordNotification counts sent, failed and dead-lettered notifications
func (m *MetricsService) RecordNotification(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, outcome).Inc()
}

func (m *MetricsService) ObserveGatewayCall(operation, mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(operation, mode).Observe(duration.Seconds())
}

// SetOrphanProfiles publishes the latest reconciliation count
func (m *MetricsService) SetOrphanProfiles(n int) {
	if m == nil {
		return
	}
	m.orphanProfiles.Set(float64(n))
}
