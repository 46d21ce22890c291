package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// edge and the attendance mutation paths. A nil receiver is a no-op so
// services never need to guard their observations.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	markedTotal     prometheus.Counter
	deletedTotal    prometheus.Counter
	notifyTotal     *prometheus.CounterVec
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

	markedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marked_total",
		Help: "Total attendance records written through mark calls",
	})

	deletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_deleted_total",
		Help: "Total attendance records deleted",
	})

	notifyTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "absence_notifications_total",
		Help: "Absence notification outcomes",
	}, []string{"outcome"})

	registry.MustRegister(requestDuration, requestTotal, markedTotal, deletedTotal, notifyTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		markedTotal:     markedTotal,
		deletedTotal:    deletedTotal,
		notifyTotal:     notifyTotal,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// AddMarked counts records written by mark calls.
func (m *MetricsService) AddMarked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.markedTotal.Add(float64(n))
}

// AddDeleted counts deleted records.
func (m *MetricsService) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedTotal.Add(float64(n))
}

// AddNotifications counts notification outcomes.
func (m *MetricsService) AddNotifications(success, failed int) {
	if m == nil {
		return
	}
	if success > 0 {
		m.notifyTotal.WithLabelValues("success").Add(float64(success))
	}
	if failed > 0 {
		m.notifyTotal.WithLabelValues("failed").Add(float64(failed))
	}
}
