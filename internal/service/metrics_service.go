package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the progress/certification domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	enrollmentsCreated prometheus.Counter
	modulesCompleted   prometheus.Counter
	coursesCompleted   prometheus.Counter
	certificatesIssued prometheus.Counter
	eventsPublished    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
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

	enrollmentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_enrollments_created_total",
		Help: "Total number of enrollments created",
	})

	modulesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_modules_completed_total",
		Help: "Total number of module completions",
	})

	coursesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_courses_completed_total",
		Help: "Total number of enrollments driven to completion",
	})

	certificatesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_certificates_issued_total",
		Help: "Total number of certificates issued",
	})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_events_published_total",
		Help: "Domain events published to the broker, by routing key and outcome",
	}, []string{"routing_key", "outcome"})

	registry.MustRegister(requestDuration, requestTotal, enrollmentsCreated, modulesCompleted, coursesCompleted, certificatesIssued, eventsPublished)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		enrollmentsCreated: enrollmentsCreated,
		modulesCompleted:   modulesCompleted,
		coursesCompleted:   coursesCompleted,
		certificatesIssued: certificatesIssued,
		eventsPublished:    eventsPublished,
	}
}

// Handler returns the Prometheus scrape handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records latency and volume for a request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// IncEnrollmentsCreated counts a successful enrollment creation.
func (s *MetricsService) IncEnrollmentsCreated() {
	s.enrollmentsCreated.Inc()
}

// IncModulesCompleted counts a successful module completion.
func (s *MetricsService) IncModulesCompleted() {
	s.modulesCompleted.Inc()
}

// IncCoursesCompleted counts an enrollment reaching 100%.
func (s *MetricsService) IncCoursesCompleted() {
	s.coursesCompleted.Inc()
}

// IncCertificatesIssued counts a newly issued certificate.
func (s *MetricsService) IncCertificatesIssued() {
	s.certificatesIssued.Inc()
}

// ObserveEventPublish records a publish attempt outcome per routing key.
func (s *MetricsService) ObserveEventPublish(routingKey string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.eventsPublished.WithLabelValues(routingKey, outcome).Inc()
}
