package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestor_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attestor_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	assessmentsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestor_control_assessments_total",
		Help: "Control assessment submissions by status.",
	}, []string{"status"})

	practiceEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestor_practice_evaluations_total",
		Help: "Practice evaluation submissions by status.",
	}, []string{"status"})

	evidenceUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestor_evidence_uploads_total",
		Help: "Evidence objects uploaded.",
	})
)

func recordRequest(method, route string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
