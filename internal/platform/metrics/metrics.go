// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeFailed  = "failed"
	OutcomeStorage = "storage_error"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_gen_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	generationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_gen_generation_requests_total",
			Help: "Image generation requests by outcome",
		},
		[]string{"outcome"},
	)
	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_gen_generation_duration_seconds",
			Help:    "Time spent waiting on the generation provider",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_gen_auth_attempts_total",
			Help: "Auth attempts by event and outcome",
		},
		[]string{"event", "success"},
	)
)

func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func RecordGeneration(outcome string, d time.Duration) {
	generationRequests.WithLabelValues(outcome).Inc()
	generationDuration.Observe(d.Seconds())
}

func RecordAuthAttempt(event string, success bool) {
	authAttempts.WithLabelValues(event, strconv.FormatBool(success)).Inc()
}
