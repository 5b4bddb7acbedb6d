// Package metrics holds the prometheus collectors of the application.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snippetvault"

// Pastes counts successful paste mutations by operation (create, update,
// delete).
var Pastes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "paste_operations_total",
	Help:      "Number of successful paste mutations.",
}, []string{"op"})

// Failures counts failed service calls by error class (validation, access,
// not_found, backend).
var Failures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "paste_failures_total",
	Help:      "Number of failed paste operations by error class.",
}, []string{"class"})

// Requests observes HTTP request durations by route and status code.
var Requests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "Duration of HTTP requests.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "code"})

// Sessions reports the number of cached view sessions.
var Sessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "view_sessions",
	Help:      "Number of paste view sessions held in memory.",
})

// ObserveRequest records a single HTTP request.
func ObserveRequest(route string, code int, started time.Time) {
	Requests.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(started).Seconds())
}
