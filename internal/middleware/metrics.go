package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics records request counts and latencies per route. Dynamic
// path segments are normalized to patterns so the label cardinality
// stays bounded.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP metrics on the given
// registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Middleware wraps a handler and records metrics for every request.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw, ok := w.(*responseWriter)
		if !ok {
			rw = newResponseWriter(w)
		}
		next.ServeHTTP(rw, r)

		route := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// normalizePath maps paths with dynamic segments to route patterns, e.g.
// /psi/4f3c.../join -> /psi/{id}/join.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/metrics", "/login_for_access_token",
		"/users/me", "/locations", "/locations/nearby_users", "/psi/init":
		return path
	}

	if strings.HasPrefix(path, "/psi/") {
		parts := strings.Split(path, "/")
		switch {
		case len(parts) == 3 && parts[2] != "":
			return "/psi/{id}"
		case len(parts) == 4 && (parts[3] == "join" || parts[3] == "intersection"):
			return "/psi/{id}/" + parts[3]
		}
	}
	return "other"
}
