package middleware

import (
	"net/http"
	"strconv"
	"time"

	applogger "TradePulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "Current number of in-flight HTTP requests",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Metrics records request counters and latency histograms, and logs
// failed or slow requests through l when it is set. Label cardinality
// is bounded by the small fixed route set this server exposes.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			httpInFlight.Dec()
			elapsed := time.Since(start)
			path := r.URL.Path
			status := strconv.Itoa(rec.status)

			httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
			httpRequestDuration.WithLabelValues(path, r.Method, status).Observe(elapsed.Seconds())

			if l == nil {
				return
			}
			fields := []applogger.Field{
				applogger.String("path", path),
				applogger.String("method", r.Method),
				applogger.Int("status", rec.status),
				applogger.Duration("elapsed", elapsed),
			}
			if rec.status >= http.StatusInternalServerError {
				l.Error("http request failed", fields...)
			} else if slowThreshold > 0 && elapsed >= slowThreshold {
				l.Warn("http request slow", fields...)
			}
		})
	}
}
