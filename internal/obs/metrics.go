package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "passgate_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Доменные метрики движка проходов.
var (
	transitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passgate_transits_total",
			Help: "Recorded transits by outcome.",
		},
		[]string{"outcome"},
	)

	suspensionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passgate_suspensions_total",
		Help: "Badges suspended after repeated unauthorized transits.",
	})

	reactivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passgate_reactivations_total",
			Help: "Badges reactivated, by trigger (schedule|manual).",
		},
		[]string{"trigger"},
	)

	reactivationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passgate_reactivation_errors_total",
		Help: "Per-badge failures during reactivation ticks.",
	})

	reactivationTick = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "passgate_reactivation_tick_seconds",
		Help:    "Duration of reactivation scheduler ticks.",
		Buckets: prometheus.DefBuckets,
	})
)

var initOnce sync.Once

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			transitsTotal, suspensionsTotal, reactivationsTotal, reactivationErrors, reactivationTick,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// TransitRecorded counts a transit by its authorization outcome.
func TransitRecorded(authorized bool) {
	outcome := "unauthorized"
	if authorized {
		outcome = "authorized"
	}
	transitsTotal.WithLabelValues(outcome).Inc()
}

func BadgeSuspended() { suspensionsTotal.Inc() }

func BadgesReactivated(trigger string, n int) {
	if n <= 0 {
		return
	}
	reactivationsTotal.WithLabelValues(trigger).Add(float64(n))
}

func ReactivationFailed() { reactivationErrors.Inc() }

func ObserveReactivationTick(d time.Duration) { reactivationTick.Observe(d.Seconds()) }

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return p
	}
	switch parts[1] {
	case "transits":
		if len(parts) == 3 && parts[2] != "stream" {
			return "/v1/transits/:id"
		}
	case "badges":
		if len(parts) == 4 && parts[3] == "stats" {
			return "/v1/badges/:badge/stats"
		}
	case "authorizations":
		if len(parts) == 4 {
			return "/v1/authorizations/:badge/:passage"
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
