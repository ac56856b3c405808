package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "likecoin_api",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "likecoin_api",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "likecoin_api",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	txBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "likecoin_api",
			Subsystem: "chain",
			Name:      "broadcasts_total",
			Help:      "Total number of transaction broadcasts.",
		},
		[]string{"chain", "status"},
	)

	txBroadcastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "likecoin_api",
			Subsystem: "chain",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of transaction broadcasts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"chain"},
	)

	sequenceMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "likecoin_api",
			Subsystem: "chain",
			Name:      "sequence_mismatches_total",
			Help:      "Total number of sequence mismatches seen on broadcast.",
		},
	)

	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "likecoin_api",
			Subsystem: "rewards",
			Name:      "claims_total",
			Help:      "Total number of reward claim attempts.",
		},
		[]string{"kind", "result"},
	)

	pollerSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "likecoin_api",
			Subsystem: "poller",
			Name:      "sweeps_total",
			Help:      "Total number of confirmation poller sweeps.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		txBroadcasts,
		txBroadcastDuration,
		sequenceMismatches,
		claims,
		pollerSweeps,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBroadcast records the outcome of a chain broadcast.
func RecordBroadcast(chain, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	txBroadcasts.WithLabelValues(chain, status).Inc()
	txBroadcastDuration.WithLabelValues(chain).Observe(duration.Seconds())
}

// RecordSequenceMismatch counts a rejected broadcast due to a stale sequence.
func RecordSequenceMismatch() {
	sequenceMismatches.Inc()
}

// RecordClaim records a bonus, coupon or mission claim attempt.
func RecordClaim(kind, result string) {
	claims.WithLabelValues(kind, result).Inc()
}

// RecordPollerSweep records one confirmation poller pass over a record.
func RecordPollerSweep(result string) {
	pollerSweeps.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses record IDs out of paths so label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "tx", "users", "like", "iscn", "misc":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/" + parts[1] + "/:id"
	default:
		return "/" + parts[0]
	}
}
