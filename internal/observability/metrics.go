package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fracpack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fracpack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fracpack",
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "Codec operations by schema, operation and result.",
		},
		[]string{"schema", "op", "result"},
	)
	codecBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fracpack",
			Subsystem: "codec",
			Name:      "payload_bytes",
			Help:      "Size of packed payloads handled by the codec.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		},
		[]string{"schema", "op"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fracpack",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Schema registrations by result.",
		},
		[]string{"result"},
	)
	schemaVersions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fracpack",
			Subsystem: "registry",
			Name:      "schema_versions",
			Help:      "Number of stored versions per schema name.",
		},
		[]string{"schema"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, codecOps, codecBytes, registrations, schemaVersions)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCodec counts one pack, unpack or verify call. size is the packed
// payload length, or negative when no payload was produced.
func RecordCodec(schema, op string, size int, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	codecOps.WithLabelValues(schema, op, result).Inc()
	if size >= 0 {
		codecBytes.WithLabelValues(schema, op).Observe(float64(size))
	}
}

// RecordRegistration counts a registry outcome: "created", "unchanged",
// "incompatible" or "invalid".
func RecordRegistration(schema, result string, versions int) {
	RegisterMetrics()
	registrations.WithLabelValues(result).Inc()
	if versions > 0 {
		schemaVersions.WithLabelValues(schema).Set(float64(versions))
	}
}
