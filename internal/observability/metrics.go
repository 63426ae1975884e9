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
			Namespace: "pushgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pushgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	gatewayConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pushgate",
			Subsystem: "gateway",
			Name:      "connects_total",
			Help:      "Gateway connection attempts by result.",
		},
		[]string{"result"},
	)
	gatewayWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pushgate",
			Subsystem: "gateway",
			Name:      "writes_total",
			Help:      "Gateway write requests by outcome.",
		},
		[]string{"outcome"},
	)
	gatewayBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pushgate",
			Subsystem: "gateway",
			Name:      "bytes_written_total",
			Help:      "Frame bytes handed to the gateway transport.",
		},
	)
	gatewayPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pushgate",
			Subsystem: "gateway",
			Name:      "pending_requests",
			Help:      "Write requests waiting for a gateway connection.",
		},
	)
	feedbackReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pushgate",
			Subsystem: "feedback",
			Name:      "reads_total",
			Help:      "Feedback harvests by outcome.",
		},
		[]string{"outcome"},
	)
	feedbackRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pushgate",
			Subsystem: "feedback",
			Name:      "records_total",
			Help:      "Feedback records decoded.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			gatewayConnects, gatewayWrites, gatewayBytes, gatewayPending,
			feedbackReads, feedbackRecords,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordGatewayConnect(ok bool) {
	RegisterMetrics()
	result := "success"
	if !ok {
		result = "failure"
	}
	gatewayConnects.WithLabelValues(result).Inc()
}

// RecordGatewayWrite counts one resolved write. outcome is "sent" or the
// failure kind ("timeout", "connect_failed", "connection_lost", "closed").
func RecordGatewayWrite(outcome string, bytes int) {
	RegisterMetrics()
	gatewayWrites.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		gatewayBytes.Add(float64(bytes))
	}
}

func SetGatewayPending(n int) {
	RegisterMetrics()
	gatewayPending.Set(float64(n))
}

func RecordFeedbackRead(outcome string, records int) {
	RegisterMetrics()
	feedbackReads.WithLabelValues(outcome).Inc()
	if records > 0 {
		feedbackRecords.Add(float64(records))
	}
}
