package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ucan"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "frames_sent_total",
			Help:      "Application frames transmitted by SendAll.",
		},
		[]string{"node"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "frames_received_total",
			Help:      "Inbound frames by outcome.",
		},
		[]string{"node", "outcome"},
	)
	transmitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "transmit_failures_total",
			Help:      "Adapter send failures.",
		},
		[]string{"node"},
	)
	busReopens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "reopens_total",
			Help:      "Adapter reopen attempts after a receive failure.",
		},
		[]string{"node", "success"},
	)
	pings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "pings_total",
			Help:      "Master ping attempts by result.",
		},
		[]string{"node", "result"},
	)
	clientStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "client_status",
			Help:      "Last evaluated client status: 0 waiting, 1 active, 2 timeout, 3 lost.",
		},
		[]string{"node", "client"},
	)
	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one SendAll plus handshake cycle.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesSent, framesReceived, transmitFailures, busReopens,
			pings, clientStatus, cycleDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFramesSent(node string, n int) {
	RegisterMetrics()
	framesSent.WithLabelValues(node).Add(float64(n))
}

func RecordFrameReceived(node, outcome string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(node, outcome).Inc()
}

func RecordTransmitFailure(node string) {
	RegisterMetrics()
	transmitFailures.WithLabelValues(node).Inc()
}

func RecordBusReopen(node string, success bool) {
	RegisterMetrics()
	busReopens.WithLabelValues(node, strconv.FormatBool(success)).Inc()
}

func RecordPing(node, result string) {
	RegisterMetrics()
	pings.WithLabelValues(node, result).Inc()
}

func SetClientStatus(node, client string, status int) {
	RegisterMetrics()
	clientStatus.WithLabelValues(node, client).Set(float64(status))
}

func RecordCycle(node string, duration time.Duration) {
	RegisterMetrics()
	cycleDuration.WithLabelValues(node).Observe(duration.Seconds())
}
