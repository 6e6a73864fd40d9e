package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DropNoRemote    = "no_remote"
	DropStaleRemote = "stale_remote"
	DropEncode      = "encode"
	DropClosed      = "closed"
)

var (
	registerOnce sync.Once

	bridgePublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteflow",
			Subsystem: "bridge",
			Name:      "published_total",
			Help:      "Data values sent to a remote endpoint.",
		},
		[]string{"channel"},
	)
	bridgeDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteflow",
			Subsystem: "bridge",
			Name:      "dropped_total",
			Help:      "Data values discarded by publish, by reason.",
		},
		[]string{"channel", "reason"},
	)
	bridgeReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteflow",
			Subsystem: "bridge",
			Name:      "received_total",
			Help:      "Envelopes received by the inbound dispatcher, by kind.",
		},
		[]string{"channel", "kind"},
	)
	foregroundActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remoteflow",
			Subsystem: "foreground",
			Name:      "active",
			Help:      "1 while the process holds foreground state.",
		},
	)
	foregroundHeartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remoteflow",
			Subsystem: "foreground",
			Name:      "heartbeats_total",
			Help:      "Heartbeat values published.",
		},
	)
	controlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteflow",
			Subsystem: "control",
			Name:      "http_requests_total",
			Help:      "Control surface HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			bridgePublished,
			bridgeDropped,
			bridgeReceived,
			foregroundActive,
			foregroundHeartbeats,
			controlRequests,
		)
	})
}

func RecordPublished(channel string) {
	RegisterMetrics()
	bridgePublished.WithLabelValues(channel).Inc()
}

func RecordDropped(channel, reason string) {
	RegisterMetrics()
	bridgeDropped.WithLabelValues(channel, reason).Inc()
}

func RecordReceived(channel, kind string) {
	RegisterMetrics()
	bridgeReceived.WithLabelValues(channel, kind).Inc()
}

func SetForegroundActive(active bool) {
	RegisterMetrics()
	if active {
		foregroundActive.Set(1)
		return
	}
	foregroundActive.Set(0)
}

func RecordHeartbeat() {
	RegisterMetrics()
	foregroundHeartbeats.Inc()
}

func RecordControlRequest(method, path string, status int) {
	RegisterMetrics()
	controlRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
