package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "frames_sent_total",
			Help:      "Frames written to the wire.",
		},
		[]string{"endpoint"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "frames_received_total",
			Help:      "Frames parsed off the wire.",
		},
		[]string{"endpoint"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "bytes_sent_total",
			Help:      "Serialized frame bytes written to the wire.",
		},
		[]string{"endpoint"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "bytes_received_total",
			Help:      "Frame bytes read from the wire.",
		},
		[]string{"endpoint"},
	)
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "connections_active",
			Help:      "Currently open connections.",
		},
		[]string{"endpoint"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonwire",
			Subsystem: "endpoint",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames that failed parsing or decoding.",
		},
		[]string{"endpoint"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, framesReceived,
			bytesSent, bytesReceived,
			connectionsActive, framesRejected,
		)
	})
}

func RecordFrameSent(endpoint string, size int) {
	RegisterMetrics()
	framesSent.WithLabelValues(endpoint).Inc()
	bytesSent.WithLabelValues(endpoint).Add(float64(size))
}

func RecordFrameReceived(endpoint string, size int) {
	RegisterMetrics()
	framesReceived.WithLabelValues(endpoint).Inc()
	bytesReceived.WithLabelValues(endpoint).Add(float64(size))
}

func RecordFrameRejected(endpoint string) {
	RegisterMetrics()
	framesRejected.WithLabelValues(endpoint).Inc()
}

func ConnOpened(endpoint string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(endpoint).Inc()
}

func ConnClosed(endpoint string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(endpoint).Dec()
}
