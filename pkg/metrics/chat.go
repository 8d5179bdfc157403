package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChatMetrics is the instrumentation surface the server reports into.
// Implementations must be safe for concurrent use.
type ChatMetrics interface {
	// RequestHandled records one dispatched request with its response kind
	// ("ok", "exists", or "error").
	RequestHandled(op string, status string)

	// ConnectionOpened / ConnectionClosed track the live connection count.
	ConnectionOpened()
	ConnectionClosed()

	// PushSent records one refresh_request pushed to a recipient.
	PushSent()

	// FrameError records one connection-fatal framing or transport error.
	FrameError()
}

// NewChatMetrics returns a Prometheus-backed ChatMetrics, or a no-op
// implementation when metrics are disabled.
func NewChatMetrics() ChatMetrics {
	if !IsEnabled() {
		return noopChatMetrics{}
	}

	reg := GetRegistry()
	return &chatMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittochat_requests_total",
				Help: "Total number of dispatched requests by operation and response status",
			},
			[]string{"op", "status"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittochat_active_connections",
				Help: "Current number of open client connections",
			},
		),
		pushesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittochat_pushes_total",
				Help: "Total number of refresh_request push notifications sent",
			},
		),
		frameErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittochat_frame_errors_total",
				Help: "Total number of connection-fatal framing or transport errors",
			},
		),
	}
}

type chatMetrics struct {
	requestsTotal     *prometheus.CounterVec
	activeConnections prometheus.Gauge
	pushesTotal       prometheus.Counter
	frameErrorsTotal  prometheus.Counter
}

func (m *chatMetrics) RequestHandled(op, status string) {
	m.requestsTotal.WithLabelValues(op, status).Inc()
}

func (m *chatMetrics) ConnectionOpened() { m.activeConnections.Inc() }
func (m *chatMetrics) ConnectionClosed() { m.activeConnections.Dec() }
func (m *chatMetrics) PushSent()         { m.pushesTotal.Inc() }
func (m *chatMetrics) FrameError()       { m.frameErrorsTotal.Inc() }

type noopChatMetrics struct{}

func (noopChatMetrics) RequestHandled(string, string) {}
func (noopChatMetrics) ConnectionOpened()             {}
func (noopChatMetrics) ConnectionClosed()             {}
func (noopChatMetrics) PushSent()                     {}
func (noopChatMetrics) FrameError()                   {}
