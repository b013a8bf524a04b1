package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics counts and times outbound payment gateway calls.
type GatewayMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"gateway", "operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"gateway", "operation"})
	reg.MustRegister(calls, duration)
	return &GatewayMetrics{calls: calls, duration: duration}
}

// Observe records one call. outcome is "ok" or "error".
func (g *GatewayMetrics) Observe(gateway, operation string, ok bool, took time.Duration) {
	if g == nil || g.calls == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	g.calls.WithLabelValues(normalizeLabel(gateway), operation, outcome).Inc()
	g.duration.WithLabelValues(normalizeLabel(gateway), operation).Observe(took.Seconds())
}
