package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics counts what the outbox relay did with each row.
type RelayMetrics struct {
	outcomes *prometheus.CounterVec
	backlog  prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "relayed_total",
			Help:      "Outbox rows by event type and outcome (published, retry, dead_letter).",
		}, []string{"event_type", "outcome"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "last_batch_size",
			Help:      "Rows claimed by the most recent relay batch.",
		}),
	}
	reg.MustRegister(m.outcomes, m.backlog)
	return m
}

func (m *RelayMetrics) Outcome(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *RelayMetrics) Batch(n int) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
