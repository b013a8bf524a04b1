package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolMetrics tracks background task throughput.
type PoolMetrics struct {
	completed *prometheus.CounterVec
	dropped   prometheus.Counter
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	if reg == nil {
		return &PoolMetrics{}
	}
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workerpool",
		Name:      "tasks_total",
		Help:      "Background tasks by name and outcome.",
	}, []string{"task", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workerpool",
		Name:      "dropped_total",
		Help:      "Tasks rejected because the queue was full.",
	})
	reg.MustRegister(completed, dropped)
	return &PoolMetrics{completed: completed, dropped: dropped}
}

func (p *PoolMetrics) TaskDone(task string, err error) {
	if p == nil || p.completed == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.completed.WithLabelValues(normalizeLabel(task), outcome).Inc()
}

func (p *PoolMetrics) Dropped() {
	if p == nil || p.dropped == nil {
		return
	}
	p.dropped.Inc()
}
