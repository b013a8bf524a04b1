package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsSeparatesOutcomesPerSchedule(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("frequent", "order-emails", nil, 250*time.Millisecond)
	m.ObserveRun("frequent", "order-emails", errors.New("smtp"), time.Second)
	m.ObserveRun("daily", "low-stock", nil, time.Second)
	m.LockSkipped("daily")
	m.LockSkipped("daily")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	ok := counterValue(mfs, "marketcore_cron_job_runs_total", map[string]string{"schedule": "frequent", "job": "order-emails", "outcome": "ok"})
	failed := counterValue(mfs, "marketcore_cron_job_runs_total", map[string]string{"schedule": "frequent", "job": "order-emails", "outcome": "error"})
	if ok != 1 || failed != 1 {
		t.Fatalf("expected one ok and one error run, got ok=%v error=%v", ok, failed)
	}
	if got := counterValue(mfs, "marketcore_cron_cycles_skipped_total", map[string]string{"schedule": "daily"}); got != 2 {
		t.Fatalf("expected 2 skipped cycles, got %v", got)
	}
	if got, err := fetchHistogramSum(mfs, "marketcore_cron_job_duration_seconds", "job", "order-emails"); err != nil || got < 1.25 {
		t.Fatalf("unexpected duration sum %v err %v", got, err)
	}
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveRun("", "", nil, 0)
	m.LockSkipped("")
	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("daily", "x", nil, 0)
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return -1
	}
	for _, metric := range mf.GetMetric() {
		match := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				match = false
				break
			}
		}
		if match {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}
