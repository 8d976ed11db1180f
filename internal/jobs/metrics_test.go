package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	for i := 0; i < 5; i++ {
		require.NoError(t, metrics.Track("chat:unread_check").End(nil))
	}
	boom := errors.New("push service down")
	require.ErrorIs(t, metrics.Track("chat:unread_check").End(boom), boom)
	metrics.AddItems("notify:sweep_subscriptions", 7)
	metrics.AddItems("notify:sweep_subscriptions", 0)

	families, err := reg.Gather()
	require.NoError(t, err)

	require.Equal(t, 5.0, metricValue(t, families, "feedflow_jobs_total", map[string]string{"job": "chat:unread_check", "status": "success"}))
	require.Equal(t, 1.0, metricValue(t, families, "feedflow_jobs_total", map[string]string{"job": "chat:unread_check", "status": "failure"}))
	require.Equal(t, 1.0, metricValue(t, families, "feedflow_jobs_failures_total", map[string]string{"job": "chat:unread_check"}))
	require.Equal(t, 7.0, metricValue(t, families, "feedflow_job_items_total", map[string]string{"job": "notify:sweep_subscriptions"}))
	require.Equal(t, uint64(6), histogramCount(t, families, "feedflow_job_duration_seconds", map[string]string{"job": "chat:unread_check"}))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("x").End(boom), boom)
	metrics.AddItems("x", 3)
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) uint64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetHistogram().GetSampleCount()
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
