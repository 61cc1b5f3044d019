package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/metrics"
	"github.com/roberthein/Observable/observable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue returns the value of the counter or gauge called name whose
// labels include want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	require.FailNowf(t, "metric not found", "%s %v", name, want)
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCollectorRecordsCellActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(metrics.WithRegistry(reg))

	q := dispatch.NewSerial("metrics")
	t.Cleanup(q.Close)

	cell := observable.New(0, observable.WithName("temperature"), observable.WithRecorder(c))
	a := cell.Observe(nil, func(int, *int) {})
	b := cell.Observe(q, func(int, *int) {})
	cell.Observe(nil, func(int, *int) {})

	cell.SetValue(1)
	cell.SetValue(2)
	q.Sync(func() {})

	labels := map[string]string{"cell": "temperature"}
	assert.Equal(t, 3.0, metricValue(t, reg, "observable_observers", labels))
	assert.Equal(t, 3.0, metricValue(t, reg, "observable_subscriptions_total", labels))
	assert.Equal(t, 2.0, metricValue(t, reg, "observable_writes_total", labels))
	assert.Equal(t, 6.0, metricValue(t, reg, "observable_deliveries_total", map[string]string{"cell": "temperature", "mode": "inline"}))
	assert.Equal(t, 3.0, metricValue(t, reg, "observable_deliveries_total", map[string]string{"cell": "temperature", "mode": "deferred"}))

	a.Dispose()
	assert.Equal(t, 2.0, metricValue(t, reg, "observable_observers", labels))

	cell.RemoveAllObservers()
	b.Dispose()
	assert.Equal(t, 0.0, metricValue(t, reg, "observable_observers", labels))
	assert.Equal(t, 2.0, metricValue(t, reg, "observable_cleared_observers_total", labels))
}

func TestCollectorOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(
		metrics.WithRegistry(reg),
		metrics.WithNamespace("app"),
		metrics.WithSubsystem("state"),
		metrics.WithConstLabels(prometheus.Labels{"service": "demo"}),
	)

	s := observable.NewSubject[string](observable.WithName("session"), observable.WithRecorder(c))
	s.Update("x")

	assert.Equal(t, 1.0, metricValue(t, reg, "app_state_writes_total", map[string]string{"cell": "session", "service": "demo"}))
}

func TestWatchQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(metrics.WithRegistry(reg))

	q := dispatch.NewSerial("watched")
	t.Cleanup(q.Close)
	c.WatchQueue(q.Label(), q.Pending)

	gate := make(chan struct{})
	started := make(chan struct{})
	q.Async(func() {
		close(started)
		<-gate
	})
	<-started
	q.Async(func() {})
	q.Async(func() {})

	assert.Equal(t, 2.0, metricValue(t, reg, "observable_queue_pending_tasks", map[string]string{"queue": "watched"}))
	close(gate)
	q.Sync(func() {})
	assert.Equal(t, 0.0, metricValue(t, reg, "observable_queue_pending_tasks", map[string]string{"queue": "watched"}))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(metrics.WithRegistry(reg))
	assert.Panics(t, func() {
		metrics.New(metrics.WithRegistry(reg))
	})
}
