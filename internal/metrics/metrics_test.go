package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	degraded bool
	failures int64
}

func (f *fakeHealth) Degraded() bool  { return f.degraded }
func (f *fakeHealth) Failures() int64 { return f.failures }

func TestNilMetrics_NoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Probe()
		m.Reach()
		m.Failure("status", "timeout")
		m.Discovery("open")
		m.StorageError()
		m.RefreshCycle(1.5, 3)
	})
}

// sample returns the value of the first series of name whose labels include want.
func sample(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue series
				}
			}
			switch {
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	t.Fatalf("metric %s %v not found", name, want)
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	m := New(nil)

	m.Probe()
	m.Probe()
	m.Reach()
	m.Failure("login", "timeout")
	m.Discovery("licensed")
	m.StorageError()
	m.RefreshCycle(2, 5)

	assert.Equal(t, 2.0, sample(t, m, "mclookup_scan_probes_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_scan_reachable_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_scan_failures_total", map[string]string{"stage": "login", "class": "timeout"}))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_scan_discoveries_total", map[string]string{"access": "licensed"}))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_scan_storage_errors_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_refresh_cycles_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "mclookup_refresh_cycle_duration_seconds", nil))
	assert.Equal(t, 5.0, sample(t, m, "mclookup_refresh_player_upserts_total", nil))
}

func TestMetrics_HealthGauge(t *testing.T) {
	h := &fakeHealth{}
	m := New(h)

	assert.Equal(t, 0.0, sample(t, m, "mclookup_storage_degraded", nil))

	h.degraded, h.failures = true, 4
	assert.Equal(t, 1.0, sample(t, m, "mclookup_storage_degraded", nil))
	assert.Equal(t, 4.0, sample(t, m, "mclookup_storage_failures_total", nil))
}
