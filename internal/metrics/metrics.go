// Package metrics holds the Prometheus collectors of the scanner and the refresher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/woozymasta/mclookup/internal/vars"
)

const namespace = "mclookup"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Probes        prometheus.Counter
	Reachable     prometheus.Counter
	ProbeFailures *prometheus.CounterVec
	Discoveries   *prometheus.CounterVec
	StorageErrors prometheus.Counter

	RefreshCycles   prometheus.Counter
	RefreshDuration prometheus.Histogram
	RefreshUpserts  prometheus.Counter
}

// HealthSource reports the persistence state.
type HealthSource interface {
	Degraded() bool
	Failures() int64
}

// New creates and registers all collectors on a fresh registry.
func New(health HealthSource) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "probes_total",
			Help: "Addresses drawn and probed for reachability.",
		}),
		Reachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "reachable_total",
			Help: "Addresses that accepted a TCP connection on the game port.",
		}),
		ProbeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "failures_total",
			Help: "Scan failures by stage and error class.",
		}, []string{"stage", "class"}),
		Discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "discoveries_total",
			Help: "Persisted discoveries by access class.",
		}, []string{"access"}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "storage_errors_total",
			Help: "Discoveries lost because persistence failed after retries.",
		}),
		RefreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "refresh", Name: "cycles_total",
			Help: "Completed refresh cycles.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "refresh", Name: "cycle_duration_seconds",
			Help:    "Duration of refresh cycles.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RefreshUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "refresh", Name: "player_upserts_total",
			Help: "Player presence rows refreshed.",
		}),
	}

	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": vars.Version, "commit": vars.CommitShort()},
	})
	build.Set(1)

	reg.MustRegister(
		m.Probes, m.Reachable, m.ProbeFailures, m.Discoveries, m.StorageErrors,
		m.RefreshCycles, m.RefreshDuration, m.RefreshUpserts, build,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if health != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "storage", Name: "degraded",
				Help: "1 when the last storage operations all failed after retries.",
			}, func() float64 {
				if health.Degraded() {
					return 1
				}
				return 0
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "storage", Name: "failures_total",
				Help: "Storage operations that failed after retries.",
			}, func() float64 { return float64(health.Failures()) }),
		)
	}

	return m
}

// Probe counts a drawn address.
func (m *Metrics) Probe() {
	if m != nil {
		m.Probes.Inc()
	}
}

// Reach counts an address that accepted a connection.
func (m *Metrics) Reach() {
	if m != nil {
		m.Reachable.Inc()
	}
}

// Failure counts a failed stage ("reach", "status", "login") with an error class.
func (m *Metrics) Failure(stage, class string) {
	if m != nil {
		m.ProbeFailures.WithLabelValues(stage, class).Inc()
	}
}

// Discovery counts a persisted discovery.
func (m *Metrics) Discovery(access string) {
	if m != nil {
		m.Discoveries.WithLabelValues(access).Inc()
	}
}

// StorageError counts a discovery lost to storage failures.
func (m *Metrics) StorageError() {
	if m != nil {
		m.StorageErrors.Inc()
	}
}

// RefreshCycle records a completed cycle.
func (m *Metrics) RefreshCycle(seconds float64, upserts int) {
	if m != nil {
		m.RefreshCycles.Inc()
		m.RefreshDuration.Observe(seconds)
		m.RefreshUpserts.Add(float64(upserts))
	}
}
