package scenario

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricBootstrapCopiesTotal     = "scenario_bootstrap_copies_total"
	MetricBootstrapDurationSeconds = "scenario_bootstrap_duration_seconds"
	MetricShadowWritesTotal        = "scenario_shadow_writes_total"
	MetricMergeReadsTotal          = "scenario_merge_reads_total"
)

// Metrics contains Prometheus metrics for the copy-on-write engine and the
// merge reader. All operations are thread-safe, and every method accepts a
// nil receiver so unmetered construction stays valid.
type Metrics struct {
	bootstrapCopies   prometheus.Counter
	bootstrapDuration prometheus.Histogram
	shadowWrites      *prometheus.CounterVec
	mergeReads        *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		bootstrapCopies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBootstrapCopiesTotal,
			Help: "Total number of public geometries clipped into scenarios at bootstrap",
		}),
		bootstrapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricBootstrapDurationSeconds,
			Help:    "Histogram of scenario bootstrap duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
		shadowWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricShadowWritesTotal,
				Help: "Total number of shadow materializations by entity kind",
			},
			[]string{"kind"},
		),
		mergeReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMergeReadsTotal,
				Help: "Total number of merged scenario reads by entity kind",
			},
			[]string{"kind"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		m.bootstrapCopies,
		m.bootstrapDuration,
		m.shadowWrites,
		m.mergeReads,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AddBootstrapCopies records n geometries copied during one bootstrap.
func (m *Metrics) AddBootstrapCopies(n int) {
	if m == nil {
		return
	}
	m.bootstrapCopies.Add(float64(n))
}

// ObserveBootstrapDuration records one bootstrap duration sample.
func (m *Metrics) ObserveBootstrapDuration(seconds float64) {
	if m == nil {
		return
	}
	m.bootstrapDuration.Observe(seconds)
}

// IncShadowWrites increments the shadow materialization counter for kind.
func (m *Metrics) IncShadowWrites(kind string) {
	if m == nil {
		return
	}
	m.shadowWrites.WithLabelValues(kind).Inc()
}

// IncMergeReads increments the merged read counter for kind.
func (m *Metrics) IncMergeReads(kind string) {
	if m == nil {
		return
	}
	m.mergeReads.WithLabelValues(kind).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.bootstrapCopies,
		m.bootstrapDuration,
		m.shadowWrites,
		m.mergeReads,
	}
}
