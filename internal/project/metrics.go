package project

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricProjectCreationsTotal = "project_creations_total"
	MetricProjectDeletionsTotal = "project_deletions_total"
)

// Metrics contains Prometheus metrics for the project lifecycle. Every
// method accepts a nil receiver so unmetered construction stays valid.
type Metrics struct {
	creations *prometheus.CounterVec
	deletions prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		creations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricProjectCreationsTotal,
				Help: "Total number of projects created by kind",
			},
			[]string{"kind"},
		),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricProjectDeletionsTotal,
			Help: "Total number of projects deleted",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCreations increments the creation counter for the project kind.
func (m *Metrics) IncCreations(regional bool) {
	if m == nil {
		return
	}
	kind := "ordinary"
	if regional {
		kind = "regional"
	}
	m.creations.WithLabelValues(kind).Inc()
}

// IncDeletions increments the deletion counter.
func (m *Metrics) IncDeletions() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.creations, m.deletions}
}
