package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue gathers reg and returns the counter named name whose labels
// all match want, or -1 when absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestMetricsRegisterExposesAllCollectors(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncRateLimitRequests("/projects", "user")
	m.IncRateLimitBlocked("/projects", "ip")
	m.IncRateLimitRedisErrors()
	m.ObserveHTTPRequest("GET", "/scenarios/{id}/services", "200", 0.05, 120, 560)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	seen := make(map[string]bool, len(families))
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitRedisErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if !seen[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestRateLimitCountersKeepLabelsApart(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncRateLimitRequests("/projects", "user")
	m.IncRateLimitRequests("/projects", "user")
	m.IncRateLimitRequests("/projects", "ip")
	m.IncRateLimitBlocked("/scenarios/{id}/geometries", "user")

	if got := counterValue(t, reg, MetricRateLimitRequests, map[string]string{"endpoint": "/projects", "key_type": "user"}); got != 2 {
		t.Errorf("user checks = %v, want 2", got)
	}
	if got := counterValue(t, reg, MetricRateLimitRequests, map[string]string{"endpoint": "/projects", "key_type": "ip"}); got != 1 {
		t.Errorf("ip checks = %v, want 1", got)
	}
	if got := counterValue(t, reg, MetricRateLimitBlocked, map[string]string{"endpoint": "/scenarios/{id}/geometries", "key_type": "user"}); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

func TestMetricsCollectors(t *testing.T) {
	if got := len(NewMetrics().Collectors()); got != 7 {
		t.Errorf("Collectors() returned %d collectors, want 7", got)
	}
}
