package metrics

import "time"

// ResolverMetrics reports virtual-path resolution latency. Pass nil to
// disable collection with zero overhead.
type ResolverMetrics interface {
	// RecordReaddir records one Readdir call's merge-path ("single",
	// "merged", or "synthetic") and duration.
	RecordReaddir(mergePath string, duration time.Duration)
}

var newPrometheusResolverMetrics func() ResolverMetrics

// RegisterResolverMetricsConstructor is called by
// pkg/metrics/prometheus's init to supply the concrete constructor.
func RegisterResolverMetricsConstructor(constructor func() ResolverMetrics) {
	newPrometheusResolverMetrics = constructor
}

// NewResolverMetrics returns a Prometheus-backed ResolverMetrics, or
// nil if metrics aren't enabled.
func NewResolverMetrics() ResolverMetrics {
	if !IsEnabled() || newPrometheusResolverMetrics == nil {
		return nil
	}
	return newPrometheusResolverMetrics()
}

// RecordReaddir is a nil-safe call to m.RecordReaddir.
func RecordReaddir(m ResolverMetrics, mergePath string, duration time.Duration) {
	if m != nil {
		m.RecordReaddir(mergePath, duration)
	}
}
