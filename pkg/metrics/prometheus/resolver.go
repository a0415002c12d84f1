package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wildland/wildland-go/pkg/metrics"
)

func init() {
	metrics.RegisterResolverMetricsConstructor(func() metrics.ResolverMetrics {
		return newResolverMetrics()
	})
}

type resolverMetrics struct {
	readdirDurationMS *prometheus.HistogramVec
}

func newResolverMetrics() *resolverMetrics {
	reg := metrics.GetRegistry()
	return &resolverMetrics{
		readdirDurationMS: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wildland_resolver_readdir_duration_milliseconds",
				Help:    "Duration of a virtual-path Readdir call in milliseconds, by merge path",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
			},
			[]string{"merge_path"},
		),
	}
}

func (m *resolverMetrics) RecordReaddir(mergePath string, duration time.Duration) {
	if m == nil {
		return
	}
	m.readdirDurationMS.WithLabelValues(mergePath).Observe(duration.Seconds() * 1000)
}
