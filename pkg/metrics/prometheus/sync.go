package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wildland/wildland-go/pkg/metrics"
)

func init() {
	metrics.RegisterSyncMetricsConstructor(func() metrics.SyncMetrics {
		return newSyncMetrics()
	})
}

type syncMetrics struct {
	copiesTotal     *prometheus.CounterVec
	copyDurationMS  prometheus.Histogram
	copyBytes       prometheus.Histogram
	conflictsTotal  prometheus.Counter
	activeJobs      prometheus.Gauge
	jobOutcomeTotal *prometheus.CounterVec
}

func newSyncMetrics() *syncMetrics {
	reg := metrics.GetRegistry()
	return &syncMetrics{
		copiesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wildland_sync_copies_total",
				Help: "Total number of files copied between backends by outcome",
			},
			[]string{"status"},
		),
		copyDurationMS: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wildland_sync_copy_duration_milliseconds",
				Help:    "Duration of a single file copy in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
			},
		),
		copyBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wildland_sync_copy_bytes",
				Help:    "Distribution of bytes copied per file",
				Buckets: []float64{4096, 65536, 1048576, 10485760, 104857600},
			},
		),
		conflictsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "wildland_sync_conflicts_total",
				Help: "Total number of unresolved sync conflicts detected",
			},
		),
		activeJobs: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "wildland_sync_active_jobs",
				Help: "Current number of running sync jobs",
			},
		),
		jobOutcomeTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wildland_sync_job_outcomes_total",
				Help: "Total number of sync jobs ending in each terminal state",
			},
			[]string{"state"},
		),
	}
}

func (m *syncMetrics) RecordCopy(bytes int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.copiesTotal.WithLabelValues(outcome(err)).Inc()
	m.copyDurationMS.Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.copyBytes.Observe(float64(bytes))
	}
}

func (m *syncMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *syncMetrics) SetActiveJobs(count int) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(count))
}

func (m *syncMetrics) RecordJobOutcome(state string) {
	if m == nil {
		return
	}
	m.jobOutcomeTotal.WithLabelValues(state).Inc()
}
