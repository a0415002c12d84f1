// Package prometheus is the concrete Prometheus-backed implementation
// of pkg/metrics's interfaces, grounded on the teacher's
// pkg/metrics/prometheus/{badger,cache,s3}.go: one collector struct per
// interface, built with promauto.With(reg) against the shared registry,
// every method nil-receiver-safe so calling one on a nil *daemonMetrics
// costs nothing. When metrics are disabled, pkg/metrics hands out a nil
// interface value instead and never calls these constructors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wildland/wildland-go/pkg/metrics"
)

func init() {
	metrics.RegisterDaemonMetricsConstructor(func() metrics.DaemonMetrics {
		return newDaemonMetrics()
	})
}

type daemonMetrics struct {
	mountsTotal       *prometheus.CounterVec
	unmountsTotal     *prometheus.CounterVec
	activeMounts      prometheus.Gauge
	controlRequests   *prometheus.CounterVec
	controlDurationMS *prometheus.HistogramVec
}

func newDaemonMetrics() *daemonMetrics {
	reg := metrics.GetRegistry()
	return &daemonMetrics{
		mountsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wildland_mounts_total",
				Help: "Total number of mount attempts by backend type and outcome",
			},
			[]string{"backend_type", "status"},
		),
		unmountsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wildland_unmounts_total",
				Help: "Total number of unmount attempts by backend type and outcome",
			},
			[]string{"backend_type", "status"},
		),
		activeMounts: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "wildland_active_mounts",
				Help: "Current number of mounted storages",
			},
		),
		controlRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wildland_control_requests_total",
				Help: "Total number of control API requests by command and outcome",
			},
			[]string{"command", "status"},
		),
		controlDurationMS: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wildland_control_request_duration_milliseconds",
				Help:    "Duration of control API requests in milliseconds",
				Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"command"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *daemonMetrics) RecordMount(backendType string, err error) {
	if m == nil {
		return
	}
	m.mountsTotal.WithLabelValues(backendType, outcome(err)).Inc()
}

func (m *daemonMetrics) RecordUnmount(backendType string, err error) {
	if m == nil {
		return
	}
	m.unmountsTotal.WithLabelValues(backendType, outcome(err)).Inc()
}

func (m *daemonMetrics) SetActiveMounts(count int) {
	if m == nil {
		return
	}
	m.activeMounts.Set(float64(count))
}

func (m *daemonMetrics) RecordControlRequest(command string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.controlRequests.WithLabelValues(command, outcome(err)).Inc()
	m.controlDurationMS.WithLabelValues(command).Observe(duration.Seconds() * 1000)
}
