package metrics

import "time"

// DaemonMetrics reports mount daemon activity: mount/unmount lifecycle
// and control-request outcomes. Pass nil to disable collection with
// zero overhead, and call it through the nil-safe free functions below:
// a method call on a nil DaemonMetrics interface value panics (the
// Prometheus implementation's methods only guard against a nil
// *daemonMetrics receiver).
type DaemonMetrics interface {
	// RecordMount records a completed mount attempt for backendType,
	// successful or not.
	RecordMount(backendType string, err error)
	// RecordUnmount records a completed unmount attempt.
	RecordUnmount(backendType string, err error)
	// SetActiveMounts updates the current mounted-storage count.
	SetActiveMounts(count int)
	// RecordControlRequest records one control-API call's outcome and
	// duration.
	RecordControlRequest(command string, duration time.Duration, err error)
}

// newPrometheusDaemonMetrics is supplied by pkg/metrics/prometheus
// during its package init, the same registration-indirection shape
// NewSyncMetrics/NewResolverMetrics use to avoid an import cycle between
// this package and its own implementation package.
var newPrometheusDaemonMetrics func() DaemonMetrics

// RegisterDaemonMetricsConstructor is called by
// pkg/metrics/prometheus's init to supply the concrete constructor.
func RegisterDaemonMetricsConstructor(constructor func() DaemonMetrics) {
	newPrometheusDaemonMetrics = constructor
}

// NewDaemonMetrics returns a Prometheus-backed DaemonMetrics, or nil if
// metrics aren't enabled.
func NewDaemonMetrics() DaemonMetrics {
	if !IsEnabled() || newPrometheusDaemonMetrics == nil {
		return nil
	}
	return newPrometheusDaemonMetrics()
}

// The Record*/Set* free functions below are nil-safe wrappers, mirroring
// ObserveWrite/RecordBytes in the teacher's pkg/metrics: callers that
// hold a possibly-nil DaemonMetrics call these instead of the interface
// methods directly, since a nil interface value panics on method
// dispatch while a nil check here does not.

// RecordMount is a nil-safe call to m.RecordMount.
func RecordMount(m DaemonMetrics, backendType string, err error) {
	if m != nil {
		m.RecordMount(backendType, err)
	}
}

// RecordUnmount is a nil-safe call to m.RecordUnmount.
func RecordUnmount(m DaemonMetrics, backendType string, err error) {
	if m != nil {
		m.RecordUnmount(backendType, err)
	}
}

// SetActiveMounts is a nil-safe call to m.SetActiveMounts.
func SetActiveMounts(m DaemonMetrics, count int) {
	if m != nil {
		m.SetActiveMounts(count)
	}
}

// RecordControlRequest is a nil-safe call to m.RecordControlRequest.
func RecordControlRequest(m DaemonMetrics, command string, duration time.Duration, err error) {
	if m != nil {
		m.RecordControlRequest(command, duration, err)
	}
}
