package metrics

import "time"

// SyncMetrics reports replicator activity: file copies, conflicts
// found, and per-job lifecycle transitions. Pass nil to disable
// collection with zero overhead.
type SyncMetrics interface {
	// RecordCopy records one file copied between backends.
	RecordCopy(bytes int64, duration time.Duration, err error)
	// RecordConflict records one newly detected, unresolved conflict.
	RecordConflict()
	// SetActiveJobs updates the current running-job count.
	SetActiveJobs(count int)
	// RecordJobOutcome records a job ending in the given terminal
	// state ("SYNCED", "ERROR", "STOPPED").
	RecordJobOutcome(state string)
}

var newPrometheusSyncMetrics func() SyncMetrics

// RegisterSyncMetricsConstructor is called by pkg/metrics/prometheus's
// init to supply the concrete constructor.
func RegisterSyncMetricsConstructor(constructor func() SyncMetrics) {
	newPrometheusSyncMetrics = constructor
}

// NewSyncMetrics returns a Prometheus-backed SyncMetrics, or nil if
// metrics aren't enabled.
func NewSyncMetrics() SyncMetrics {
	if !IsEnabled() || newPrometheusSyncMetrics == nil {
		return nil
	}
	return newPrometheusSyncMetrics()
}

// RecordCopy is a nil-safe call to m.RecordCopy.
func RecordCopy(m SyncMetrics, bytes int64, duration time.Duration, err error) {
	if m != nil {
		m.RecordCopy(bytes, duration, err)
	}
}

// RecordConflict is a nil-safe call to m.RecordConflict.
func RecordConflict(m SyncMetrics) {
	if m != nil {
		m.RecordConflict()
	}
}

// SetActiveJobs is a nil-safe call to m.SetActiveJobs.
func SetActiveJobs(m SyncMetrics, count int) {
	if m != nil {
		m.SetActiveJobs(count)
	}
}

// RecordJobOutcome is a nil-safe call to m.RecordJobOutcome.
func RecordJobOutcome(m SyncMetrics, state string) {
	if m != nil {
		m.RecordJobOutcome(state)
	}
}
