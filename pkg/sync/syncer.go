package sync

import "context"

// Syncer is a bidirectional (or, if unidirectional, one-way)
// replicator between exactly two storage backends, the Go counterpart
// of BaseSyncer. This package has a single implementation, NaiveSyncer;
// the interface exists so pkg/syncd can manage a job without depending
// on the concrete type, mirroring how dispatch.py's load_syncers let
// the daemon hold a BaseSyncer without knowing which subclass.
type Syncer interface {
	// StartSync begins continuous replication: an initial OneShotSync
	// baseline, then watcher-driven incremental sync until StopSync.
	StartSync(ctx context.Context, unidirectional bool) error
	// StopSync halts continuous replication started by StartSync.
	StopSync() error
	// IsRunning reports whether StartSync is active.
	IsRunning() bool
	// OneShotSync walks both backends once and converges them,
	// without installing watchers.
	OneShotSync(ctx context.Context, unidirectional bool) error
	// IterConflicts returns conflicts accumulated since the last
	// start, without re-walking the backends.
	IterConflicts() []Conflict
	// IterConflictsForce re-walks both backends from scratch and
	// returns every conflict found, ignoring hash-memory state.
	IterConflictsForce(ctx context.Context) ([]Conflict, error)
	// Status reports the syncer's current lifecycle state.
	Status() State
}
