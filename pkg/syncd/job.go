package syncd

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/metrics"
	wsync "github.com/wildland/wildland-go/pkg/sync"
)

// job wraps a wsync.Syncer in a managed goroutine, the Go counterpart of
// storage_sync/daemon.py's SyncJob. A one-shot job runs OneShotSync to
// completion and exits on its own; a continuous job runs StartSync and
// keeps going until stop is called.
type job struct {
	ContainerName  string
	JobID          string
	Continuous     bool
	Unidirectional bool
	SourceID       string
	TargetID       string

	syncer  wsync.Syncer
	metrics metrics.SyncMetrics

	mu   stdsync.Mutex
	err  error
	done chan struct{}
}

func newJob(containerName, jobID string, continuous, unidirectional bool, sourceID, targetID string, syncer wsync.Syncer, m metrics.SyncMetrics) *job {
	return &job{
		ContainerName:  containerName,
		JobID:          jobID,
		Continuous:     continuous,
		Unidirectional: unidirectional,
		SourceID:       sourceID,
		TargetID:       targetID,
		syncer:         syncer,
		metrics:        m,
		done:           make(chan struct{}),
	}
}

// start launches the job's worker goroutine, mirroring SyncJob._worker.
func (j *job) start(ctx context.Context) {
	go j.run(ctx)
}

func (j *job) run(ctx context.Context) {
	defer close(j.done)

	var err error
	if j.Continuous {
		err = j.syncer.StartSync(ctx, j.Unidirectional)
	} else {
		err = j.syncer.OneShotSync(ctx, j.Unidirectional)
	}
	if err != nil {
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
		logger.Error("sync job failed", "job_id", j.JobID, "error", err)
	}
	metrics.RecordJobOutcome(j.metrics, j.syncerStatus().String())
}

// stop halts a continuous job's watchers and waits for the worker
// goroutine to exit. For a one-shot job it just waits, since there is
// no watcher to stop.
func (j *job) stop() {
	if j.Continuous {
		if err := j.syncer.StopSync(); err != nil {
			logger.Warn("stopping sync job syncer", "job_id", j.JobID, "error", err)
		}
	}
	<-j.done
}

func (j *job) lastError() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// syncerStatus mirrors SyncJob.syncer_status: the syncer's own state,
// unless the worker goroutine has already recorded a fatal error.
func (j *job) syncerStatus() wsync.State {
	if j.lastError() != nil {
		return wsync.StateError
	}
	return j.syncer.Status()
}

func directionArrow(unidirectional bool) string {
	if unidirectional {
		return "->"
	}
	return "<->"
}

// status renders a human-readable multi-line summary, mirroring
// SyncJob.status's "container: state source -> target" plus one line
// per outstanding conflict and, if the worker died, a final [!] line.
func (j *job) status() string {
	line := fmt.Sprintf("%s: %s %s %s %s", j.ContainerName, j.syncerStatus(), j.SourceID, directionArrow(j.Unidirectional), j.TargetID)
	if !j.Continuous {
		line += " [one-shot]"
	}
	for _, c := range j.syncer.IterConflicts() {
		line += "\n  " + c.String()
	}
	if err := j.lastError(); err != nil {
		line += fmt.Sprintf("\n  [!] %s", err)
	}
	return line
}
