// Package syncd is the sync control daemon: it owns a set of running
// sync jobs, each replicating one container between a source and a
// target storage backend, and exposes start/stop/status control
// commands over a Unix socket. The Go counterpart of
// wildland/storage_sync/daemon.py's SyncDaemon.
package syncd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"

	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/metrics"
	"github.com/wildland/wildland-go/pkg/storage"
	wsync "github.com/wildland/wildland-go/pkg/sync"
	"github.com/wildland/wildland-go/pkg/sync/hashdb"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Daemon tracks every running sync job, keyed by job ID
// ("<owner>|<container-uuid>", mirroring daemon.py's job_id scheme).
type Daemon struct {
	client  *client.Client
	hdb     *hashdb.DB
	metrics metrics.SyncMetrics

	mu   stdsync.Mutex
	jobs map[string]*job
}

// New builds a Daemon backed by c (for loading signed storage
// manifests) and hdb (the shared hash-memory database).
func New(c *client.Client, hdb *hashdb.DB) *Daemon {
	return &Daemon{client: c, hdb: hdb, jobs: make(map[string]*job)}
}

// SetMetrics attaches m as this daemon's metrics sink. Pass nil (the
// default) to leave metrics collection disabled.
func (d *Daemon) SetMetrics(m metrics.SyncMetrics) { d.metrics = m }

// StartSyncRequest carries everything needed to start one sync job.
type StartSyncRequest struct {
	ContainerName  string
	JobID          string
	Continuous     bool
	Unidirectional bool
	Source         *wlobject.Storage
	Target         *wlobject.Storage
}

// StartSync builds the source/target backends, records their
// container association in the hash database, and launches the job,
// mirroring SyncDaemon.start_sync.
func (d *Daemon) StartSync(ctx context.Context, req StartSyncRequest) (string, error) {
	d.mu.Lock()
	_, exists := d.jobs[req.JobID]
	d.mu.Unlock()
	if exists {
		return "", wlerr.New(wlerr.ControlError, "sync job %s is already running; stop it first", req.JobID)
	}

	sourceBackend, err := storage.New(req.Source)
	if err != nil {
		return "", wlerr.Wrap(wlerr.BackendMountFailed, err, "constructing source backend of type %s", req.Source.Type)
	}
	targetBackend, err := storage.New(req.Target)
	if err != nil {
		return "", wlerr.Wrap(wlerr.BackendMountFailed, err, "constructing target backend of type %s", req.Target.Type)
	}
	if err := sourceBackend.Mount(ctx); err != nil {
		return "", wlerr.Wrap(wlerr.BackendMountFailed, err, "mounting source backend %s", req.Source.BackendID)
	}
	if err := targetBackend.Mount(ctx); err != nil {
		return "", wlerr.Wrap(wlerr.BackendMountFailed, err, "mounting target backend %s", req.Target.BackendID)
	}

	containerUUID := containerUUIDFromJobID(req.JobID)
	if err := d.hdb.UpdateStoragesForContainers(containerUUID, []string{req.Source.BackendID, req.Target.BackendID}); err != nil {
		return "", fmt.Errorf("recording storages for container %s: %w", containerUUID, err)
	}

	syncer := wsync.NewNaiveSyncer(req.Source.BackendID, sourceBackend, req.Target.BackendID, targetBackend, d.hdb)
	j := newJob(req.ContainerName, req.JobID, req.Continuous, req.Unidirectional, req.Source.BackendID, req.Target.BackendID, syncer, d.metrics)

	d.mu.Lock()
	d.jobs[req.JobID] = j
	jobCount := len(d.jobs)
	d.mu.Unlock()
	metrics.SetActiveJobs(d.metrics, jobCount)

	j.start(ctx)

	return fmt.Sprintf("using target backend %s of type %s", req.Target.BackendID, req.Target.Type), nil
}

// containerUUIDFromJobID extracts the container UUID half of a
// "<owner>|<container-uuid>" job ID.
func containerUUIDFromJobID(jobID string) string {
	if _, uuid, ok := strings.Cut(jobID, "|"); ok {
		return uuid
	}
	return jobID
}

// StopSync stops and removes one job, mirroring SyncDaemon.stop_sync.
func (d *Daemon) StopSync(jobID string) (string, error) {
	d.mu.Lock()
	j, ok := d.jobs[jobID]
	if ok {
		delete(d.jobs, jobID)
	}
	jobCount := len(d.jobs)
	d.mu.Unlock()

	if !ok {
		return "", wlerr.New(wlerr.ENOENT, "sync job %s is not running", jobID)
	}
	j.stop()
	metrics.SetActiveJobs(d.metrics, jobCount)
	return fmt.Sprintf("sync job %s stopped", jobID), nil
}

// StopAll stops every running job, mirroring control_stop_all.
func (d *Daemon) StopAll() {
	d.mu.Lock()
	jobs := make([]*job, 0, len(d.jobs))
	for _, j := range d.jobs {
		jobs = append(jobs, j)
	}
	d.jobs = make(map[string]*job)
	d.mu.Unlock()

	for _, j := range jobs {
		j.stop()
	}
	metrics.SetActiveJobs(d.metrics, 0)
}

// Status returns one status line per running job, sorted for
// deterministic output, mirroring control_status.
func (d *Daemon) Status() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	lines := make([]string, 0, len(d.jobs))
	for _, j := range d.jobs {
		lines = append(lines, j.status())
	}
	sort.Strings(lines)
	return lines
}

// JobStatusReport is the structured counterpart of control_job_status's
// (code, status) pair.
type JobStatusReport struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

// JobStatus reports one job's state and formatted status, or false if
// jobID isn't running.
func (d *Daemon) JobStatus(jobID string) (JobStatusReport, bool) {
	d.mu.Lock()
	j, ok := d.jobs[jobID]
	d.mu.Unlock()
	if !ok {
		return JobStatusReport{}, false
	}
	return JobStatusReport{Code: int(j.syncerStatus()), Status: j.status()}, true
}

// Shutdown stops every job, mirroring control_shutdown's call into
// self.stop() before the control server itself exits.
func (d *Daemon) Shutdown() {
	d.StopAll()
}
