package daemon

import (
	"context"
	"fmt"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/internal/telemetry"
	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/metrics"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/storage/hashcache"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Daemon owns the live mount table and the object loader used to
// resolve containers and storages named in mount requests. One Daemon
// backs both the control socket server and the VFS proxy.
type Daemon struct {
	client    *client.Client
	table     *Table
	watchers  *watchRegistry
	metrics   metrics.DaemonMetrics
	hashCache *hashcache.Cache
}

// New builds a Daemon around client for object loading/selection.
func New(c *client.Client) *Daemon {
	return &Daemon{client: c, table: NewTable(), watchers: newWatchRegistry()}
}

// SetMetrics attaches m as this daemon's metrics sink. Pass nil (the
// default) to leave metrics collection disabled.
func (d *Daemon) SetMetrics(m metrics.DaemonMetrics) { d.metrics = m }

// SetHashCache attaches a shared hash cache that every subsequently
// mounted backend is wrapped with. Pass nil (the default) to leave
// hash caching disabled.
func (d *Daemon) SetHashCache(c *hashcache.Cache) { d.hashCache = c }

// Table returns the mount table, for wiring into the proxy/resolver.
func (d *Daemon) Table() *Table { return d.table }

// MountRequest is one entry of a control-protocol `mount` call: a set of
// virtual paths, a container, and an optional storage backend override
// (when absent, the best backend is chosen via SelectStorage).
type MountRequest struct {
	Container       *wlobject.Container
	StorageOverride *wlobject.Storage
	Paths           []string
	Extra           map[string]any
}

// Mount selects (or uses the given) storage for req.Container, mounts
// its backend, and records it in the mount table, returning the
// assigned storage id.
func (d *Daemon) Mount(ctx context.Context, req MountRequest) (string, error) {
	ctx, span := telemetry.StartMetadataSpan(ctx, "mount", telemetry.Container(req.Container.UUID()))
	defer span.End()

	st := req.StorageOverride
	if st == nil {
		var err error
		st, err = d.client.SelectStorage(req.Container, req.Container.Backends.Storage)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return "", fmt.Errorf("selecting storage for container %s: %w", req.Container.UUID(), err)
		}
	}
	telemetry.SetAttributes(ctx, telemetry.StoreType(st.Type))

	backend, err := storage.New(st)
	if err != nil {
		metrics.RecordMount(d.metrics, st.Type, err)
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("constructing backend %s: %w", st.Type, err)
	}
	if err := backend.Mount(ctx); err != nil {
		metrics.RecordMount(d.metrics, st.Type, err)
		telemetry.RecordError(ctx, err)
		return "", fmt.Errorf("mounting backend %s: %w", st.BackendID, err)
	}
	backend = hashcache.Wrap(backend, d.hashCache, st.BackendID)

	paths := req.Paths
	if len(paths) == 0 {
		paths = append([]string{}, req.Container.Paths...)
		paths = append(paths, req.Container.CategoryMountPaths()...)
	}

	id := d.table.Mount(req.Container, st, backend, paths, req.Extra)
	metrics.RecordMount(d.metrics, st.Type, nil)
	metrics.SetActiveMounts(d.metrics, len(d.table.List()))
	logger.Info("mounted container", "storage_id", id, "backend", st.Type, "paths", paths)
	return id, nil
}

// Unmount tears down the storage backend mounted as id and removes it
// from the table.
func (d *Daemon) Unmount(ctx context.Context, id string) error {
	ctx, span := telemetry.StartMetadataSpan(ctx, "unmount")
	defer span.End()

	e, ok := d.table.Unmount(id)
	if !ok {
		err := fmt.Errorf("no such storage: %s", id)
		telemetry.RecordError(ctx, err)
		return err
	}
	telemetry.SetAttributes(ctx, telemetry.Container(e.Container.UUID()), telemetry.StoreType(e.Storage.Type))
	if err := e.Backend.Unmount(ctx); err != nil {
		metrics.RecordUnmount(d.metrics, e.Storage.Type, err)
		telemetry.RecordError(ctx, err)
		logger.Warn("error unmounting backend", "storage_id", id, "error", err)
		return err
	}
	if d.hashCache != nil {
		if err := d.hashCache.InvalidateBackend(ctx, e.Storage.BackendID); err != nil {
			logger.Warn("error invalidating hash cache", "storage_id", id, "error", err)
		}
	}
	metrics.RecordUnmount(d.metrics, e.Storage.Type, nil)
	metrics.SetActiveMounts(d.metrics, len(d.table.List()))
	logger.Info("unmounted container", "storage_id", id)
	return nil
}

// UnmountAll tears down every mounted backend, best-effort, used during
// daemon shutdown.
func (d *Daemon) UnmountAll(ctx context.Context) {
	d.watchers.Stop()
	for _, e := range d.table.List() {
		if err := d.Unmount(ctx, e.ID); err != nil {
			logger.Warn("error during shutdown unmount", "storage_id", e.ID, "error", err)
		}
	}
}
