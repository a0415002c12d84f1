package remounter

import (
	"context"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// Run watches storageID (a mounted manifests-catalog storage) under
// pattern for changes and, for as long as ctx is live, mounts, remounts
// or unmounts containers as their manifests change — the Go equivalent
// of PatternRemounter.run's watch-and-react loop, minus the wlpath
// re-resolution branch this codebase's simplified WildlandPathPattern
// doesn't need.
//
// sourceDir maps a manifest's path as reported by the watch (relative
// to storageID's root) to the local filesystem path Remounter should
// read it from.
func Run(ctx context.Context, r *Remounter, storageID string, pattern Pattern, sourceDir func(relpath string) string) error {
	watchID, err := r.fsc.AddWatch(ctx, storageID, pattern.String(), false)
	if err != nil {
		return wlerr.Wrap(wlerr.ControlError, err, "registering watch on storage %s", storageID)
	}
	if watchID == "" {
		return wlerr.New(wlerr.BackendUnsupported, "storage %s does not support watching", storageID)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		events, err := r.fsc.WatchEvents(ctx, watchID)
		if err != nil {
			return wlerr.Wrap(wlerr.ControlError, err, "polling watch %s", watchID)
		}

		for _, ev := range events {
			if !pattern.Match(ev.Path) {
				continue
			}
			logger.Debug("remounter: event", "kind", ev.Kind, "path", ev.Path)
			switch storage.EventKind(ev.Kind) {
			case storage.EventDelete:
				r.HandleManifestDeleted(ctx, sourceDir(ev.Path))
			case storage.EventCreate, storage.EventModify:
				if err := r.HandleManifestChanged(ctx, sourceDir(ev.Path)); err != nil {
					logger.Error("remounter: failed to handle manifest change", "path", ev.Path, "error", err)
				}
			}
		}

		r.UnmountPending(ctx)
		r.MountPending(ctx)
	}
}
