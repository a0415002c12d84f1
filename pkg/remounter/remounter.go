package remounter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"strings"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/fsclient"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// mountPlan is one queued mount/remount: the manifest bytes to send and
// the virtual paths it should appear at.
type mountPlan struct {
	manifest []byte
	paths    []string
}

// Remounter tracks container manifests reachable through a running
// mount daemon's control socket and keeps the daemon's mount table in
// sync with them, the Go counterpart of original_source/wildland/
// remounters/remounter.py's Remounter base class.
type Remounter struct {
	fsc *fsclient.Client
	cl  *client.Client

	// source manifest path -> uuid of the container it last loaded,
	// mirroring Remounter.main_paths (manifest path -> main container
	// path) so a delete event can find what to unmount.
	tracked map[string]string

	toMount   []mountPlan
	toUnmount []string
}

// New builds a Remounter that mounts through fsc and reads manifests
// with cl.
func New(fsc *fsclient.Client, cl *client.Client) *Remounter {
	return &Remounter{
		fsc:     fsc,
		cl:      cl,
		tracked: make(map[string]string),
	}
}

// HandleManifestDeleted queues the unmount of whatever container
// sourcePath last loaded, mirroring handle_event's FileEventType.DELETE
// branch.
func (r *Remounter) HandleManifestDeleted(ctx context.Context, sourcePath string) {
	uuid, ok := r.tracked[sourcePath]
	if !ok {
		logger.Debug("remounter: delete for untracked manifest", "path", sourcePath)
		return
	}
	delete(r.tracked, sourcePath)

	info, err := r.fsc.Info(ctx)
	if err != nil {
		logger.Warn("remounter: failed to list mounts for delete", "error", err)
		return
	}
	for id, si := range info {
		if si.Extra != nil && si.Extra["container_uuid"] == uuid {
			r.toUnmount = append(r.toUnmount, id)
		}
	}
}

// HandleManifestChanged loads the container manifest at sourcePath and
// queues a mount or remount as needed, mirroring handle_event's
// CREATE/MODIFY branch plus handle_changed_container.
func (r *Remounter) HandleManifestChanged(ctx context.Context, sourcePath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "reading changed manifest %s", sourcePath)
	}
	ct, err := r.cl.LoadContainerFromBytes(data, "")
	if err != nil {
		return wlerr.Wrap(wlerr.ManifestParse, err, "loading changed manifest %s", sourcePath)
	}

	r.tracked[sourcePath] = ct.UUID()

	paths := append(append([]string{}, ct.Paths...), ct.CategoryMountPaths()...)
	tag := tagFor(data, paths)

	info, err := r.fsc.Info(ctx)
	if err != nil {
		return wlerr.Wrap(wlerr.ControlError, err, "listing mounts")
	}

	var existingID string
	for id, si := range info {
		if si.Extra != nil && si.Extra["container_uuid"] == ct.UUID() {
			existingID = id
			break
		}
	}

	if existingID == "" {
		logger.Info("remounter: new container", "uuid", ct.UUID(), "paths", paths)
		r.toMount = append(r.toMount, mountPlan{manifest: data, paths: paths})
		return nil
	}

	if info[existingID].Extra["tag"] != tag {
		logger.Info("remounter: remounting changed container", "uuid", ct.UUID())
		r.toUnmount = append(r.toUnmount, existingID)
		r.toMount = append(r.toMount, mountPlan{manifest: data, paths: paths})
	} else {
		logger.Debug("remounter: container unchanged", "uuid", ct.UUID())
	}
	return nil
}

// UnmountPending unmounts every queued storage id, logging (rather than
// failing outright on) a single bad entry, as unmount_pending does.
func (r *Remounter) UnmountPending(ctx context.Context) {
	for _, id := range r.toUnmount {
		if err := r.fsc.Unmount(ctx, id); err != nil {
			logger.Error("remounter: failed to unmount", "storage_id", id, "error", err)
		}
	}
	r.toUnmount = nil
}

// MountPending mounts every queued plan, tagging the mount's Extra so a
// later HandleManifestChanged can detect whether it needs remounting.
func (r *Remounter) MountPending(ctx context.Context) {
	for _, plan := range r.toMount {
		ct, err := r.cl.LoadContainerFromBytes(plan.manifest, "")
		if err != nil {
			logger.Error("remounter: failed to decode queued manifest", "error", err)
			continue
		}
		tag := tagFor(plan.manifest, plan.paths)
		_, err = r.fsc.Mount(ctx, fsclient.MountRequest{
			ContainerManifest: plan.manifest,
			Paths:             plan.paths,
			Extra: map[string]any{
				"container_uuid": ct.UUID(),
				"tag":            tag,
			},
		})
		if err != nil {
			logger.Error("remounter: failed to mount", "uuid", ct.UUID(), "error", err)
		}
	}
	r.toMount = nil
}

// tagFor computes a change-detection fingerprint over a container's raw
// manifest bytes and its resolved mount paths, the role should_remount's
// storage-params-derived tag plays in the original: any edit to the
// manifest (paths, backends, storage params) changes the tag.
func tagFor(manifest []byte, paths []string) string {
	sorted := append([]string{}, paths...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write(manifest)
	h.Write([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
