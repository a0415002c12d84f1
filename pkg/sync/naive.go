package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sort"
	"sync"

	"time"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/metrics"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/sync/hashdb"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// blockSize is the chunk size used when streaming a file between
// backends, matching naive_sync.py's BLOCK_SIZE.
const blockSize = 1 << 20

// NaiveSyncer is the one syncer implementation this package provides:
// a generic bidirectional replicator that works against any pair of
// storage.Backend, the Go counterpart of NaiveSyncer in
// storage_sync/naive_sync.py. Its SOURCE_TYPES/TARGET_TYPES are "*" in
// the original (it fits any backend pair), so there is nothing for a
// Go type system to express there; this type simply has no
// restriction on what it's constructed with.
type NaiveSyncer struct {
	sourceID string
	source   storage.Backend
	targetID string
	target   storage.Backend
	hdb      *hashdb.DB

	mu        sync.Mutex
	state     State
	conflicts []Conflict
	errs      []error

	sourceWatcher storage.Watcher
	targetWatcher storage.Watcher
	stopCh        chan struct{}
	wg            sync.WaitGroup
	eventMu       sync.Mutex

	metrics metrics.SyncMetrics
}

var _ Syncer = (*NaiveSyncer)(nil)

// NewNaiveSyncer builds a syncer between source (identified by
// sourceID) and target (targetID), persisting hash memory in hdb.
func NewNaiveSyncer(sourceID string, source storage.Backend, targetID string, target storage.Backend, hdb *hashdb.DB) *NaiveSyncer {
	return &NaiveSyncer{
		sourceID: sourceID,
		source:   source,
		targetID: targetID,
		target:   target,
		hdb:      hdb,
		state:    StateInit,
	}
}

// SetMetrics attaches m as this syncer's metrics sink. Pass nil (the
// default) to leave metrics collection disabled.
func (s *NaiveSyncer) SetMetrics(m metrics.SyncMetrics) { s.metrics = m }

func (s *NaiveSyncer) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState applies SYNCED-never-overwrites-ERROR and ERROR-is-sticky
// rules, mirroring the original's state property setter.
func (s *NaiveSyncer) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateError && next == StateSynced {
		return
	}
	s.state = next
}

func (s *NaiveSyncer) recordError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	logger.Error("sync: error", "source", s.sourceID, "target", s.targetID, "error", err)
}

// IterErrors returns every error recorded since the last start.
func (s *NaiveSyncer) IterErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *NaiveSyncer) addConflict(c Conflict) {
	s.mu.Lock()
	for _, existing := range s.conflicts {
		if existing.Equal(c) {
			s.mu.Unlock()
			return
		}
	}
	s.conflicts = append(s.conflicts, c)
	s.mu.Unlock()
	metrics.RecordConflict(s.metrics)
	logger.Warn("sync: conflict", "path", c.Path, "backend1", c.Backend1ID, "backend2", c.Backend2ID)
}

// IterConflicts returns conflicts accumulated in memory since the last
// start, without re-walking either backend.
func (s *NaiveSyncer) IterConflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conflict(nil), s.conflicts...)
}

// IterConflictsForce re-walks both backends and reports every path
// whose content differs, ignoring hash memory — a fresh, from-scratch
// comparison rather than the incrementally-maintained conflict list.
func (s *NaiveSyncer) IterConflictsForce(ctx context.Context) ([]Conflict, error) {
	sourceFiles, _, err := snapshot(ctx, s.source)
	if err != nil {
		return nil, err
	}
	targetFiles, _, err := snapshot(ctx, s.target)
	if err != nil {
		return nil, err
	}
	var conflicts []Conflict
	for p, sourceHash := range sourceFiles {
		if targetHash, ok := targetFiles[p]; ok && targetHash != sourceHash {
			conflicts = append(conflicts, Conflict{Path: p, Backend1ID: s.sourceID, Backend2ID: s.targetID})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts, nil
}

func (s *NaiveSyncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// StartSync installs watchers on both backends (source only, if
// unidirectional), runs an initial OneShotSync baseline, then services
// watcher events until StopSync.
func (s *NaiveSyncer) StartSync(ctx context.Context, unidirectional bool) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return wlerr.New(wlerr.ControlError, "syncer for %s<->%s is already running", s.sourceID, s.targetID)
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.conflicts = nil
	s.errs = nil
	s.mu.Unlock()

	sourceWatcher, err := s.source.StartWatcher(ctx, true)
	if err != nil {
		s.setState(StateError)
		return wlerr.Wrap(wlerr.BackendMountFailed, err, "starting watcher on %s", s.sourceID)
	}

	var targetWatcher storage.Watcher
	if !unidirectional {
		targetWatcher, err = s.target.StartWatcher(ctx, true)
		if err != nil {
			if sourceWatcher != nil {
				sourceWatcher.Stop()
			}
			s.setState(StateError)
			return wlerr.Wrap(wlerr.BackendMountFailed, err, "starting watcher on %s", s.targetID)
		}
	}

	s.mu.Lock()
	s.sourceWatcher, s.targetWatcher = sourceWatcher, targetWatcher
	s.mu.Unlock()

	if err := s.OneShotSync(ctx, unidirectional); err != nil {
		s.setState(StateError)
		return err
	}

	s.setState(StateRunning)
	if sourceWatcher != nil {
		s.wg.Add(1)
		go s.watchLoop(ctx, stopCh, s.sourceID, s.source, s.targetID, s.target, sourceWatcher)
	}
	if targetWatcher != nil {
		s.wg.Add(1)
		go s.watchLoop(ctx, stopCh, s.targetID, s.target, s.sourceID, s.source, targetWatcher)
	}
	return nil
}

// StopSync stops any watchers and waits for their loops to exit.
func (s *NaiveSyncer) StopSync() error {
	s.mu.Lock()
	stopCh := s.stopCh
	sourceWatcher, targetWatcher := s.sourceWatcher, s.targetWatcher
	s.stopCh = nil
	s.sourceWatcher, s.targetWatcher = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)
	if sourceWatcher != nil {
		sourceWatcher.Stop()
	}
	if targetWatcher != nil {
		targetWatcher.Stop()
	}
	s.wg.Wait()
	s.setState(StateStopped)
	return nil
}

func (s *NaiveSyncer) watchLoop(ctx context.Context, stopCh chan struct{}, sideID string, side storage.Backend, otherID string, other storage.Backend, w storage.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		events, err := w.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.recordError(wlerr.Wrap(wlerr.IOError, err, "watching %s", sideID))
			s.setState(StateError)
			continue
		}
		if events == nil {
			return
		}

		s.eventMu.Lock()
		s.handleEvents(ctx, sideID, side, otherID, other, events)
		s.eventMu.Unlock()
	}
}

// handleEvents is the live watcher callback: DELETE removes the object
// on the other side if it last agreed with this side, else the
// surviving side is treated as authoritative and pushed the other way.
// CREATE/MODIFY dispatch to directory or file sync. Must be called
// with s.eventMu held (not s.mu, which the state and error helpers
// take themselves), so the two watch loops handle one batch at a time,
// mirroring the original's lock-guarded _handle_events.
func (s *NaiveSyncer) handleEvents(ctx context.Context, sideID string, side storage.Backend, otherID string, other storage.Backend, events []storage.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case storage.EventDelete:
			s.handleDeleteLocked(ctx, sideID, side, otherID, other, ev.Path)
		case storage.EventCreate, storage.EventModify:
			attr, err := side.Getattr(ctx, ev.Path)
			if err != nil {
				s.recordError(wlerr.Wrap(wlerr.IOError, err, "stat %s on %s after event", ev.Path, sideID))
				s.setState(StateError)
				continue
			}
			if attr.IsDir() {
				if err := other.Mkdir(ctx, ev.Path, 0o755); err != nil && !wlerr.Is(err, wlerr.EEXIST) {
					s.recordError(wlerr.Wrap(wlerr.IOError, err, "creating dir %s on %s", ev.Path, otherID))
					s.setState(StateError)
				}
				continue
			}
			if err := s.syncFile(ctx, sideID, side, otherID, other, ev.Path); err != nil {
				s.recordError(err)
				s.setState(StateError)
				continue
			}
			s.setState(StateSynced)
		}
	}
}

func (s *NaiveSyncer) handleDeleteLocked(ctx context.Context, sideID string, side storage.Backend, otherID string, other storage.Backend, p string) {
	otherHash, otherExists := "", true
	h, err := other.GetHash(ctx, p)
	if err != nil {
		otherExists = false
	} else {
		otherHash = h
	}
	if !otherExists {
		s.hdb.DeleteHash(sideID, p)
		return
	}

	lastSide, haveSide, err := s.hdb.RetrieveHash(sideID, p)
	if err != nil {
		s.recordError(err)
		s.setState(StateError)
		return
	}
	if haveSide && lastSide.Hash == otherHash {
		if err := other.Unlink(ctx, p); err != nil {
			s.recordError(wlerr.Wrap(wlerr.IOError, err, "removing %s from %s", p, otherID))
			s.setState(StateError)
			return
		}
		s.hdb.DeleteHash(sideID, p)
		s.hdb.DeleteHash(otherID, p)
		return
	}

	// The two sides disagree about which deletion is authoritative;
	// re-create the deleted path from the surviving (other) side.
	if err := s.syncFile(ctx, otherID, other, sideID, side, p); err != nil {
		s.recordError(err)
		s.setState(StateError)
	}
}

// OneShotSync walks both backends, converges their directory trees,
// then converges their files, recording conflicts for anything it
// can't resolve unambiguously.
func (s *NaiveSyncer) OneShotSync(ctx context.Context, unidirectional bool) error {
	s.setState(StateOneShot)

	sourceFiles, sourceDirs, err := snapshot(ctx, s.source)
	if err != nil {
		s.setState(StateError)
		return wlerr.Wrap(wlerr.IOError, err, "walking %s", s.sourceID)
	}
	targetFiles, targetDirs, err := snapshot(ctx, s.target)
	if err != nil {
		s.setState(StateError)
		return wlerr.Wrap(wlerr.IOError, err, "walking %s", s.targetID)
	}

	if err := s.syncDirs(ctx, s.sourceID, sourceDirs, s.targetID, s.target, targetDirs); err != nil {
		s.setState(StateError)
		return err
	}
	if !unidirectional {
		if err := s.syncDirs(ctx, s.targetID, targetDirs, s.sourceID, s.source, sourceDirs); err != nil {
			s.setState(StateError)
			return err
		}
	}

	for p, sourceHash := range sourceFiles {
		targetHash, onTarget := targetFiles[p]
		if onTarget && sourceHash == targetHash {
			continue
		}
		if !onTarget {
			if s.deletedRemotely(p, s.targetID, s.sourceID, sourceHash) {
				if err := s.source.Unlink(ctx, p); err != nil {
					s.setState(StateError)
					return wlerr.Wrap(wlerr.IOError, err, "removing %s from %s", p, s.sourceID)
				}
				s.hdb.DeleteHash(s.sourceID, p)
				continue
			}
			if err := s.syncFile(ctx, s.sourceID, s.source, s.targetID, s.target, p); err != nil {
				s.recordError(err)
			}
			continue
		}

		oldSource, haveSource, err := s.hdb.RetrieveHash(s.sourceID, p)
		if err != nil {
			s.setState(StateError)
			return err
		}
		oldTarget, haveTarget, err := s.hdb.RetrieveHash(s.targetID, p)
		if err != nil {
			s.setState(StateError)
			return err
		}
		if haveSource && haveTarget && oldSource.Hash != oldTarget.Hash {
			s.addConflict(Conflict{Path: p, Backend1ID: s.sourceID, Backend2ID: s.targetID})
			continue
		}
		// Whichever side's current hash still matches its own
		// last-known hash is the stale one; sync from the other. If
		// neither side matches, both drifted: record a conflict.
		switch {
		case haveSource && oldSource.Hash == sourceHash:
			if err := s.syncFile(ctx, s.targetID, s.target, s.sourceID, s.source, p); err != nil {
				s.recordError(err)
			}
		case haveTarget && oldTarget.Hash == targetHash:
			if err := s.syncFile(ctx, s.sourceID, s.source, s.targetID, s.target, p); err != nil {
				s.recordError(err)
			}
		default:
			s.addConflict(Conflict{Path: p, Backend1ID: s.sourceID, Backend2ID: s.targetID})
		}
	}

	if !unidirectional {
		for p, targetHash := range targetFiles {
			if _, onSource := sourceFiles[p]; onSource {
				continue
			}
			if s.deletedRemotely(p, s.sourceID, s.targetID, targetHash) {
				if err := s.target.Unlink(ctx, p); err != nil {
					s.setState(StateError)
					return wlerr.Wrap(wlerr.IOError, err, "removing %s from %s", p, s.targetID)
				}
				s.hdb.DeleteHash(s.targetID, p)
				continue
			}
			if err := s.syncFile(ctx, s.targetID, s.target, s.sourceID, s.source, p); err != nil {
				s.recordError(err)
			}
		}
	}

	if s.Status() != StateError {
		s.setState(StateSynced)
	}
	return nil
}

// deletedRemotely reports whether a file present only on the "present"
// side was safely deleted (while offline) from the "absent" side,
// rather than being new: true iff the absent side's own last-known
// hash for the path equals the present side's current hash.
func (s *NaiveSyncer) deletedRemotely(p, absentID, presentID, presentHash string) bool {
	old, have, err := s.hdb.RetrieveHash(absentID, p)
	if err != nil {
		s.recordError(err)
		return false
	}
	return have && old.Hash == presentHash
}

// syncDirs creates, on to, every directory present on from but missing
// on to, recording a conflict instead of failing when the path exists
// there as something other than a directory.
func (s *NaiveSyncer) syncDirs(ctx context.Context, fromID string, fromDirs map[string]bool, toID string, to storage.Backend, toDirs map[string]bool) error {
	var missing []string
	for d := range fromDirs {
		if !toDirs[d] {
			missing = append(missing, d)
		}
	}
	sort.Strings(missing) // parents sort before their children

	for _, d := range missing {
		if err := to.Mkdir(ctx, d, 0o755); err != nil {
			if wlerr.Is(err, wlerr.EEXIST) || wlerr.Is(err, wlerr.ENOTDIR) {
				s.addConflict(Conflict{Path: d, Backend1ID: fromID, Backend2ID: toID})
				continue
			}
			return wlerr.Wrap(wlerr.IOError, err, "creating dir %s on %s", d, toID)
		}
	}
	return nil
}

// syncFile copies path from source to target, verifying on commit that
// target hasn't changed out from under the copy (a stale expectedHash
// aborts with wlerr.HashMismatch rather than clobbering a concurrent
// write), then records the resulting hash on both sides.
func (s *NaiveSyncer) syncFile(ctx context.Context, sourceID string, source storage.Backend, targetID string, target storage.Backend, p string) error {
	targetHash, targetErr := target.GetHash(ctx, p)
	expected := ""
	if targetErr == nil {
		expected = targetHash
	}

	start := time.Now()
	hash, n, err := copyFile(ctx, source, target, p, expected)
	metrics.RecordCopy(s.metrics, n, time.Since(start), err)
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "syncing %s from %s to %s", p, sourceID, targetID)
	}

	if err := s.hdb.StoreHash(sourceID, p, hashdb.HashCache{Hash: hash}); err != nil {
		return err
	}
	if err := s.hdb.StoreHash(targetID, p, hashdb.HashCache{Hash: hash}); err != nil {
		return err
	}
	return nil
}

// copyFile streams path from source to target in blockSize chunks,
// using target's SafeReplacer when it has one so the commit aborts
// instead of clobbering a concurrent write, and returns the resulting
// sha256 hex digest.
func copyFile(ctx context.Context, source storage.Backend, target storage.Backend, p string, expectedHash string) (string, int64, error) {
	srcHandle, err := source.Open(ctx, p, os.O_RDONLY)
	if err != nil {
		return "", 0, err
	}
	defer source.Release(ctx, srcHandle)

	replacer, safe := target.(storage.SafeReplacer)
	var dstHandle storage.Handle
	if safe {
		dstHandle, err = replacer.CreateSafeReplace(ctx, p, expectedHash)
	} else {
		dstHandle, err = target.Create(ctx, p, os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return "", 0, err
	}

	abort := func() {
		if safe {
			replacer.DiscardSafeReplace(ctx, dstHandle)
		} else {
			target.Release(ctx, dstHandle)
		}
	}

	h := sha256.New()
	var off int64
	for {
		buf, err := source.Read(ctx, srcHandle, off, blockSize)
		if err != nil && !errors.Is(err, io.EOF) {
			abort()
			return "", off, err
		}
		if len(buf) == 0 {
			break
		}
		if _, err := target.Write(ctx, dstHandle, off, buf); err != nil {
			abort()
			return "", off, err
		}
		h.Write(buf)
		off += int64(len(buf))
		if len(buf) < blockSize {
			break
		}
	}

	var commitErr error
	if safe {
		commitErr = replacer.CommitSafeReplace(ctx, dstHandle)
	} else {
		commitErr = target.Release(ctx, dstHandle)
	}
	if commitErr != nil {
		return "", off, commitErr
	}
	return hex.EncodeToString(h.Sum(nil)), off, nil
}

// snapshot walks b's entire tree, returning every file's path->hash and
// every directory path present, the Go counterpart of the {path: hash}
// snapshot one_shot_sync builds for each side.
func snapshot(ctx context.Context, b storage.Backend) (files map[string]string, dirs map[string]bool, err error) {
	fileSet := map[string]struct{}{}
	dirSet := map[string]struct{}{}
	if err := walk(ctx, b, "/", fileSet, dirSet); err != nil {
		return nil, nil, err
	}

	files = make(map[string]string, len(fileSet))
	for p := range fileSet {
		h, err := b.GetHash(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		files[p] = h
	}
	dirs = make(map[string]bool, len(dirSet))
	for p := range dirSet {
		dirs[p] = true
	}
	return files, dirs, nil
}

func walk(ctx context.Context, b storage.Backend, dir string, files, dirs map[string]struct{}) error {
	entries, err := b.Readdir(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range entries {
		p := joinPath(dir, name)
		attr, err := b.Getattr(ctx, p)
		if err != nil {
			return err
		}
		if attr.IsDir() {
			dirs[p] = struct{}{}
			if err := walk(ctx, b, p, files, dirs); err != nil {
				return err
			}
			continue
		}
		files[p] = struct{}{}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
