package daemon

import (
	"fmt"
	"sync"

	"github.com/wildland/wildland-go/pkg/storage"
)

// watchEntry is one outstanding add-watch registration: a live
// storage.Watcher plus the glob pattern and storage it was registered
// against, so events can be reported back with enough context for a
// caller (e.g. the remounter or synchroniser) to decide relevance.
type watchEntry struct {
	StorageID string
	Pattern   string
	watcher   storage.Watcher
}

// watchRegistry hands out ids for live watchers and lets callers poll
// for their next batch of events, the Go equivalent of the original
// FileWatchers/SubcontainerWatchers tables that fanned events out to
// control-protocol handler connections. Without a persistent socket
// connection per watch, polling by id is the natural adaptation.
type watchRegistry struct {
	mu      sync.Mutex
	entries map[string]*watchEntry
	counter uint64
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{entries: make(map[string]*watchEntry)}
}

func (r *watchRegistry) register(storageID, pattern string, w storage.Watcher) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	id := fmt.Sprintf("w%d", r.counter)
	r.entries[id] = &watchEntry{StorageID: storageID, Pattern: pattern, watcher: w}
	return id
}

func (r *watchRegistry) get(id string) (*watchEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Stop releases every registered watcher, used during daemon shutdown.
func (r *watchRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		_ = e.watcher.Stop()
	}
	r.entries = make(map[string]*watchEntry)
}
