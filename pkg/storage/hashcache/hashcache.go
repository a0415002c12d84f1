// Package hashcache keeps a BadgerDB-backed map from (backend id, path)
// to the last-known attribute token and content hash, so repeated
// getattr/get_hash calls against slow or metered backends (S3, date
// proxies over a remote catalog) don't have to re-fetch on every call.
package hashcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/wildland/wildland-go/internal/bytesize"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// Entry is the cached value for one (backend, path) pair.
type Entry struct {
	Token string
	Hash  string
	At    time.Time
}

// Cache wraps an embedded BadgerDB instance.
type Cache struct {
	db *badger.DB
}

// Open creates or reopens a cache rooted at dir. dir == "" opens an
// in-memory instance, useful for tests and for backends without a
// persistent local disk (pure S3 deployments).
func Open(dir string) (*Cache, error) {
	return open(dir, 0)
}

// OpenWithMaxSize is Open plus Badger's value log file size: the size
// at which Badger starts a new value log file. It does not limit the
// cache's total size on disk. maxSize == 0 falls back to Badger's own
// default.
func OpenWithMaxSize(dir string, maxSize bytesize.ByteSize) (*Cache, error) {
	return open(dir, maxSize)
}

func open(dir string, maxSize bytesize.ByteSize) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if maxSize > 0 {
		opts = opts.WithValueLogFileSize(maxSize.Int64())
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "opening hash cache at %s", dir)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func key(backendID, path string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s", backendID, path))
}

// Get returns the cached entry for (backendID, path), and false if there
// is none.
func (c *Cache) Get(ctx context.Context, backendID, path string) (Entry, bool, error) {
	var e Entry
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(backendID, path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return Entry{}, false, wlerr.Wrap(wlerr.IOError, err, "reading hash cache")
	}
	return e, found, nil
}

// Put stores or overwrites the entry for (backendID, path).
func (c *Cache) Put(ctx context.Context, backendID, path string, e Entry) error {
	e.At = e.At.UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "encoding hash cache entry")
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(backendID, path), data)
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "writing hash cache")
	}
	return nil
}

// Invalidate drops the cached entry for (backendID, path), e.g. after a
// local write makes the cached token stale.
func (c *Cache) Invalidate(ctx context.Context, backendID, path string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(backendID, path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "invalidating hash cache entry")
	}
	return nil
}

// InvalidateBackend drops every entry belonging to backendID, used on
// clear-cache and on backend unmount.
func (c *Cache) InvalidateBackend(ctx context.Context, backendID string) error {
	prefix := []byte(backendID + "\x00")
	err := c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte(nil), it.Item().Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "invalidating backend %s", backendID)
	}
	return nil
}
