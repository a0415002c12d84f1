// Package hashdb is the synchroniser's persistent memory of the last
// hash it observed for each (backend, path) pair, and which backends
// belong to which container — the Go counterpart of
// wildland/hashdb.py's HashDb, backed by glebarez/sqlite (pure-Go
// SQLite) through gorm, with golang-migrate applying its schema.
package hashdb

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// HashCache is a remembered content hash plus the freshness token it
// was observed under, the Go counterpart of hashdb.py's HashCache
// namedtuple.
type HashCache struct {
	Hash  string
	Token string
}

type containerBackendRow struct {
	ContainerID string `gorm:"column:container_id;primaryKey"`
	BackendID   string `gorm:"column:backend_id;primaryKey"`
}

func (containerBackendRow) TableName() string { return "container_backends" }

type hashRow struct {
	BackendID string `gorm:"column:backend_id;primaryKey"`
	Path      string `gorm:"column:path;primaryKey"`
	Hash      string `gorm:"column:hash"`
	Token     string `gorm:"column:token"`
}

func (hashRow) TableName() string { return "hashes" }

// DB is the hash database, one per synchroniser process, opened with
// journal_mode=WAL and a busy timeout so continuous and one-shot
// syncers sharing a base directory don't lock each other out.
type DB struct {
	gdb *gorm.DB
}

// Open opens (creating if necessary) the hash database under baseDir,
// applying any pending schema migrations before returning.
func Open(baseDir string) (*DB, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "creating hashdb directory %s", baseDir)
	}
	path := filepath.Join(baseDir, "wlhashes.db")
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "opening hash database %s", path)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "unwrapping hash database handle")
	}
	if err := runMigrations(sqlDB); err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "migrating hash database %s", path)
	}

	return &DB{gdb: gdb}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpdateStoragesForContainers records that every id in backendIDs
// belongs to containerID, the Go counterpart of
// update_storages_for_containers.
func (d *DB) UpdateStoragesForContainers(containerID string, backendIDs []string) error {
	for _, id := range backendIDs {
		row := containerBackendRow{ContainerID: containerID, BackendID: id}
		err := d.gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err != nil {
			return wlerr.Wrap(wlerr.IOError, err, "recording backend %s for container %s", id, containerID)
		}
	}
	return nil
}

// StoreHash remembers hc as the last-known hash for (backendID, path),
// the Go counterpart of store_hash.
func (d *DB) StoreHash(backendID, path string, hc HashCache) error {
	row := hashRow{BackendID: backendID, Path: path, Hash: hc.Hash, Token: hc.Token}
	err := d.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "backend_id"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"hash", "token"}),
	}).Create(&row).Error
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "storing hash for %s:%s", backendID, path)
	}
	return nil
}

// RetrieveHash returns the last-known hash for (backendID, path), and
// false if there is no entry — retrieve_hash's "no entry returns empty"
// contract, rather than an error.
func (d *DB) RetrieveHash(backendID, path string) (HashCache, bool, error) {
	var row hashRow
	err := d.gdb.Where("backend_id = ? AND path = ?", backendID, path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return HashCache{}, false, nil
	}
	if err != nil {
		return HashCache{}, false, wlerr.Wrap(wlerr.IOError, err, "retrieving hash for %s:%s", backendID, path)
	}
	return HashCache{Hash: row.Hash, Token: row.Token}, true, nil
}

// DeleteHash forgets the last-known hash for (backendID, path), used
// once a file has been deleted on that side.
func (d *DB) DeleteHash(backendID, path string) error {
	err := d.gdb.Where("backend_id = ? AND path = ?", backendID, path).Delete(&hashRow{}).Error
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "deleting hash for %s:%s", backendID, path)
	}
	return nil
}

// Conflict is a path where two backends belonging to the same
// container disagree on the last-known hash.
type Conflict struct {
	Path     string
	Backend1 string
	Backend2 string
}

// GetConflicts reports every path where two backends tracked against
// containerID disagree on their last-known hash, a simplified
// reimplementation of get_conflicts' multi-join SQL as an in-process
// pairwise comparison (this table is small — one row per backend/path
// the synchroniser has actually touched — so a join isn't needed for
// it to be fast).
func (d *DB) GetConflicts(containerID string) ([]Conflict, error) {
	var backends []containerBackendRow
	if err := d.gdb.Where("container_id = ?", containerID).Find(&backends).Error; err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "listing backends for container %s", containerID)
	}
	if len(backends) < 2 {
		return nil, nil
	}
	ids := make([]string, len(backends))
	for i, b := range backends {
		ids[i] = b.BackendID
	}

	var rows []hashRow
	if err := d.gdb.Where("backend_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "listing hashes for container %s", containerID)
	}

	byPath := make(map[string][]hashRow)
	for _, r := range rows {
		byPath[r.Path] = append(byPath[r.Path], r)
	}

	var conflicts []Conflict
	for path, hs := range byPath {
		for i := 0; i < len(hs); i++ {
			for j := i + 1; j < len(hs); j++ {
				if hs[i].Hash != hs[j].Hash {
					conflicts = append(conflicts, Conflict{Path: path, Backend1: hs[i].BackendID, Backend2: hs[j].BackendID})
				}
			}
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return conflicts, nil
}
