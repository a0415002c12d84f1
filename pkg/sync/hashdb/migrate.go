package hashdb

import (
	"database/sql"
	"io"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/wildland/wildland-go/pkg/sync/hashdb/migrations"
)

// sqliteMigrateDriver is a minimal golang-migrate database.Driver over
// the pure-Go glebarez/go-sqlite connection the rest of this package
// already opened. golang-migrate ships drivers for mattn/go-sqlite3
// (cgo) and several others, but none for this pure-Go one, so this
// wraps the plain database/sql handle directly — the sqlite
// counterpart of the teacher's pkg/store/metadata/postgres/migrate.go,
// minus the driver it gets for free from golang-migrate/database/postgres.
type sqliteMigrateDriver struct {
	db *sql.DB
	mu sync.Mutex
}

func newSqliteMigrateDriver(db *sql.DB) (database.Driver, error) {
	d := &sqliteMigrateDriver{db: db}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER NOT NULL PRIMARY KEY,
		dirty BOOLEAN NOT NULL
	)`); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *sqliteMigrateDriver) Open(url string) (database.Driver, error) {
	return nil, io.EOF // unused: this instance is always built via newSqliteMigrateDriver
}

func (d *sqliteMigrateDriver) Close() error { return nil } // the DB handle outlives migration

func (d *sqliteMigrateDriver) Lock() error {
	d.mu.Lock()
	return nil
}

func (d *sqliteMigrateDriver) Unlock() error {
	d.mu.Unlock()
	return nil
}

func (d *sqliteMigrateDriver) Run(migration io.Reader) error {
	b, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(string(b))
	return err
}

func (d *sqliteMigrateDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations"); err != nil {
		tx.Rollback()
		return err
	}
	if version >= 0 {
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)", version, dirty); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (d *sqliteMigrateDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return database.NilVersion, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func (d *sqliteMigrateDriver) Drop() error {
	_, err := d.db.Exec("DELETE FROM schema_migrations")
	return err
}

// runMigrations applies every embedded migration to db.
func runMigrations(db *sql.DB) error {
	driver, err := newSqliteMigrateDriver(db)
	if err != nil {
		return err
	}
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
