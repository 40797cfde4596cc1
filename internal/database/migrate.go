package database

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateIface is the part of *migrate.Migrate the Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m migrateIface
}

// NewMigrator accepts postgres://, postgresql:// or pgx5:// URLs.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(databaseURL))
	if err != nil {
		_ = source.Close()
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}

	return &Migrator{m: m}, nil
}

// MigrateURL rewrites a postgres URL to the pgx5:// scheme the pgx/v5
// migrate driver registers.
func MigrateURL(databaseURL string) string {
	if rest, found := strings.CutPrefix(databaseURL, "postgres://"); found {
		return "pgx5://" + rest
	}
	if rest, found := strings.CutPrefix(databaseURL, "postgresql://"); found {
		return "pgx5://" + rest
	}
	return databaseURL
}

func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down drops every table the migrations created.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Version returns 0, false when nothing has been applied yet.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
