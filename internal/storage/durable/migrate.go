package durable

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/r3e-network/agentmemory/internal/memerr"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration to db. It is idempotent:
// running it against an already-current schema is a no-op.
//
// The teacher's own deployments apply schema via deploy/ SQL scripts run out
// of band rather than an in-process migration runner, so there is no
// teacher file this is adapted from; golang-migrate was already declared in
// the teacher's go.mod with no consumer, so this gives it the home it
// otherwise lacked (see SPEC_FULL.md's domain stack ledger).
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return memerr.Wrap(memerr.Storage, "load embedded migrations", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return memerr.Wrap(memerr.Storage, "init migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return memerr.Wrap(memerr.Storage, "init migrator", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return memerr.Wrap(memerr.Storage, "apply migrations", err)
	}
	return nil
}
