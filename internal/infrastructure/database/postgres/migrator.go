// Package postgres stores prediction runs in PostgreSQL. The schema ships
// inside the binary and is applied with golang-migrate, either at startup
// (database.postgres.auto_migrate) or through `achectl migrate`.
package postgres

import (
	"embed"
	stderrors "errors"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations. It holds its own
// connection; Close releases it.
type Migrator struct {
	m      *migrate.Migrate
	logger logging.Logger
}

// NewMigrator connects to dsn (see BuildDSN).
func NewMigrator(dsn string, log logging.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Migrator{m: m, logger: log.Named("migrate")}, nil
}

// Up applies all pending migrations. No pending migrations is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := g.m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail(versionDetail(version))
	}
	version, dirty, _ := g.Status()
	g.logger.Info("Database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func (g *Migrator) Down(steps int) error {
	var err error
	if steps <= 0 {
		err = g.m.Down()
	} else {
		err = g.m.Steps(-steps)
	}
	if err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	return nil
}

// Status returns the applied version. A dirty state means a migration
// failed halfway and needs Force.
func (g *Migrator) Status() (version uint, dirty bool, err error) {
	version, dirty, err = g.m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return version, dirty, nil
}

// Force sets the version without running anything; -1 clears it.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to force migration version")
	}
	g.logger.Warn("Migration version forced", logging.Int("version", version))
	return nil
}

func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return stderrors.Join(srcErr, dbErr)
}

func versionDetail(v uint) string {
	return "current version " + strconv.FormatUint(uint64(v), 10)
}

//Personal.AI order the ending
