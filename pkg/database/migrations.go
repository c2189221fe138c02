package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "factgraph_schema_migrations"

// Migrate applies the pending migrations in migrationsPath. A schema left dirty by an
// interrupted run is reported as apperrors.ErrConflict and must be repaired by hand.
func (db *DB) Migrate(migrationsPath string, logger *zap.Logger) error {
	logger = logger.Named("migrations")

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return Wrap(err, "create migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to read migrations from %s: %w", migrationsPath, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return Wrap(err, "read schema version")
	case dirty:
		return fmt.Errorf("schema version %d is dirty: %w", before, apperrors.ErrConflict)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Schema is up to date", zap.Uint("version", before))
			return nil
		}
		return Wrap(err, "apply migrations")
	}

	after, _, _ := m.Version()
	logger.Info("Applied migrations",
		zap.Uint("from_version", before),
		zap.Uint("to_version", after))
	return nil
}
