package batchmig

import (
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/internal/database/sqlgateway/postgres"
	"github.com/jmoiron/sqlx"
	"time"
)

type PostgresOptionFunc func(*postgres.Options, *sqlgateway.ConnectOptions)

// UsePostgres expects db to be opened with the pgx driver
func UsePostgres(db *sqlx.DB, options ...PostgresOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		pgOpts := postgres.NewDefaultOptions()
		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(pgOpts, connectOpts)
		}

		repo, err := sqlgateway.NewRepository(postgres.NewDialect(pgOpts.MigrationsTable), m.lg)
		if err != nil {
			return err
		}

		connector := sqlgateway.NewRetryingConnector(db, connectOpts)

		m.repo = repo
		m.savepoints = m.savepoints || repo.Dialect().UnitSavepoints()
		m.connector = connector
		m.locker = postgres.NewLocker(pgOpts.LockKey, pgOpts.LockFor, pgOpts.NoLock)
		m.closerFns = append(m.closerFns, connector.Close)

		return nil
	}
}

func WithPostgresNoLock() PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.NoLock = true
	}
}

func WithPostgresLockKey(key int64) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.LockKey = key
	}
}

func WithPostgresLockFor(lockFor time.Duration) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.LockFor = lockFor
	}
}

func WithPostgresMigrationTable(migrationTable string) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.MigrationsTable = migrationTable
	}
}

func WithPostgresConnectionTimeout(timeout time.Duration) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithPostgresMaxConnectionAttempts(attempts int) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
