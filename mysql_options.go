package batchmig

import (
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/internal/database/sqlgateway/mysql"
	"github.com/jmoiron/sqlx"
	"time"
)

type MySQLOptionFunc func(*mysql.Options, *sqlgateway.ConnectOptions)

func UseMySQL(db *sqlx.DB, options ...MySQLOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		mysqlOpts := mysql.NewDefaultOptions()
		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(mysqlOpts, connectOpts)
		}

		repo, err := sqlgateway.NewRepository(mysql.NewDialect(mysqlOpts.MigrationsTable, mysqlOpts.Charset), m.lg)
		if err != nil {
			return err
		}

		connector := sqlgateway.NewRetryingConnector(db, connectOpts)

		m.repo = repo
		m.savepoints = m.savepoints || repo.Dialect().UnitSavepoints()
		m.connector = connector
		m.locker = mysql.NewLocker(mysqlOpts.LockKey, mysqlOpts.LockFor, mysqlOpts.NoLock)
		m.closerFns = append(m.closerFns, connector.Close)

		return nil
	}
}

func WithMySQLNoLock() MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.NoLock = true
	}
}

func WithMySQLLockKey(key string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockKey = key
	}
}

func WithMySQLLockFor(lockFor int) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockFor = lockFor
	}
}

func WithMySQLMigrationTable(migrationTable string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.MigrationsTable = migrationTable
	}
}

func WithMySQLCharset(charset string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.Charset = charset
	}
}

func WithMySQLConnectionTimeout(timeout time.Duration) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithMySQLMaxConnectionAttempts(attempts int) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
