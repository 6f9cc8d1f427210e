package mysql

import (
	"context"
	"database/sql"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
)

const DefaultLockKey = "batchmig_migrations"
const DefaultLockSeconds = 10

type Options struct {
	database.CommonOptions
	Charset string
	LockKey string
	LockFor int
	NoLock  bool
}

func NewDefaultOptions() *Options {
	return &Options{
		CommonOptions: database.CommonOptions{MigrationsTable: database.DefaultMigrationsTable},
		Charset:       DefaultCharset,
		LockKey:       DefaultLockKey,
		LockFor:       DefaultLockSeconds,
	}
}

// Locker holds a named MySQL lock for the lifetime of the connection it was taken on
type Locker struct {
	lockKey string
	lockFor int
	noLock  bool
}

var _ database.Locker = (*Locker)(nil)

func NewLocker(lockKey string, lockFor int, noLock bool) *Locker {
	return &Locker{lockKey: lockKey, lockFor: lockFor, noLock: noLock}
}

func (l *Locker) Lock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	var acquired sql.NullInt64
	if err := ex.QueryRowxContext(ctx, "SELECT GET_LOCK(?, ?)", l.lockKey, l.lockFor).Scan(&acquired); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", l.lockKey, l.lockFor)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		return errors.Wrapf(sqlgateway.ErrLockNotAcquired, "[%s] is held elsewhere for more than [%d] seconds", l.lockKey, l.lockFor)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	if _, err := ex.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", l.lockKey)
	}

	return nil
}
