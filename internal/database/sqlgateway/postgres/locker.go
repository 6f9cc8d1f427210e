package postgres

import (
	"context"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"time"
)

const DefaultLockKey int64 = 99887766
const DefaultLockFor = 10 * time.Second

type Options struct {
	database.CommonOptions
	LockKey int64
	LockFor time.Duration
	NoLock  bool
}

func NewDefaultOptions() *Options {
	return &Options{
		CommonOptions: database.CommonOptions{MigrationsTable: database.DefaultMigrationsTable},
		LockKey:       DefaultLockKey,
		LockFor:       DefaultLockFor,
	}
}

// Locker takes a session level advisory lock, polling pg_try_advisory_lock until lockFor elapses
type Locker struct {
	lockKey int64
	lockFor time.Duration
	noLock  bool
	poll    time.Duration
}

var _ database.Locker = (*Locker)(nil)

func NewLocker(lockKey int64, lockFor time.Duration, noLock bool) *Locker {
	return &Locker{lockKey: lockKey, lockFor: lockFor, noLock: noLock, poll: 250 * time.Millisecond}
}

func (l *Locker) Lock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	deadline := time.Now().Add(l.lockFor)
	q := ex.Rebind("SELECT pg_try_advisory_lock(?)")

	for {
		var acquired bool
		if err := ex.QueryRowxContext(ctx, q, l.lockKey).Scan(&acquired); err != nil {
			return errors.Wrapf(err, "could not obtain [%d] postgres advisory lock", l.lockKey)
		}

		if acquired {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.Wrapf(sqlgateway.ErrLockNotAcquired, "advisory lock [%d] is held elsewhere for more than %s", l.lockKey, l.lockFor)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for postgres advisory lock")
		case <-time.After(l.poll):
		}
	}
}

func (l *Locker) Unlock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	if _, err := ex.ExecContext(ctx, ex.Rebind("SELECT pg_advisory_unlock(?)"), l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%d] postgres advisory lock", l.lockKey)
	}

	return nil
}
