package batchmig

import (
	"context"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/internal/source"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"os"
)

var ErrDatabaseNotConfigured = errors.New("no database has been configured for the migrator")
var ErrBatchAborted = errors.New("batch aborted on the first failed migration")

type CloserFunc func() error

type loggerAware interface {
	SetLogger(lg logger.Logger)
}

// Migrator applies, reverses and replays migrations against one database.
// It connects lazily on the first operation and keeps that connection
// until closed.
type Migrator struct {
	lg             logger.Logger
	repo           database.Repository
	connector      database.Connector
	locker         database.Locker
	source         source.Source
	sourceFn       func(lg logger.Logger) (source.Source, error)
	directories    []string
	abortOnFailure bool
	savepoints     bool
	closerFns      []CloserFunc

	h database.Handle
}

// NewMigrator creates a migrator from option callbacks. A database option,
// such as UseSqlite, UseMySQL or UsePostgres, is required. Without a source
// option migrations are discovered in the default local folder.
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = logger.NullLogger{}
	m.locker = database.NullLocker{}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	if m.repo == nil || m.connector == nil {
		return nil, nil, ErrDatabaseNotConfigured
	}

	if m.sourceFn == nil {
		m.sourceFn = func(lg logger.Logger) (source.Source, error) {
			return source.NewLocalFSSource(source.DefaultMigrationsFolder, source.GoExtension, migration.DefaultRegistry, lg)
		}
	}

	s, err := m.sourceFn(m.lg)
	if err != nil {
		if closeErr := m.close(); closeErr != nil {
			return nil, nil, errors.Wrap(err, closeErr.Error())
		}

		return nil, nil, err
	}

	m.source = s

	if la, ok := m.repo.(loggerAware); ok {
		la.SetLogger(m.lg)
	}

	return m, m.close, nil
}

// Source returns the source migrations are discovered from
func (m *Migrator) Source() source.Source {
	return m.source
}

// Run applies every pending migration as one new batch
func (m *Migrator) Run(ctx context.Context) ([]string, error) {
	h, err := m.setUp(ctx)
	if err != nil {
		return nil, err
	}

	var attempted []string
	err = m.locked(ctx, h, func() error {
		var err error
		attempted, err = m.run(ctx, h, 0)
		return err
	})

	if err != nil {
		return nil, err
	}

	return attempted, nil
}

// Rollback reverses the most recent batches, one by default
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := NewAction(cfs...)

	h, err := m.setUp(ctx)
	if err != nil {
		return nil, err
	}

	var rolledBack []string
	err = m.locked(ctx, h, func() error {
		var err error
		rolledBack, err = m.rollback(ctx, h, database.Filter{Steps: act.steps, Batch: act.batch})
		return err
	})

	if err != nil {
		return nil, err
	}

	return rolledBack, nil
}

// Reset reverses every applied migration
func (m *Migrator) Reset(ctx context.Context) ([]string, error) {
	h, err := m.setUp(ctx)
	if err != nil {
		return nil, err
	}

	var rolledBack []string
	err = m.locked(ctx, h, func() error {
		var err error
		rolledBack, err = m.rollback(ctx, h, database.Filter{})
		return err
	})

	if err != nil {
		return nil, err
	}

	return rolledBack, nil
}

// Refresh resets the database and then runs every migration again,
// in two separate transactions. The re-applied batch continues the
// numbering of the history it replaced.
func (m *Migrator) Refresh(ctx context.Context) ([]string, error) {
	h, err := m.setUp(ctx)
	if err != nil {
		return nil, err
	}

	var migrated []string
	err = m.locked(ctx, h, func() error {
		next, err := m.repo.GetNextBatchNumber(ctx)
		if err != nil {
			return err
		}

		if _, err := m.rollback(ctx, h, database.Filter{}); err != nil {
			return errors.Wrap(err, "refresh could not reset migrations")
		}

		migrated, err = m.run(ctx, h, next)
		return err
	})

	if err != nil {
		return nil, err
	}

	return migrated, nil
}

// run applies the pending migrations as batch, or as the next batch when zero
func (m *Migrator) run(ctx context.Context, h database.Handle, batch migration.Batch) ([]string, error) {
	all, err := m.source.ListAll(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	ran, err := m.repo.GetRanMigrations(ctx, database.Filter{})
	if err != nil {
		return nil, err
	}

	pending := migration.Diff(all, ran)
	if len(pending) == 0 {
		m.lg.Infof("No pending migrations to run.")
		return []string{}, nil
	}

	if batch == 0 {
		batch, err = m.repo.GetNextBatchNumber(ctx)
		if err != nil {
			return nil, err
		}
	}

	m.lg.Debugf("running %d migrations as batch %d", len(pending), batch)

	err = m.transact(ctx, h, func(ctx context.Context, ex migration.Executor) error {
		for _, key := range pending {
			u, err := m.source.Resolve(ctx, key)
			if err != nil {
				return err
			}

			o, err := m.execute(ctx, ex, key, u, migration.DirectionUp)
			if err != nil {
				return err
			}

			if !o.Ok() {
				m.lg.Error(o.Err)
				if m.abortOnFailure {
					return errors.Wrap(ErrBatchAborted, o.Err.Error())
				}

				continue
			}

			if err := m.repo.InsertRecord(ctx, ex, key, batch); err != nil {
				return err
			}

			m.lg.Successf("Migrated %s.", key)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return pending, nil
}

func (m *Migrator) rollback(ctx context.Context, h database.Handle, f database.Filter) ([]string, error) {
	work, err := m.repo.GetRanMigrations(ctx, f)
	if err != nil {
		return nil, err
	}

	if len(work) == 0 {
		m.lg.Infof("Nothing to rollback.")
		return []string{}, nil
	}

	err = m.transact(ctx, h, func(ctx context.Context, ex migration.Executor) error {
		for i := len(work) - 1; i >= 0; i-- {
			key := work[i]

			u, err := m.source.Resolve(ctx, key)
			if err != nil {
				return err
			}

			o, err := m.execute(ctx, ex, key, u, migration.DirectionDown)
			if err != nil {
				return err
			}

			if !o.Ok() {
				m.lg.Error(o.Err)
				if m.abortOnFailure {
					return errors.Wrap(ErrBatchAborted, o.Err.Error())
				}

				continue
			}

			if err := m.repo.DeleteRecord(ctx, ex, key); err != nil {
				return err
			}

			m.lg.Successf("Rolled back %s.", key)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return work, nil
}

const unitSavepoint = "batchmig_unit"

// execute runs one direction of a unit. Under unit savepoints whatever a
// failed body did is undone and the batch transaction stays usable.
func (m *Migrator) execute(
	ctx context.Context,
	ex migration.Executor,
	key string,
	u migration.Unit,
	d migration.Direction,
) (migration.Outcome, error) {
	if !m.savepoints {
		return migration.Execute(ctx, ex, key, u, d), nil
	}

	var o migration.Outcome
	err := sqlgateway.Savepoint(ctx, ex, unitSavepoint, func() bool {
		o = migration.Execute(ctx, ex, key, u, d)
		return o.Ok()
	})

	return o, err
}

// transact keeps the batch running to completion once begun, so the
// transaction is detached from the cancellation of ctx
func (m *Migrator) transact(ctx context.Context, h database.Handle, cb sqlgateway.TxCallback) error {
	if err := sqlgateway.Transact(context.WithoutCancel(ctx), h, cb); err != nil {
		if !errors.Is(err, migration.ErrNotFound) && !errors.Is(err, ErrBatchAborted) {
			m.lg.Error(err)
		}

		return err
	}

	return nil
}

func (m *Migrator) locked(ctx context.Context, h database.Handle, fn func() error) (err error) {
	if lockErr := m.locker.Lock(ctx, h); lockErr != nil {
		m.lg.Error(lockErr)
		return lockErr
	}

	defer func() {
		if unlockErr := m.locker.Unlock(context.WithoutCancel(ctx), h); unlockErr != nil {
			m.lg.Error(unlockErr)
			if err == nil {
				err = unlockErr
			}
		}
	}()

	return fn()
}

// setUp connects, makes sure the ledger and the database directories
// exist and caches the handle. A failed setUp leaves nothing cached.
func (m *Migrator) setUp(ctx context.Context) (database.Handle, error) {
	if m.h != nil {
		return m.h, nil
	}

	h, err := m.connector.Connect(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, errors.Wrap(err, "could not connect to the database")
	}

	m.repo.SetConnection(h)

	exists, err := m.repo.Exists(ctx)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := m.repo.Create(ctx); err != nil {
			return nil, err
		}

		m.lg.Debugf("migrations table created")
	}

	for _, dir := range m.directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "could not create database directory [%s]", dir)
		}
	}

	m.h = h

	return h, nil
}

func (m *Migrator) close() error {
	m.h = nil

	var result error
	for i := len(m.closerFns) - 1; i >= 0; i-- {
		if err := m.closerFns[i](); err != nil {
			m.lg.Error(err)
			if result == nil {
				result = err
			}
		}
	}

	return result
}
