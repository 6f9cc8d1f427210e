package sqlgateway

import (
	"context"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"strings"
)

var ErrTxDeadlock = errors.New("transaction deadlock occurred")

type TxCallback func(ctx context.Context, ex migration.Executor) error

// Transact runs cb inside a transaction opened on h, committing when cb
// succeeds and rolling back otherwise
func Transact(ctx context.Context, h database.Handle, cb TxCallback) error {
	tx, err := h.Begin(ctx)
	if err != nil {
		return err
	}

	if err := cb(ctx, tx); err != nil {
		if isDeadlock(err) {
			err = errors.Wrapf(ErrTxDeadlock, "on callback: %s", err.Error())
		}

		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, " : ROLLBACK : "+rbErr.Error())
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		if isDeadlock(err) {
			return errors.Wrapf(ErrTxDeadlock, "on commit: %s", err.Error())
		}

		return errors.Wrap(err, "could not commit transaction")
	}

	return nil
}

// Savepoint runs fn under a savepoint of the open transaction ex. When fn
// reports failure the transaction is rolled back to the savepoint and stays
// usable. Errors only come from the savepoint statements themselves.
func Savepoint(ctx context.Context, ex migration.Executor, name string, fn func() bool) error {
	if _, err := ex.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "could not create savepoint %s", name)
	}

	if !fn() {
		if _, err := ex.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return errors.Wrapf(err, "could not rollback to savepoint %s", name)
		}
	}

	if _, err := ex.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return errors.Wrapf(err, "could not release savepoint %s", name)
	}

	return nil
}

func isDeadlock(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
