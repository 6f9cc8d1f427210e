package database

import (
	"context"
	"github.com/denismitr/batchmig/migration"
)

// Locker guards the read-compute-write sequence of an operation against
// other migrators working on the same database
type Locker interface {
	Lock(ctx context.Context, ex migration.Executor) error
	Unlock(ctx context.Context, ex migration.Executor) error
}

type NullLocker struct{}

var _ Locker = NullLocker{}

func (NullLocker) Lock(context.Context, migration.Executor) error {
	return nil
}

func (NullLocker) Unlock(context.Context, migration.Executor) error {
	return nil
}
