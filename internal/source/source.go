package source

import (
	"context"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
)

// ErrNotFound is the same sentinel the migration package uses, so callers
// can match either one
var ErrNotFound = migration.ErrNotFound
var ErrMigrationAlreadyExists = errors.New("migration already exists")
var ErrNoRegistry = errors.New("source has no migration registry")

// Source discovers migration keys and resolves a key into a runnable unit
type Source interface {
	// ListAll returns every known key in lexical, hence chronological, order
	ListAll(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, key string) (migration.Unit, error)
}
