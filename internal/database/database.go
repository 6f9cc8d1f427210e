package database

import (
	"context"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
)

var ErrConnectionNotSet = errors.New("repository connection has not been set")
var ErrConnectorNotInitialized = errors.New("database connector has not been initialized")

const DefaultMigrationsTable = "migrations"

type CommonOptions struct {
	MigrationsTable string
}

// Filter narrows down GetRanMigrations. Batch selects a single batch, Steps
// selects the given number of most recent batches. Zero values mean no limit.
type Filter struct {
	Batch migration.Batch
	Steps int
}

// Repository is the persisted ledger of applied migrations
type Repository interface {
	// SetConnection binds every read and the ledger maintenance to a live connection
	SetConnection(ex migration.Executor)
	Exists(ctx context.Context) (bool, error)
	// Create is not self guarding, check Exists first
	Create(ctx context.Context) error
	Drop(ctx context.Context) error
	GetRanMigrations(ctx context.Context, f Filter) ([]string, error)
	GetNextBatchNumber(ctx context.Context) (migration.Batch, error)
	Records(ctx context.Context) ([]migration.Record, error)
	InsertRecord(ctx context.Context, ex migration.Executor, name string, batch migration.Batch) error
	DeleteRecord(ctx context.Context, ex migration.Executor, name string) error
}

// Tx is a transaction opened on a Handle
type Tx interface {
	migration.Executor
	Commit() error
	Rollback() error
}

// Handle is a single live database connection
type Handle interface {
	migration.Executor
	Begin(ctx context.Context) (Tx, error)
}

// Connector supplies the live handle, connecting once and caching it
type Connector interface {
	Connect(ctx context.Context) (Handle, error)
	Close() error
}
